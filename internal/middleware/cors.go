package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORS builds CORS middleware from a comma-separated list of allowed
// origins. Empty input allows only local development origins.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	origins := []string{"http://localhost:3000"}
	for _, origin := range strings.Split(allowedOrigins, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		duplicate := false
		for _, existing := range origins {
			if existing == trimmed {
				duplicate = true
				break
			}
		}
		if !duplicate {
			origins = append(origins, trimmed)
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", UserIDHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}
