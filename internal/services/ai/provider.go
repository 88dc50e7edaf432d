package ai

import (
	"context"

	"github.com/pulsefeed/pulse/internal/models"
)

// GenerateRequest carries an assembled prompt to the provider. Prefix is
// the cache-stable part and always travels as the system message; Suffix
// holds the new entries and live context. ExpectedItemIDs, when set,
// restricts the response to rephrasings of known candidates.
type GenerateRequest struct {
	Prefix          string
	Suffix          string
	MaxItems        int
	ExpectedItemIDs []string
}

// GenerateResult is the validated provider output plus token accounting.
// Signals carry per-entry analysis of the new entries alongside the feed
// items; the caller persists them into the versioned signal store.
type GenerateResult struct {
	Items   []models.GeneratedItem
	Signals []models.SignalReading
	Usage   models.Usage
}

// Provider is the interface for feed generation backends
type Provider interface {
	// GenerateFeed produces feed items from an assembled prompt
	GenerateFeed(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}

// ProviderFactory creates a provider based on configuration
type ProviderFactory func(config map[string]string) (Provider, error)

// ProviderRegistry stores available providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, config map[string]string) (Provider, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(config)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
