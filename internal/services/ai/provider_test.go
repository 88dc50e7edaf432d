package ai

import (
	"errors"
	"testing"
)

func TestGetProviderUnknownName(t *testing.T) {
	t.Parallel()

	registry := NewProviderRegistry()
	_, err := registry.GetProvider("anthropic", nil)

	var notFound *ErrProviderNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if notFound.Name != "anthropic" {
		t.Errorf("error names %q, want anthropic", notFound.Name)
	}
}

func TestRegisterOpenAIProvidesConfiguredProvider(t *testing.T) {
	t.Parallel()

	registry := NewProviderRegistry()
	RegisterOpenAI(registry, nil, false)

	provider, err := registry.GetProvider("openai", map[string]string{
		"api_key": "sk-test",
		"model":   "gpt-4o",
	})
	if err != nil {
		t.Fatalf("GetProvider failed: %v", err)
	}

	oai, ok := provider.(*OpenAIProvider)
	if !ok {
		t.Fatalf("provider has type %T, want *OpenAIProvider", provider)
	}
	if oai.Model() != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", oai.Model())
	}
}

func TestRegisterOpenAIRequiresAPIKey(t *testing.T) {
	t.Parallel()

	registry := NewProviderRegistry()
	RegisterOpenAI(registry, nil, false)

	if _, err := registry.GetProvider("openai", map[string]string{}); err == nil {
		t.Error("expected error for missing api_key")
	}
}
