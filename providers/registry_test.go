package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/shanefrancis93/anchor-research/types"
)

// fakeDriver is a minimal Driver for registry and ratelimit tests.
type fakeDriver struct {
	id      string
	model   string
	calls   int
	chatErr error
}

func (f *fakeDriver) ID() string    { return f.id }
func (f *fakeDriver) Model() string { return f.model }

func (f *fakeDriver) Chat(_ context.Context, _ ChatRequest) (types.TurnOutcome, error) {
	f.calls++
	if f.chatErr != nil {
		return types.TurnOutcome{}, f.chatErr
	}
	return types.TurnOutcome{Role: types.RoleAssistant, Content: "ok", Tokens: 3}, nil
}

func (f *fakeDriver) CalculateCost(tokensIn, tokensOut int) types.CostInfo {
	return types.CostInfo{InputTokens: tokensIn, OutputTokens: tokensOut}
}

func (f *fakeDriver) Close() error { return nil }

type fakeEmbedder struct {
	fakeDriver
	embedCalls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	f.embedCalls++
	return []float64{1, 0}, nil
}

func TestNewFromSpecUnsupportedType(t *testing.T) {
	_, err := NewFromSpec(Spec{ID: "x", Type: "carrier-pigeon"})
	if err == nil {
		t.Fatal("Expected error for unsupported driver type")
	}

	var unsupported *UnsupportedDriverError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected UnsupportedDriverError, got %T", err)
	}
	if unsupported.DriverType != "carrier-pigeon" {
		t.Errorf("Expected type 'carrier-pigeon', got '%s'", unsupported.DriverType)
	}
}

func TestNewFromSpecAppliesDefaultBaseURLs(t *testing.T) {
	cases := map[string]string{
		"openai":    "https://api.openai.com/v1",
		"anthropic": "https://api.anthropic.com",
	}

	for driverType, wantURL := range cases {
		var got Spec
		RegisterDriverFactory(driverType, func(spec Spec) (Driver, error) {
			got = spec
			return &fakeDriver{id: spec.ID, model: spec.Model}, nil
		})

		_, err := NewFromSpec(Spec{ID: "d", Type: driverType, Model: "m"})
		if err != nil {
			t.Fatalf("NewFromSpec(%s) failed: %v", driverType, err)
		}
		if got.BaseURL != wantURL {
			t.Errorf("Expected base URL '%s' for %s, got '%s'", wantURL, driverType, got.BaseURL)
		}
	}
}

func TestNewFromSpecKeepsExplicitBaseURL(t *testing.T) {
	var got Spec
	RegisterDriverFactory("openai", func(spec Spec) (Driver, error) {
		got = spec
		return &fakeDriver{id: spec.ID}, nil
	})

	_, err := NewFromSpec(Spec{ID: "d", Type: "openai", BaseURL: "http://localhost:8080/v1"})
	if err != nil {
		t.Fatalf("NewFromSpec failed: %v", err)
	}
	if got.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("Explicit base URL was overridden: got '%s'", got.BaseURL)
	}
}
