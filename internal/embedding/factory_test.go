package embedding

import "testing"

func TestNew_DefaultsToMockWhenKindEmpty(t *testing.T) {
	p, err := New(Config{Dimensions: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "mock" {
		t.Fatalf("expected empty kind to default to mock, got %q", p.Name())
	}
	if p.Dimensions() != 8 {
		t.Fatalf("expected dimensions 8, got %d", p.Dimensions())
	}
}

func TestNew_DispatchesKnownKinds(t *testing.T) {
	cases := []struct {
		kind     string
		wantName string
	}{
		{"mock", "mock"},
		{"openai", "openai"},
		{"voyage", "voyage"},
		{"ollama", "ollama"},
	}
	for _, c := range cases {
		p, err := New(Config{Kind: c.kind, Endpoint: "http://example.invalid", Model: "m", Dimensions: 4})
		if err != nil {
			t.Fatalf("New(%q): %v", c.kind, err)
		}
		if p.Name() != c.wantName {
			t.Errorf("New(%q).Name() = %q, want %q", c.kind, p.Name(), c.wantName)
		}
	}
}

func TestNew_UnknownKindReturnsError(t *testing.T) {
	_, err := New(Config{Kind: "not-a-real-provider"})
	if err == nil {
		t.Fatalf("expected an error for an unknown provider kind")
	}
}
