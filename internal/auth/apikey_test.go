package auth

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateKeyFormat(t *testing.T) {
	key, err := GenerateKey("prod")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if !strings.HasPrefix(key, "janus-prod-") {
		t.Errorf("key = %q", key)
	}
	if got := len(strings.TrimPrefix(key, "janus-prod-")); got != 32 {
		t.Errorf("random part length = %d, want 32", got)
	}

	other, _ := GenerateKey("prod")
	if key == other {
		t.Error("two generated keys must differ")
	}
}

func TestHashKeyIsStable(t *testing.T) {
	h1 := HashKey("janus-dev-abc")
	h2 := HashKey("janus-dev-abc")
	if h1 != h2 {
		t.Error("hash must be deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
	if h1 == HashKey("janus-dev-abd") {
		t.Error("distinct keys must hash differently")
	}
}

func TestKeyPrefix(t *testing.T) {
	tests := []struct {
		key, want string
	}{
		{"janus-prod-abcdefgh1234567890", "janus-prod-abcdefgh"},
		{"janus-dev-xyz12345rest", "janus-dev-xyz12345"},
		{"short", "short"},
	}
	for _, tt := range tests {
		if got := KeyPrefix(tt.key); got != tt.want {
			t.Errorf("KeyPrefix(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestAllowsModel(t *testing.T) {
	open := &KeyMetadata{}
	if !open.AllowsModel("anything") {
		t.Error("empty allowlist must permit all models")
	}

	restricted := &KeyMetadata{AllowedModels: []string{"janus-chat-mini"}}
	if !restricted.AllowsModel("janus-chat-mini") {
		t.Error("listed model must be allowed")
	}
	if restricted.AllowsModel("janus-chat") {
		t.Error("unlisted model must be denied")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"365d", 365 * 24 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"", 0, true},
		{"xd", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDuration(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
