package config

import (
	"strings"
	"testing"
)

func TestGetAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-1234567890")

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-config-key-123456"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-env-key-1234567890" {
		t.Errorf("key = %q, want env value to take precedence", key)
	}
}

func TestGetAPIKeyFromConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-config-key-123456"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-config-key-123456" {
		t.Errorf("key = %q, want config value", key)
	}
}

func TestGetAPIKeyMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	cfg.Anthropic.APIKey = ""

	if _, err := GetAPIKey(cfg); err == nil {
		t.Error("GetAPIKey succeeded with no key set")
	}
}

func TestGetAPIKeyRejectsUnexpanded(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	cfg.Anthropic.APIKey = "${MISSING_VAR}"

	if _, err := GetAPIKey(cfg); err == nil {
		t.Error("GetAPIKey accepted an unexpanded placeholder")
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"wrong prefix", "sk-openai-abcdef1234567890", true},
		{"too short", "sk-ant-abc", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	masked := MaskAPIKey("sk-ant-REDACTED")
	if !strings.HasPrefix(masked, "sk-ant-") {
		t.Errorf("masked = %q, want sk-ant- prefix preserved", masked)
	}
	if !strings.HasSuffix(masked, "7890") {
		t.Errorf("masked = %q, want last 4 chars preserved", masked)
	}
	if strings.Contains(masked, "abcdef") {
		t.Errorf("masked = %q, leaks key body", masked)
	}

	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("MaskAPIKey(\"\") = %q", got)
	}

	short := MaskAPIKey("sk-ant-short")
	if strings.Contains(short, "short") {
		t.Errorf("short masked = %q, leaks key", short)
	}
}
