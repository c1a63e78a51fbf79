package config

import (
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CONTROL_PROVIDER_ENDPOINT", "https://provider.example")
	t.Setenv("CONTROL_PROVIDER_API_KEY", "key")
	t.Setenv("CONTROL_TENANCY_ID", "ocid1.tenancy.test")
	t.Setenv("CONTROL_SEALING_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8090 {
		t.Fatalf("Port = %d", cfg.Port)
	}
	if cfg.Region != "eu-frankfurt-1" {
		t.Fatalf("Region = %q", cfg.Region)
	}
	if len(cfg.FallbackShapes) == 0 {
		t.Fatal("no default fallback shapes")
	}
}

func TestLoadRequiredVars(t *testing.T) {
	required := []string{
		"CONTROL_PROVIDER_ENDPOINT",
		"CONTROL_PROVIDER_API_KEY",
		"CONTROL_TENANCY_ID",
		"CONTROL_SEALING_KEY",
	}
	for _, missing := range required {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")
			if _, err := Load(); err == nil {
				t.Fatalf("Load succeeded without %s", missing)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CONTROL_PORT", "9999")
	t.Setenv("CONTROL_REGION", "us-ashburn-1")
	t.Setenv("CONTROL_FALLBACK_SHAPES", "VM.A, VM.B,,VM.C ")
	t.Setenv("CONTROL_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9999 || cfg.Region != "us-ashburn-1" || !cfg.Debug {
		t.Fatalf("cfg = %+v", cfg)
	}
	want := []string{"VM.A", "VM.B", "VM.C"}
	if len(cfg.FallbackShapes) != len(want) {
		t.Fatalf("FallbackShapes = %v", cfg.FallbackShapes)
	}
	for i := range want {
		if cfg.FallbackShapes[i] != want[i] {
			t.Fatalf("FallbackShapes = %v, want %v", cfg.FallbackShapes, want)
		}
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	setRequired(t)
	t.Setenv("CONTROL_PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a non-numeric port")
	}
}
