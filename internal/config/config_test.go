package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("ADMIN_PIN", "")
	t.Setenv("ADMIN_PIN_HASH", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.AdminPIN != "" {
		t.Fatalf("expected empty ADMIN_PIN when unset, got %q", cfg.AdminPIN)
	}
	if cfg.AdminPINHash != "" {
		t.Fatalf("expected empty ADMIN_PIN_HASH when unset, got %q", cfg.AdminPINHash)
	}
}

func TestLoadTaxRateFallback(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"unset", "", "8.25"},
		{"garbage", "eight", "8.25"},
		{"negative", "-1", "8.25"},
		{"over hundred", "250", "8.25"},
		{"valid", "7.5", "7.5"},
		{"zero", "0", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TAX_RATE", tc.raw)
			cfg := Load()
			if cfg.DefaultTaxRate.String() != tc.want {
				t.Fatalf("TAX_RATE=%q: expected %s, got %s", tc.raw, tc.want, cfg.DefaultTaxRate)
			}
		})
	}
}
