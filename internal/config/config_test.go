package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadPricingDefaults(t *testing.T) {
	t.Setenv("TAX_RATE", "")
	t.Setenv("STOCK_POLICY", "")
	t.Setenv("METRICS_WINDOW_DAYS", "")

	cfg := Load()
	if cfg.TaxRate != "0.19" {
		t.Fatalf("expected default tax rate 0.19, got %q", cfg.TaxRate)
	}
	if cfg.StockPolicy != "strict" {
		t.Fatalf("expected strict stock policy by default, got %q", cfg.StockPolicy)
	}
	if cfg.MetricsWindowDays != 30 {
		t.Fatalf("expected 30 day window, got %d", cfg.MetricsWindowDays)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("METRICS_CACHE_TTL_SECONDS", "-5")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "soon")
	t.Setenv("MIGRATE_ON_START", "yes please")
	t.Setenv("STOCK_POLICY", "Lenient")

	cfg := Load()
	if cfg.MetricsCacheTTLSeconds != 30 || cfg.RequestTimeoutSeconds != 8 {
		t.Fatalf("expected fallbacks, got ttl=%d timeout=%d", cfg.MetricsCacheTTLSeconds, cfg.RequestTimeoutSeconds)
	}
	if cfg.MigrateOnStart {
		t.Fatalf("expected unparsable bool to fall back to false")
	}
	if cfg.StockPolicy != "lenient" {
		t.Fatalf("expected lower-cased stock policy, got %q", cfg.StockPolicy)
	}
}
