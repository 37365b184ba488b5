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

func TestLoadRejectsBadFiscalValues(t *testing.T) {
	t.Setenv("TAX_RATE_PERCENT", "250")
	t.Setenv("FX_RATE", "-3")
	t.Setenv("INVOICE_NET_DAYS", "oops")

	cfg := Load()
	if cfg.TaxRatePercent != 15 {
		t.Fatalf("tax rate = %v, want default 15", cfg.TaxRatePercent)
	}
	if cfg.FXRate != 1 {
		t.Fatalf("fx rate = %v, want default 1", cfg.FXRate)
	}
	if cfg.InvoiceNetDays != 0 {
		t.Fatalf("net days = %d, want default 0", cfg.InvoiceNetDays)
	}
}
