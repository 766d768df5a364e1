package main

import (
	"context"
	"testing"

	"magazin/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", AdminPassword: "admin-pass-1", CashierPassword: "cashier-pass-1"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", AdminPassword: "", CashierPassword: "cashier-pass-1"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", AdminPassword: "admin-pass-1", CashierPassword: "short"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", AdminPassword: "same-pass-1", CashierPassword: "same-pass-1"},
	}
	for i, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("case %d: expected weak security config to be rejected", i)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:      "0123456789abcdef0123456789abcdef",
		AdminPassword:   "admin-pass-1",
		CashierPassword: "cashier-pass-1",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenStoreSelectsDriver(t *testing.T) {
	repo, err := openStore(context.Background(), config.Config{StoreDriver: config.DriverMemory})
	if err != nil {
		t.Fatalf("memory driver: %v", err)
	}
	_ = repo.Close()

	if _, err := openStore(context.Background(), config.Config{StoreDriver: config.DriverPostgres}); err == nil {
		t.Fatalf("expected postgres without DATABASE_URL to fail")
	}
	if _, err := openStore(context.Background(), config.Config{StoreDriver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver to fail")
	}
}
