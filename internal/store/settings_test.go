package store

import (
	"context"
	"testing"

	"github.com/erazemk/knjiznica/internal/db"
)

func TestGetJWTSecret_GeneratesAndPersists(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	secret1, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if len(secret1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(secret1))
	}

	secret2, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Fatalf("expected same secret, got %q and %q", secret1, secret2)
	}
}

func TestSettings(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	v, err := GetSetting(ctx, database, "missing")
	if err != nil || v != "" {
		t.Fatalf("GetSetting(missing) = %q, %v", v, err)
	}

	if err := SetSetting(ctx, database, "k", "one"); err != nil {
		t.Fatal(err)
	}
	if err := SetSetting(ctx, database, "k", "two"); err != nil {
		t.Fatal(err)
	}
	if v, _ := GetSetting(ctx, database, "k"); v != "two" {
		t.Errorf("expected overwritten value, got %q", v)
	}
}

func TestLastSweep(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	last, err := LastSweep(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if !last.IsZero() {
		t.Errorf("expected zero time before any sweep, got %v", last)
	}

	if err := RecordSweep(ctx, database, baseTime); err != nil {
		t.Fatal(err)
	}
	last, err = LastSweep(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(baseTime) {
		t.Errorf("expected %v, got %v", baseTime, last)
	}
}
