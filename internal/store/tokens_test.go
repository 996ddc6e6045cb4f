package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/knjiznica/internal/db"
)

func TestTokenRevocation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		jti     string
		revoke  bool
		revoked bool
	}{
		{"fresh token", "jti-fresh", false, false},
		{"revoked token", "jti-logout", true, true},
		{"revoked twice", "jti-logout", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.revoke {
				if err := RevokeToken(ctx, database, tt.jti, baseTime.Add(time.Hour)); err != nil {
					t.Fatalf("RevokeToken: %v", err)
				}
			}
			got, err := IsTokenRevoked(ctx, database, tt.jti)
			if err != nil {
				t.Fatalf("IsTokenRevoked: %v", err)
			}
			if got != tt.revoked {
				t.Errorf("IsTokenRevoked(%q) = %v, want %v", tt.jti, got, tt.revoked)
			}
		})
	}
}

func TestPurgeRevokedTokens(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if err := RevokeToken(ctx, database, "expired", baseTime.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := RevokeToken(ctx, database, "live", baseTime.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	n, err := PurgeRevokedTokens(ctx, database, baseTime)
	if err != nil {
		t.Fatalf("PurgeRevokedTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}

	if revoked, _ := IsTokenRevoked(ctx, database, "live"); !revoked {
		t.Error("live revocation was purged")
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "expired"); revoked {
		t.Error("expired revocation was kept")
	}
}
