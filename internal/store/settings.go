package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Setting keys.
const (
	SettingJWTSecret   = "jwt_secret"
	SettingLastSweepAt = "last_sweep_at"
)

// GetSetting returns a setting's value, or "" if it was never set.
func GetSetting(ctx context.Context, q Querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting, replacing any previous value.
func SetSetting(ctx context.Context, q Querier, key, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// GetJWTSecret retrieves the JWT secret, generating and storing one on first
// use. Concurrent first starts agree on one secret: the insert is ignored if
// another process won, and the stored value is read back.
func GetJWTSecret(ctx context.Context, q Querier) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}

	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		SettingJWTSecret, hex.EncodeToString(buf),
	)
	if err != nil {
		return "", fmt.Errorf("storing jwt secret: %w", err)
	}

	return GetSetting(ctx, q, SettingJWTSecret)
}

// LastSweep returns when the overdue sweep last finished, or the zero time.
func LastSweep(ctx context.Context, q Querier) (time.Time, error) {
	v, err := GetSetting(ctx, q, SettingLastSweepAt)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", SettingLastSweepAt, err)
	}
	return t, nil
}

// RecordSweep stores the time a sweep finished.
func RecordSweep(ctx context.Context, q Querier, at time.Time) error {
	return SetSetting(ctx, q, SettingLastSweepAt, at.UTC().Format(time.RFC3339))
}
