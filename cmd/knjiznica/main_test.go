package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/knjiznica/internal/db"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    config
		wantErr bool
	}{
		{
			name: "defaults",
			want: config{dbPath: "knjiznica.sqlite3", addr: ":8080", adminUser: "admin@knjiznica.local", command: "serve"},
		},
		{
			name: "short flags and sweep",
			args: []string{"-d", "lib.db", "-a", ":9000", "-u", "desk@lib.test", "sweep"},
			want: config{dbPath: "lib.db", addr: ":9000", adminUser: "desk@lib.test", command: "sweep"},
		},
		{
			name: "long flags",
			args: []string{"-db", "lib.db", "-origin", "https://lib.test", "-log", "out.log", "serve"},
			want: config{dbPath: "lib.db", addr: ":8080", adminUser: "admin@knjiznica.local", logPath: "out.log", origin: "https://lib.test", command: "serve"},
		},
		{name: "unknown command", args: []string{"init"}, wantErr: true},
		{name: "extra argument", args: []string{"serve", "now"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseFlags(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			if *cfg != tt.want {
				t.Errorf("got %+v, want %+v", *cfg, tt.want)
			}
		})
	}
}

func TestLevelRouter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := slog.New(newLevelRouter(&stdout, &stderr)).With("component", "test")

	logger.Debug("hidden")
	logger.Info("to stdout")
	logger.Warn("also stdout")
	logger.Error("to stderr")

	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug record should be filtered")
	}
	if !strings.Contains(stdout.String(), "to stdout") || !strings.Contains(stdout.String(), "also stdout") {
		t.Errorf("stdout missing info/warn records: %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "to stderr") {
		t.Error("error record leaked to stdout")
	}
	if !strings.Contains(stderr.String(), "to stderr") || !strings.Contains(stderr.String(), "component=test") {
		t.Errorf("stderr missing error record with attrs: %q", stderr.String())
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	if err != nil {
		t.Fatalf("generatePassword: %v", err)
	}
	b, _ := generatePassword(16)
	if len(a) != 16 {
		t.Errorf("expected 16 characters, got %d", len(a))
	}
	if a == b {
		t.Error("expected distinct passwords")
	}
}

func TestInitDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.sqlite3")
	database, password, err := initDatabase(path, "Desk@Lib.test")
	if err != nil {
		t.Fatalf("initDatabase: %v", err)
	}
	defer database.Close()

	admin, err := store.GetUserByEmail(context.Background(), database, "desk@lib.test")
	if err != nil || admin == nil {
		t.Fatalf("admin not created: %v", err)
	}
	if admin.Role != model.RoleAdmin {
		t.Errorf("expected admin role, got %s", admin.Role)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		t.Error("printed password does not match stored hash")
	}
}

func TestSweep(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, database, "reader@lib.test", "hash", "Reader", model.RoleMember)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	book, err := store.CreateBook(ctx, database, store.BookInput{Title: "Late", Authors: "A"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	start := time.Now().UTC().Add(-20 * 24 * time.Hour).Truncate(time.Second)

	const loans = 60
	var ids []int64
	for i := 0; i < loans; i++ {
		c, err := store.CreateCopy(ctx, database, book.ID, fmt.Sprintf("L-%d", i), model.ConditionGood, "")
		if err != nil {
			t.Fatalf("CreateCopy: %v", err)
		}
		loan, err := store.CreateLoan(ctx, database, user.ID, c.ID, start, start.Add(14*24*time.Hour))
		if err != nil {
			t.Fatalf("CreateLoan: %v", err)
		}
		ids = append(ids, loan.ID)
	}

	if err := sweep(ctx, database); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	for _, id := range ids {
		got, err := store.GetLoan(ctx, database, id)
		if err != nil {
			t.Fatalf("GetLoan: %v", err)
		}
		if got.Status != model.LoanOverdue {
			t.Errorf("loan %d: expected overdue, got %s", id, got.Status)
		}
	}

	// Every notification is stored before sweep returns.
	n, err := store.CountUnreadNotifications(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("CountUnreadNotifications: %v", err)
	}
	if n != loans {
		t.Errorf("expected %d overdue notifications, got %d", loans, n)
	}

	last, err := store.LastSweep(ctx, database)
	if err != nil {
		t.Fatalf("LastSweep: %v", err)
	}
	if time.Since(last) > time.Minute {
		t.Errorf("sweep time not recorded, got %v", last)
	}
}
