package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/yourusername/finish-line/internal/config"
)

// SetupTestDB creates a test database connection and verifies it.
// Skips the calling test unless FINISH_LINE_TEST_DB is set, so unit
// runs stay hermetic.
func SetupTestDB(t *testing.T) *DB {
	if os.Getenv("FINISH_LINE_TEST_DB") == "" {
		t.Skip("FINISH_LINE_TEST_DB not set; skipping database test")
	}

	cfg, err := config.LoadWithDefaults(os.Getenv("FINISH_LINE_TEST_CONFIG"))
	if err != nil {
		t.Fatalf("failed to load test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		t.Fatalf("failed to create test database connection: %v", err)
	}

	verifyCtx, verifyCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer verifyCancel()

	if err := db.Ping(verifyCtx); err != nil {
		t.Fatalf("failed to ping test database: %v", err)
	}

	return db
}

// TeardownTestDB closes the database connection cleanly
func TeardownTestDB(t *testing.T, db *DB) {
	t.Helper()
	db.Close()
}
