package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/casierlabs/casier-backend/pkg/migrate"
)

func TestInitSchemaMigrationContainsCoreTables(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no init schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE reservation_status AS ENUM ('pending', 'active', 'completed', 'cancelled', 'expired')",
		"CREATE TABLE lockers",
		"CREATE TABLE reservations",
		"stripe_session_id text UNIQUE",
		"stripe_payment_intent_id text",
		"reminder_sent boolean NOT NULL DEFAULT false",
		"CREATE INDEX idx_reservations_status_end_date ON reservations (status, end_date)",
		"DROP TABLE reservations",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
