package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoansMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_loans.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS loans",
		"FOREIGN KEY (item_id) REFERENCES library_items(id)",
		"CHECK (renewal_count >= 0)",
		"ux_loans_item_open",
		"WHERE return_date IS NULL",
		"DROP TABLE IF EXISTS loans",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestFinesMigrationContainsPendingIndex(t *testing.T) {
	content := readMigration(t, "*_create_fines.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS fines",
		"CHECK (amount > 0)",
		"ux_fines_loan_pending",
		"WHERE status = 'PENDING'",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSettingsMigrationSeedsSingleton(t *testing.T) {
	content := readMigration(t, "*_create_library_settings.sql")

	checks := []string{
		"CHECK (id = 1)",
		"INSERT INTO library_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
