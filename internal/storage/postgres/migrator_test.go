package postgres

import (
	"strings"
	"testing"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one migration")
	}

	var prev int64
	for _, m := range migrations {
		if m.version <= prev {
			t.Fatalf("migrations are not sorted: version %d after %d", m.version, prev)
		}
		prev = m.version

		if m.name == "" {
			t.Fatalf("migration %d has no name", m.version)
		}
		if strings.TrimSpace(m.up) == "" || strings.TrimSpace(m.down) == "" {
			t.Fatalf("migration %d_%s must carry both up and down scripts", m.version, m.name)
		}
	}
}

func TestLoadMigrationsInitPair(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}

	first := migrations[0]
	if first.version != 1 || first.name != "init" {
		t.Fatalf("expected 1_init as the first migration, got %d_%s", first.version, first.name)
	}
	if !strings.Contains(first.up, "CREATE TABLE") {
		t.Fatal("init up script must create tables")
	}
	if !strings.Contains(first.down, "DROP TABLE") {
		t.Fatal("init down script must drop tables")
	}
}
