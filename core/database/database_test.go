package database

import (
	"testing"

	coreconfig "github.com/m3rciful/sessionkeeper/core/config"
)

func TestDSN(t *testing.T) {
	cfg := coreconfig.DatabaseConfig{Host: "db", Port: "5432", User: "bot", Password: "p@ss", Name: "sessions", SSLMode: "disable"}
	if got := KeywordDSN(cfg); got != "user=bot password=p@ss host=db port=5432 dbname=sessions sslmode=disable" {
		t.Fatalf("keyword dsn = %s", got)
	}
	if got := URLDSN(cfg); got != "postgres://bot:p%40ss@db:5432/sessions?sslmode=disable" {
		t.Fatalf("url dsn = %s", got)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files := listMigrationFiles(migrationsFS)
	if len(files) == 0 || files[0] != "0001_user_sessions.up.sql" {
		t.Fatalf("unexpected migrations: %v", files)
	}
	if parseVersion(files[0]) != 1 {
		t.Fatalf("version = %d", parseVersion(files[0]))
	}
	if got := countApplied(files, 0, 1); got != 1 {
		t.Fatalf("countApplied = %d", got)
	}
	if got := countApplied(files, 1, 1); got != 0 {
		t.Fatalf("countApplied no change = %d", got)
	}
}
