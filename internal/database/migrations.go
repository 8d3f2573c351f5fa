package database

import (
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate brings the cache schema up to date.
func (db *DB) Migrate() error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("running cache migrations: %w", err)
	}
	return nil
}

// Reset drops every cache table. Used by the CLI's --reset-cache.
func (db *DB) Reset() error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.Reset(db.DB, "migrations"); err != nil {
		return fmt.Errorf("resetting cache: %w", err)
	}
	return nil
}

func setup() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}
	return nil
}
