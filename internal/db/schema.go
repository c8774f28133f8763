package db

import (
	"context"
	_ "embed"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// statements splits the embedded schema into individual statements.
func statements(schema string) []string {
	var stmts []string
	for _, s := range strings.Split(schema, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// Migrate creates or upgrades the catalog tables. It is safe to run repeatedly.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range statements(schemaSQL) {
		if _, err := db.q.Exec(ctx, stmt); err != nil {
			return storeError(err, "applying schema")
		}
	}
	return nil
}
