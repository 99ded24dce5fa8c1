package db

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Placeholder renders the i-th (1-based) bind parameter.
type Placeholder func(i int) string

// Dollar renders Postgres placeholders ($1, $2, ...).
func Dollar(i int) string { return fmt.Sprintf("$%d", i) }

// Question renders SQLite placeholders (?).
func Question(int) string { return "?" }

// UpsertConfig describes a single-row INSERT ... ON CONFLICT DO UPDATE.
type UpsertConfig struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	// Increment columns are added to on conflict: col = table.col + EXCLUDED.col.
	Increment []string
	// Overwrite columns take the new value on conflict.
	Overwrite []string
}

// UpsertSQL builds the statement for cfg. The result is valid for both
// Postgres and SQLite, which share the EXCLUDED pseudo-table.
func UpsertSQL(cfg UpsertConfig, ph Placeholder) (string, error) {
	if cfg.Table == "" || len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: table and columns required")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}

	cols := make(map[string]bool, len(cfg.Columns))
	for _, c := range cfg.Columns {
		cols[c] = true
	}

	var sets []string
	for _, c := range cfg.Increment {
		if !cols[c] {
			return "", eris.Errorf("db: upsert: increment column %q not inserted", c)
		}
		sets = append(sets, fmt.Sprintf("%s = %s.%s + EXCLUDED.%s", c, cfg.Table, c, c))
	}
	for _, c := range cfg.Overwrite {
		if !cols[c] {
			return "", eris.Errorf("db: upsert: overwrite column %q not inserted", c)
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}

	placeholders := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		placeholders[i] = ph(i + 1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		cfg.Table,
		strings.Join(cfg.Columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(cfg.ConflictKeys, ", "),
	)
	if len(sets) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	return b.String(), nil
}

// MustUpsertSQL is UpsertSQL for statically known configs.
func MustUpsertSQL(cfg UpsertConfig, ph Placeholder) string {
	s, err := UpsertSQL(cfg, ph)
	if err != nil {
		panic(err)
	}
	return s
}
