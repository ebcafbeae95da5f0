package sqlstore

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

func sqliteDialect() dialect {
	return dialect{
		driver: DriverSQLite,
		setup: []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA foreign_keys = ON",
			sqliteSchema,
		},
		notIn: func(column string) string {
			return column + " NOT IN (SELECT value FROM json_each(?))"
		},
		listArg: func(values []string) (any, error) {
			if values == nil {
				values = []string{}
			}
			raw, err := json.Marshal(values)
			if err != nil {
				return nil, err
			}
			return string(raw), nil
		},
		uniqueErr: func(err error) (string, bool) {
			var sqliteErr sqlite3.Error
			if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
				return "", false
			}
			// Message format: "UNIQUE constraint failed: products.slug"
			msg := sqliteErr.Error()
			if idx := strings.LastIndex(msg, ": "); idx >= 0 {
				return strings.TrimSpace(msg[idx+2:]), true
			}
			return msg, true
		},
	}
}
