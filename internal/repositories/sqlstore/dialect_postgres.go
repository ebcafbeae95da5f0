package sqlstore

import (
	"errors"

	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

func postgresDialect() dialect {
	return dialect{
		driver: DriverPostgres,
		setup:  []string{postgresSchema},
		notIn: func(column string) string {
			return "NOT (" + column + " = ANY(?))"
		},
		listArg: func(values []string) (any, error) {
			if values == nil {
				values = []string{}
			}
			return pq.Array(values), nil
		},
		uniqueErr: func(err error) (string, bool) {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
				return pqErr.Constraint, true
			}
			return "", false
		},
	}
}
