package history

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/adapter"
)

// dialect owns the one statement whose syntax the relational
// backends cannot share: creating the ledger table with an
// autoincrementing primary key. Everything else is written with ?
// placeholders and rebound by the adapter.
type dialect interface {
	createLedgerQuery(table string) string
}

func dialectFor(flavor adapter.Flavor) (dialect, error) {
	switch flavor {
	case adapter.MySQL:
		return mysqlDialect{}, nil
	case adapter.Postgres:
		return postgresDialect{}, nil
	case adapter.SQLite:
		return sqliteDialect{}, nil
	}

	return nil, errors.Wrapf(adapter.ErrUnknownFlavor, "no ledger dialect for [%s]", flavor)
}

type mysqlDialect struct{}

func (mysqlDialect) createLedgerQuery(table string) string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			batch BIGINT NOT NULL,
			executed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB;
	`

	return fmt.Sprintf(createSQL, table)
}

type postgresDialect struct{}

func (postgresDialect) createLedgerQuery(table string) string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			batch BIGINT NOT NULL,
			executed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	return fmt.Sprintf(createSQL, table)
}

type sqliteDialect struct{}

func (sqliteDialect) createLedgerQuery(table string) string {
	const createSQL = `
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name VARCHAR(255) NOT NULL UNIQUE,
			batch BIGINT NOT NULL,
			executed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	return fmt.Sprintf(createSQL, table)
}
