package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationURL rewrites a postgres:// URL to the scheme the pgx v5 migrate driver registers.
func migrationURL(connStr string) (string, error) {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connStr, prefix) {
			return "pgx5://" + strings.TrimPrefix(connStr, prefix), nil
		}
	}
	if strings.HasPrefix(connStr, "pgx5://") {
		return connStr, nil
	}
	return "", fmt.Errorf("migrations need a URL-style connection string, got %q", redact(connStr))
}

func redact(connStr string) string {
	if i := strings.Index(connStr, "@"); i >= 0 {
		return "***" + connStr[i:]
	}
	return connStr
}

// RunMigrations applies every pending up migration. It uses its own connection.
func RunMigrations(connStr string) error {
	url, err := migrationURL(connStr)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return fmt.Errorf("could not init migrations: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
