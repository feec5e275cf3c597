package strata

import (
	"context"
	"io/ioutil"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/strata-db/strata/adapter"
	"github.com/strata-db/strata/internal/retry"
)

var ErrDatabaseURLNotDefined = errors.New("database url was not defined")

type CloserFunc func() error

// Config is the project-level migration configuration, usually
// loaded from a strata.yaml file.
type Config struct {
	DatabaseURL   string
	MigrationsDir string
	Ledger        string
}

type configFile struct {
	Version    string `yaml:"version"`
	Migrations struct {
		LocalDir    string `yaml:"local_dir"`
		DatabaseURL string `yaml:"database_url"`
		Ledger      string `yaml:"ledger"`
	} `yaml:"migrations"`
}

// LoadConfig reads a YAML configuration file. Values wrapped in %%
// markers resolve through the environment, so credentials stay out
// of the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read strata configuration file")
	}

	var cf configFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return cfg, errors.Wrap(err, "could not parse strata configuration file")
	}

	cfg.DatabaseURL = resolveEnv(cf.Migrations.DatabaseURL)
	cfg.MigrationsDir = resolveEnv(cf.Migrations.LocalDir)
	cfg.Ledger = cf.Migrations.Ledger

	if cfg.DatabaseURL == "" {
		return cfg, ErrDatabaseURLNotDefined
	}

	return cfg, nil
}

func resolveEnv(v string) string {
	if strings.HasPrefix(v, "%%") && strings.HasSuffix(v, "%%") {
		return os.Getenv(strings.ReplaceAll(v, "%%", ""))
	}

	return v
}

// NewMigratorFromConfig connects to the database named by the config
// URL scheme and builds a migrator over it. The returned closer owns
// the connection pool.
func NewMigratorFromConfig(cfg Config, opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	a, closer, err := connect(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	if cfg.MigrationsDir != "" {
		opts = append(opts, UseLocalDir(cfg.MigrationsDir))
	}

	if cfg.Ledger != "" {
		opts = append(opts, UseLedger(cfg.Ledger))
	}

	m, err := NewMigrator(a, opts...)
	if err != nil {
		if cErr := closer(); cErr != nil {
			err = errors.Wrap(err, cErr.Error())
		}
		return nil, nil, err
	}

	return m, closer, nil
}

// NewMigratorFromYAML is NewMigratorFromConfig over a YAML file path.
func NewMigratorFromYAML(path string, opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	return NewMigratorFromConfig(cfg, opts...)
}

const connectAttempts = 10

func connect(databaseURL string) (adapter.Adapter, CloserFunc, error) {
	driver, dsn, flavor, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not open [%s] connection", driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := retry.Incremental(ctx, 500*time.Millisecond, connectAttempts, func(attempt int) error {
		if pErr := db.PingContext(ctx); pErr != nil {
			return retry.Error(errors.Wrapf(pErr, "could not ping [%s] database", driver), attempt)
		}

		return nil
	}); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	a, err := adapter.NewSQL(db, flavor)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return a, db.Close, nil
}

func parseDatabaseURL(databaseURL string) (driver, dsn string, flavor adapter.Flavor, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "mysql://"):
		return "mysql", strings.TrimPrefix(databaseURL, "mysql://"), adapter.MySQL, nil
	case strings.HasPrefix(databaseURL, "postgres://"):
		return "postgres", databaseURL, adapter.Postgres, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(databaseURL, "sqlite://"), adapter.SQLite, nil
	}

	return "", "", "", errors.Wrapf(adapter.ErrUnknownFlavor, "unsupported database url [%s]", databaseURL)
}
