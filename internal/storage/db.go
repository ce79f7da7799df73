// Package storage persists publications in Postgres, or in SQLite for local
// runs and tests.
package storage

import (
	"context"
	"crypto/md5"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"djeworker/internal/config"
	"djeworker/internal/logger"
)

// ErrUnsupportedDriver is returned for a storage driver other than postgres or sqlite.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// sqliteSchema mirrors the postgres migration. status_enum becomes a CHECK.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS publicacoes (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	numero_processo         VARCHAR(50),
	data_disponibilizacao   DATE,
	autor                   TEXT,
	reu                     TEXT DEFAULT 'Instituto Nacional do Seguro Social - INSS',
	advogado                TEXT,
	valor_principal         NUMERIC,
	valor_juros_moratorios  NUMERIC,
	honorarios_advocaticios NUMERIC,
	conteudo_completo       TEXT,
	status                  TEXT DEFAULT 'nova' CHECK (status IN ('nova', 'lida', 'enviada', 'processada')),
	data_criacao            TIMESTAMP NOT NULL,
	data_atualizacao        TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS publicacoes_processo_data_idx
	ON publicacoes (numero_processo, data_disponibilizacao);

CREATE INDEX IF NOT EXISTS publicacoes_status_idx
	ON publicacoes (status);
`

var registerMD5 sync.Once

// DB is an open database handle together with its dialect.
type DB struct {
	*sqlx.DB
	pool   *pgxpool.Pool
	driver string
	name   string
}

// Driver returns config.DriverPostgres or config.DriverSQLite.
func (db *DB) Driver() string {
	return db.driver
}

// IsPostgres reports whether the handle talks to postgres.
func (db *DB) IsPostgres() bool {
	return db.driver == config.DriverPostgres
}

// Close releases the handle and, for postgres, the pool behind it.
func (db *DB) Close() error {
	err := db.DB.Close()
	if db.pool != nil {
		db.pool.Close()
	}

	return err
}

// Open connects to the configured database. Postgres connections are retried
// ConnectAttempts times, ConnectDelaySec apart. SQLite databases get their
// schema applied inline; postgres relies on Migrate, run here when AutoMigrate
// is set.
func Open(ctx context.Context, cfg *config.StorageConfig, log *logger.Logger) (*DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, log)
	case config.DriverSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg *config.StorageConfig, log *logger.Logger) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}

	pc.ConnConfig.RuntimeParams["application_name"] = "djeworker"

	attempts := max(cfg.ConnectAttempts, 1)

	var pool *pgxpool.Pool

	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = connect(ctx, pc)
		if err == nil {
			break
		}

		log.Warn("Database connection failed", "attempt", attempt, "max_attempts", attempts, "error", err)

		if attempt == attempts {
			return nil, fmt.Errorf("connect to postgres after %d attempts: %w", attempts, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.GetConnectDelay()):
		}
	}

	if cfg.AutoMigrate {
		if err := Migrate(cfg.DSN(), MigrateUp, 0); err != nil {
			pool.Close()

			return nil, err
		}
	}

	log.Info("Connected to database", "host", cfg.Host, "name", cfg.Name)

	return &DB{
		DB:     sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"),
		pool:   pool,
		driver: config.DriverPostgres,
		name:   cfg.Name,
	}, nil
}

func connect(ctx context.Context, pc *pgxpool.Config) (*pgxpool.Pool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()

		return nil, err
	}

	return pool, nil
}

// OpenSQLite opens (or creates) a SQLite database at path and applies the schema.
func OpenSQLite(path string) (*DB, error) {
	registerMD5.Do(func() {
		_ = sqlite.RegisterDeterministicScalarFunction("md5", 1, sqliteMD5)
	})

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{DB: db, driver: config.DriverSQLite, name: path}, nil
}

// sqliteMD5 gives SQLite the md5() function postgres has built in.
func sqliteMD5(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	var data []byte

	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		data = fmt.Appendf(nil, "%v", v)
	}

	return ContentHash(string(data)), nil
}

// ContentHash returns the hex MD5 of a publication's full text.
func ContentHash(text string) string {
	sum := md5.Sum([]byte(text))

	return hex.EncodeToString(sum[:])
}
