package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/remote/*.sql migrations/local/*.sql
var migrations embed.FS

// Schema selects which set of migrations a database gets.
type Schema string

const (
	// SchemaRemote is the collection store served by shopmated.
	SchemaRemote Schema = "remote"
	// SchemaLocal is the device-side snapshot database.
	SchemaLocal Schema = "local"
)

const migrateTimeout = 30 * time.Second

// dsn adds the pragmas every connection needs. modernc.org/sqlite applies
// each _pragma on connect.
func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Open opens the SQLite database at dbPath and brings it up to the latest
// version of schema.
func Open(dbPath string, schema Schema) (*sql.DB, error) {
	fsys, err := schemaFS(schema)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(ctx, db, fsys); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func schemaFS(schema Schema) (fs.FS, error) {
	switch schema {
	case SchemaRemote, SchemaLocal:
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
	sub, err := fs.Sub(migrations, "migrations/"+string(schema))
	if err != nil {
		return nil, fmt.Errorf("migrations for %s: %w", schema, err)
	}
	return sub, nil
}

func migrate(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
