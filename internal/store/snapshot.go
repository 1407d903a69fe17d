package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StoredSnapshot is a named state blob in the local database.
type StoredSnapshot struct {
	Name      string
	Data      []byte
	Sealed    bool
	UpdatedAt time.Time
}

type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Get(ctx context.Context, name string) (*StoredSnapshot, error) {
	var snap StoredSnapshot
	var sealed int
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, data, sealed, updated_at FROM snapshots WHERE name = ?`, name,
	).Scan(&snap.Name, &snap.Data, &sealed, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", name, err)
	}
	snap.Sealed = sealed != 0
	if snap.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse snapshot time: %w", err)
	}
	return &snap, nil
}

// Put stores data under name, replacing any previous blob.
func (s *SnapshotStore) Put(ctx context.Context, name string, data []byte, sealed bool) error {
	sealedInt := 0
	if sealed {
		sealedInt = 1
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, data, sealed, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, sealed = excluded.sealed, updated_at = excluded.updated_at`,
		name, data, sealedInt, now,
	)
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", name, err)
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	return nil
}
