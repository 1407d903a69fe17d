// Package snapshot persists the state store between runs as one named blob,
// optionally sealed with a passphrase.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/shopmate/internal/state"
	"github.com/dukerupert/shopmate/internal/store"
)

const DefaultName = "shopmate-storage"

type Config struct {
	Name       string
	Passphrase string
	// Delay coalesces bursts of changes into one write.
	Delay time.Duration
}

type Persister struct {
	snapshots *store.SnapshotStore
	state     *state.Store
	cfg       Config
	logger    *slog.Logger

	writeMu sync.Mutex
	dirty   chan struct{}
	unsub   func()
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(ss *store.SnapshotStore, st *state.Store, cfg Config, logger *slog.Logger) *Persister {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 200 * time.Millisecond
	}
	return &Persister{
		snapshots: ss,
		state:     st,
		cfg:       cfg,
		logger:    logger,
		dirty:     make(chan struct{}, 1),
	}
}

// Load restores the store from the saved snapshot. It reports false when
// there is nothing saved yet.
func (p *Persister) Load(ctx context.Context) (bool, error) {
	saved, err := p.snapshots.Get(ctx, p.cfg.Name)
	if err != nil {
		return false, err
	}
	if saved == nil {
		return false, nil
	}

	data := saved.Data
	if saved.Sealed {
		if p.cfg.Passphrase == "" {
			return false, ErrSealed
		}
		if data, err = Open(data, p.cfg.Passphrase, p.cfg.Name); err != nil {
			return false, fmt.Errorf("open snapshot: %w", err)
		}
	}

	var snap state.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	p.state.Restore(snap)
	p.logger.Info("snapshot loaded", "name", p.cfg.Name, "items", len(snap.Items), "pending", len(snap.PendingActions), "saved_at", saved.UpdatedAt)
	return true, nil
}

// Save writes the current state.
func (p *Persister) Save(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	data, err := json.Marshal(p.state.Snapshot())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	sealed := p.cfg.Passphrase != ""
	if sealed {
		if data, err = Seal(data, p.cfg.Passphrase, p.cfg.Name); err != nil {
			return fmt.Errorf("seal snapshot: %w", err)
		}
	}
	return p.snapshots.Put(ctx, p.cfg.Name, data, sealed)
}

// Start saves after every burst of state changes until Close.
func (p *Persister) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.unsub = p.state.Subscribe(func(state.Change) {
		select {
		case p.dirty <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.dirty:
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.Delay):
			}

			if err := p.Save(ctx); err != nil {
				p.logger.Error("save snapshot", "error", err)
			}
		}
	}()
}

// Close stops the background writer and writes a final snapshot.
func (p *Persister) Close(ctx context.Context) error {
	if p.unsub != nil {
		p.unsub()
	}
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return p.Save(ctx)
}
