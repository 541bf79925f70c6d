package database

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bpmigrate/bpmigrate/internal/config"
)

// Pools holds one open pool per target key, typically "component/slot".
type Pools struct {
	dbs     map[string]*sql.DB
	drivers map[string]string
}

// NewPools returns an empty set of pools.
func NewPools() *Pools {
	return &Pools{dbs: map[string]*sql.DB{}, drivers: map[string]string{}}
}

// Add registers an already open pool under key.
func (p *Pools) Add(key string, db *sql.DB, driver string) {
	p.dbs[key] = db
	p.drivers[key] = driver
}

// OpenAll opens and pings every target concurrently. If any target fails,
// the pools already opened are closed and the first error is returned.
func OpenAll(ctx context.Context, targets map[string]config.Database) (*Pools, error) {
	p := NewPools()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for key, target := range targets {
		g.Go(func() error {
			db, err := Open(gctx, target)
			if err != nil {
				return err
			}
			mu.Lock()
			p.Add(key, db, target.Driver)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Get returns the pool and dialect of key.
func (p *Pools) Get(key string) (*sql.DB, Dialect, bool) {
	db, ok := p.dbs[key]
	if !ok {
		return nil, Dialect{}, false
	}
	return db, DialectFor(p.drivers[key]), true
}

// Keys returns the target keys in sorted order.
func (p *Pools) Keys() []string {
	keys := make([]string, 0, len(p.dbs))
	for k := range p.dbs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close closes every pool.
func (p *Pools) Close() {
	for _, db := range p.dbs {
		db.Close()
	}
}
