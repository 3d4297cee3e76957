// Package graph maintains the directed multigraph of tokens and pools
// that the path finder (C3) walks, refreshed from a configured set of
// DEX sources on a TTL, per §4.2.
package graph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kaelidex/arbengine/pkg/types"
)

// Source is the external DEX pool source collaborator named in §6: a
// narrow pull interface, never a push/streaming feed.
type Source interface {
	Name() string
	ListPools(ctx context.Context) ([]*types.Pool, error)
}

// Edge is one directed hop out of a token: swap through Pool lands you
// on To.
type Edge struct {
	To   types.Token
	Pool *types.Pool
}

// Config configures refresh cadence, concurrency, and the filters
// applied to every fetched pool set.
type Config struct {
	TTL              time.Duration
	FetchConcurrency int64
	ArenaSize        int
	Filters          Filters
}

// DefaultConfig matches the teacher's conservative defaults elsewhere
// in the config surface: a short TTL, modest fan-out, and a generous
// arena.
func DefaultConfig() Config {
	return Config{
		TTL:              5 * time.Second,
		FetchConcurrency: 8,
		ArenaSize:        50_000,
	}
}

func (c Config) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("%w: graph ttl must be positive", types.ErrInvalidBudget)
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("%w: fetch concurrency must be positive", types.ErrInvalidBudget)
	}
	if c.ArenaSize <= 0 {
		return fmt.Errorf("%w: arena size must be positive", types.ErrInvalidBudget)
	}
	return nil
}

// generation is one immutable, fully-built graph: the arena of pools
// and the adjacency built from them. Readers obtained via Snapshot
// never see a generation under construction.
type generation struct {
	pools      *lru.Cache[string, *types.Pool]
	successors map[string][]Edge
	builtAt    time.Time
}

// PoolGraph is the generational, concurrency-safe pool graph. Zero
// value is not usable; construct with New.
type PoolGraph struct {
	cfg     Config
	sources []Source
	clock   clock.Clock
	log     logrus.FieldLogger

	mu      sync.Mutex // serializes refresh; readers never block on it
	current atomic.Pointer[generation]
}

// New builds a PoolGraph over the given sources. An empty generation is
// published immediately so Snapshot/successors/edge are safe to call
// before the first refresh completes.
func New(cfg Config, sources []Source, clk clock.Clock, log logrus.FieldLogger) (*PoolGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	g := &PoolGraph{cfg: cfg, sources: sources, clock: clk, log: log}
	empty, err := newGeneration(cfg.ArenaSize)
	if err != nil {
		return nil, err
	}
	g.current.Store(empty)
	return g, nil
}

func newGeneration(arenaSize int) (*generation, error) {
	cache, err := lru.New[string, *types.Pool](arenaSize)
	if err != nil {
		return nil, fmt.Errorf("allocate pool arena: %w", err)
	}
	return &generation{pools: cache, successors: make(map[string][]Edge)}, nil
}

// Snapshot returns an immutable handle to the current graph generation.
// Callers hold it for the duration of a single finder run; it never
// mutates under them even if a refresh races concurrently.
func (g *PoolGraph) Snapshot() *Snapshot {
	return &Snapshot{gen: g.current.Load()}
}

// Refresh is idempotent within the configured TTL: if the published
// generation is younger than TTL it returns immediately. Otherwise it
// fetches from every source in parallel (bounded by FetchConcurrency),
// filters, builds a new generation off to the side, and publishes it
// with one pointer store.
func (g *PoolGraph) Refresh(ctx context.Context, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cur := g.current.Load(); now.Sub(cur.builtAt) < g.cfg.TTL && !cur.builtAt.IsZero() {
		return nil
	}

	sem := semaphore.NewWeighted(g.cfg.FetchConcurrency)
	grp, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var fetched []*types.Pool
	var failures int

	for _, src := range g.sources {
		src := src
		grp.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil // context cancelled; surfaced by grp.Wait via ctx.Err()
			}
			defer sem.Release(1)

			pools, err := src.ListPools(gctx)
			if err != nil {
				g.log.WithError(err).WithField("source", src.Name()).Warn("dex source unavailable, skipping")
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			fetched = append(fetched, pools...)
			mu.Unlock()
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return fmt.Errorf("refresh pool graph: %w", err)
	}

	if len(fetched) == 0 && failures > 0 {
		return fmt.Errorf("%w: all %d dex sources failed", types.ErrRefreshStale, failures)
	}

	survivors := g.cfg.Filters.Apply(fetched)

	next, err := newGeneration(g.cfg.ArenaSize)
	if err != nil {
		return err
	}
	for _, p := range survivors {
		if err := p.Validate(); err != nil {
			g.log.WithError(err).WithField("pool", p.Address.Hex()).Warn("dropping invalid pool")
			continue
		}
		fresh := *p
		fresh.RefreshedAt = now
		next.add(&fresh)
	}
	next.builtAt = now

	g.current.Store(next)
	return nil
}

func (gen *generation) add(p *types.Pool) {
	gen.pools.Add(p.Address.Hex(), p)
	gen.successors[p.Token0.Address.Hex()] = append(gen.successors[p.Token0.Address.Hex()], Edge{To: p.Token1, Pool: p})
	gen.successors[p.Token1.Address.Hex()] = append(gen.successors[p.Token1.Address.Hex()], Edge{To: p.Token0, Pool: p})
}

// Snapshot is an immutable handle into one graph generation, safe for
// concurrent reads. It implements the successors/edge query surface
// from §4.2.
type Snapshot struct {
	gen *generation
}

// Successors returns every (token, pool) edge leaving token, in no
// particular order; callers needing determinism (the path finder) sort
// by (dex_id, fee_bps, pool_address) themselves.
func (s *Snapshot) Successors(token types.Token) []Edge {
	return s.gen.successors[token.Address.Hex()]
}

// Edge returns every pool directly connecting from to to, across all
// registered DEXes.
func (s *Snapshot) Edge(from, to types.Token) []*types.Pool {
	var pools []*types.Pool
	for _, e := range s.gen.successors[from.Address.Hex()] {
		if e.To.Address == to.Address {
			pools = append(pools, e.Pool)
		}
	}
	return pools
}

// Pool looks up a pool by address in the arena.
func (s *Snapshot) Pool(addr string) (*types.Pool, bool) {
	return s.gen.pools.Get(addr)
}

// BuiltAt reports when this generation was published.
func (s *Snapshot) BuiltAt() time.Time {
	return s.gen.builtAt
}
