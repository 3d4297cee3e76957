package engine

import (
	"fmt"

	"github.com/kaelidex/arbengine/internal/allocate"
	"github.com/kaelidex/arbengine/internal/evaluate"
	"github.com/kaelidex/arbengine/internal/gasopt"
	"github.com/kaelidex/arbengine/internal/graph"
	"github.com/kaelidex/arbengine/internal/pathfind"
	"github.com/kaelidex/arbengine/internal/plan"
	"github.com/kaelidex/arbengine/internal/rank"
	"github.com/kaelidex/arbengine/internal/risk"
	"github.com/kaelidex/arbengine/pkg/types"
)

// Config aggregates every component's config under the discover/plan
// entry points, matching §6's enumerated configuration options.
type Config struct {
	Graph     graph.Config
	Finder    pathfind.Config
	Evaluator evaluate.Config
	Risk      risk.Config
	Allocator allocate.Config
	Ranker    rank.Config
	Planner   plan.Config
	Gas       gasopt.Config

	Budget           int64 // base units of the start token
	MarketVolatility float64
	RiskProfile      allocate.RiskProfile
	RankStrategy     rank.Strategy
	OpportunityTTLSeconds int64
}

func DefaultConfig() Config {
	return Config{
		Graph:                 graph.DefaultConfig(),
		Finder:                pathfind.DefaultConfig(),
		Evaluator:             evaluate.DefaultConfig(),
		Risk:                  risk.DefaultConfig(),
		Allocator:             allocate.DefaultConfig(),
		Ranker:                rank.DefaultConfig(),
		Planner:               plan.DefaultConfig(),
		Gas:                   gasopt.DefaultConfig(),
		MarketVolatility:      0,
		RiskProfile:           allocate.Moderate,
		RankStrategy:          rank.Balanced,
		OpportunityTTLSeconds: 12,
	}
}

func (c Config) Validate() error {
	if err := c.Graph.Validate(); err != nil {
		return err
	}
	if err := c.Evaluator.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Allocator.Validate(); err != nil {
		return err
	}
	if err := c.Planner.Validate(); err != nil {
		return err
	}
	if err := c.Gas.Validate(); err != nil {
		return err
	}
	if c.Budget <= 0 {
		return fmt.Errorf("%w: budget must be positive", types.ErrInvalidBudget)
	}
	return nil
}
