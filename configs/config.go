// Package configs loads config.yml into the engine's per-component
// configuration, adapted from the teacher's configs.LoadConfig /
// ToBlackholeConfigs / ToStrategyConfig conversion pattern.
package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/kaelidex/arbengine/internal/allocate"
	"github.com/kaelidex/arbengine/internal/engine"
	"github.com/kaelidex/arbengine/internal/rank"
	"github.com/kaelidex/arbengine/pkg/dexsource"
	"github.com/kaelidex/arbengine/pkg/types"
)

// Config is the entire config.yml structure: RPC/relay endpoints, the
// statically configured pool set per DEX, and the per-component engine
// tuning options named across §6.
type Config struct {
	RPC      string     `yaml:"rpc"`
	Relay    RelayYAML  `yaml:"relay"`
	DEXes    []DEXYAML  `yaml:"dexes"`
	Budget   int64      `yaml:"budget"`
	Engine   EngineYAML `yaml:"engine"`
	MySQLDSN string     `yaml:"mysql_dsn"`
}

type RelayYAML struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type DEXYAML struct {
	Name  string     `yaml:"name"`
	Pools []PoolYAML `yaml:"pools"`
}

type PoolYAML struct {
	Address   string `yaml:"address"`
	Variant   string `yaml:"variant"`
	FeeBps    uint32 `yaml:"fee_bps"`
	Decimals0 uint8  `yaml:"decimals0"`
	Decimals1 uint8  `yaml:"decimals1"`
}

// EngineYAML mirrors engine.Config's tunables (§6's enumerated
// configuration options); a zero value leaves the component's own
// DefaultConfig in place.
type EngineYAML struct {
	MaxHops                int     `yaml:"max_hops"`
	MaxPaths               int     `yaml:"max_paths"`
	RefreshTTLSeconds      int     `yaml:"refresh_ttl_seconds"`
	MarketVolatility       float64 `yaml:"market_volatility"`
	RiskProfile            string  `yaml:"risk_profile"`
	RankStrategy           string  `yaml:"rank_strategy"`
	OpportunityTTLSeconds  int64   `yaml:"opportunity_ttl_seconds"`
	MinSuccessRate         float64 `yaml:"min_success_rate"`
	CapitalReserveFraction float64 `yaml:"capital_reserve_fraction"`
}

// Load reads and parses path into a Config, mirroring
// configs.LoadConfig's read-then-unmarshal pattern.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// ToEngineConfig converts the YAML tunables into engine.Config, applying
// component defaults wherever the YAML left a field at its zero value.
func (c *Config) ToEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Budget = c.Budget

	if c.Engine.MaxHops > 0 {
		cfg.Finder.MaxHops = c.Engine.MaxHops
	}
	if c.Engine.MaxPaths > 0 {
		cfg.Finder.MaxPaths = c.Engine.MaxPaths
	}
	if c.Engine.RefreshTTLSeconds > 0 {
		cfg.Graph.TTL = time.Duration(c.Engine.RefreshTTLSeconds) * time.Second
	}
	cfg.MarketVolatility = c.Engine.MarketVolatility
	if c.Engine.OpportunityTTLSeconds > 0 {
		cfg.OpportunityTTLSeconds = c.Engine.OpportunityTTLSeconds
	}
	if c.Engine.MinSuccessRate > 0 {
		cfg.Planner.MinSuccessRate = c.Engine.MinSuccessRate
	}
	if c.Engine.CapitalReserveFraction > 0 {
		cfg.Allocator.CapitalReserveFraction = c.Engine.CapitalReserveFraction
	}

	switch c.Engine.RiskProfile {
	case "conservative":
		cfg.RiskProfile = allocate.Conservative
	case "aggressive":
		cfg.RiskProfile = allocate.Aggressive
	default:
		cfg.RiskProfile = allocate.Moderate
	}

	switch c.Engine.RankStrategy {
	case "profit_biased":
		cfg.RankStrategy = rank.ProfitBiased
	case "risk_biased":
		cfg.RankStrategy = rank.RiskBiased
	case "diversity_biased":
		cfg.RankStrategy = rank.DiversityBiased
	default:
		cfg.RankStrategy = rank.Balanced
	}

	return cfg
}

// ToPoolSpecs converts one DEX's YAML pool list into dexsource.PoolSpec
// values, resolving the textual variant tag to pkg/types.Variant.
func (d DEXYAML) ToPoolSpecs() ([]dexsource.PoolSpec, error) {
	specs := make([]dexsource.PoolSpec, 0, len(d.Pools))
	for _, p := range d.Pools {
		variant, err := parseVariant(p.Variant)
		if err != nil {
			return nil, fmt.Errorf("dex %s pool %s: %w", d.Name, p.Address, err)
		}
		specs = append(specs, dexsource.PoolSpec{
			Address:   common.HexToAddress(p.Address),
			Variant:   variant,
			FeeBps:    p.FeeBps,
			Decimals0: p.Decimals0,
			Decimals1: p.Decimals1,
		})
	}
	return specs, nil
}

func parseVariant(tag string) (types.Variant, error) {
	switch tag {
	case "constant_product", "":
		return types.ConstantProduct, nil
	case "stable":
		return types.Stable, nil
	case "concentrated":
		return types.Concentrated, nil
	case "weighted":
		return types.Weighted, nil
	default:
		return 0, fmt.Errorf("unknown pool variant %q", tag)
	}
}
