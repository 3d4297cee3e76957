// Command arbengine wires the discover/plan/record_execution pipeline
// to a live RPC endpoint, private relay, and MySQL journal, adapted from
// the teacher's cmd/main.go (env/config load, ethclient.Dial, a report
// channel drained in the main goroutine).
package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/kaelidex/arbengine/configs"
	"github.com/kaelidex/arbengine/internal/db"
	"github.com/kaelidex/arbengine/internal/engine"
	"github.com/kaelidex/arbengine/internal/graph"
	"github.com/kaelidex/arbengine/internal/plan"
	"github.com/kaelidex/arbengine/pkg/dexsource"
	"github.com/kaelidex/arbengine/pkg/relayclient"
	"github.com/kaelidex/arbengine/pkg/rpcclient"
	"github.com/kaelidex/arbengine/pkg/types"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file found, continuing on process environment")
	}

	configPath := os.Getenv("ARBENGINE_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yml"
	}
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rpc, err := rpcclient.Dial(ctx, cfg.RPC, rpcclient.WithPollInterval(3*time.Second), rpcclient.WithTimeout(5*time.Minute))
	if err != nil {
		log.WithError(err).Fatal("dial rpc endpoint")
	}

	var journal *db.Journal
	if cfg.MySQLDSN != "" {
		journal, err = db.Open(cfg.MySQLDSN)
		if err != nil {
			log.WithError(err).Fatal("open journal")
		}
		defer journal.Close()
	}

	// simulator stays a nil interface (not a typed nil *relayclient.Client)
	// when no relay is configured, so plan.Planner's "if p.simulator != nil"
	// check behaves correctly.
	var simulator plan.BundleSimulator
	if cfg.Relay.Endpoint != "" {
		relayCfg := relayclient.Config{Endpoint: cfg.Relay.Endpoint, Timeout: time.Duration(cfg.Relay.TimeoutSeconds) * time.Second}
		simulator = relayclient.New(relayCfg, nil)
	}

	sources := make([]graph.Source, 0, len(cfg.DEXes))
	for _, dex := range cfg.DEXes {
		specs, err := dex.ToPoolSpecs()
		if err != nil {
			log.WithError(err).Fatalf("resolve pool specs for dex %s", dex.Name)
		}
		source, err := dexsource.New(dex.Name, rpc.EthCaller(), specs)
		if err != nil {
			log.WithError(err).Fatalf("construct dex source %s", dex.Name)
		}
		sources = append(sources, source)
	}

	e, err := engine.New(cfg.ToEngineConfig(), sources, simulator, clock.New(), log)
	if err != nil {
		log.WithError(err).Fatal("construct engine")
	}

	go pollGas(ctx, e, rpc, log)

	startToken := types.Token{} // zero token; nothing in this binary sets it
	runLoop(ctx, e, journal, startToken, log)
}

// pollGas feeds Engine.ObserveGas from the live chain, per §4.9's
// "updated ... by querying the RPC client" requirement.
func pollGas(ctx context.Context, e *engine.Engine, rpc *rpcclient.Client, log logrus.FieldLogger) {
	ticker := time.NewTicker(12 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			baseFee, err := rpc.BaseFee(ctx)
			if err != nil {
				log.WithError(err).Warn("poll base fee")
				continue
			}
			gasPrice, err := rpc.GasPrice(ctx)
			if err != nil {
				log.WithError(err).Warn("poll gas price")
				continue
			}
			e.ObserveGas(time.Now(), weiToGwei(baseFee), weiToGwei(gasPrice))
		}
	}
}

func runLoop(ctx context.Context, e *engine.Engine, journal *db.Journal, startToken types.Token, log logrus.FieldLogger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			opps, err := e.Discover(ctx, startToken, now)
			if err != nil {
				log.WithError(err).Warn("discover")
				continue
			}
			for _, opp := range opps {
				if journal != nil {
					if err := journal.RecordOpportunity(opp); err != nil {
						log.WithError(err).Warn("record opportunity")
					}
				}
				built, err := e.Plan(ctx, opp, types.Atomic, true, now)
				if err != nil {
					log.WithError(err).Debug("plan rejected")
					continue
				}
				if journal != nil {
					if err := journal.RecordPlan(opp.ID, built); err != nil {
						log.WithError(err).Warn("record plan")
					}
				}
				log.WithFields(logrus.Fields{"opportunity": opp.ID, "plan": built.ID, "profit": opp.ExpectedProfit.String()}).
					Info("opportunity planned")
			}
		}
	}
}

func weiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9))
	v, _ := f.Float64()
	return v
}
