package riskengine

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"riskengine/src/breaker"
	"riskengine/src/connectors"
	"riskengine/src/database"
	"riskengine/src/engine"
	"riskengine/src/portfolio"
	"riskengine/src/publisher"
	"riskengine/src/repository"
	"riskengine/src/risk"
	"riskengine/src/security"
	"riskengine/src/server"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type RiskEngine struct {
	Log *logrus.Entry
}

// Start wires the engine with its feeds, sinks and HTTP surface and blocks
// until a signal arrives or the breaker halts the loop.
func (r *RiskEngine) Start() error {
	if r.Log == nil {
		r.Log = logrus.WithField("cmd", "engine")
	}
	cfg := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	var (
		journal    *repository.RiskEventRepository
		exceptions *repository.ExceptionRepository
	)
	if database.GetConfig().EnableDB {
		if err := database.InitMainDB(); err != nil {
			r.Log.WithError(err).Error("Failed to connect to main database")
			return err
		}
		journal = repository.NewRiskEventRepository()
		exceptions = repository.NewExceptionRepository()
	}

	pubCfg := publisher.GetConfig()
	var sinks *publisher.Sinks
	var err error
	if journal != nil {
		sinks, err = publisher.BuildSinks(ctx, r.Log, pubCfg, journal)
	} else {
		sinks, err = publisher.BuildSinks(ctx, r.Log, pubCfg, nil)
	}
	if err != nil {
		r.Log.WithError(err).Error("Failed to build publisher sinks")
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			r.Log.WithError(err).Warn("closing sinks")
		}
	}()

	pub := publisher.NewPublisher(r.Log, pubCfg, sinks.List...)

	store, err := portfolio.NewStoreFromConfig(r.Log, portfolio.GetConfig())
	if err != nil {
		return err
	}
	breakerCfg := breaker.GetConfig()
	components := engine.Components{
		Store:     store,
		Breaker:   breaker.NewBreaker(r.Log, breakerCfg.Limits()),
		Weekly:    breaker.NewWeeklyTarget(breakerCfg.WeeklyTargetPct, store.Location()),
		Adjuster:  risk.NewAdjuster(r.Log, risk.GetConfig()),
		Publisher: pub,
	}
	if exceptions != nil {
		components.Exceptions = exceptions
	}
	eng := engine.New(r.Log, engine.GetConfig(), components)

	// the publisher outlives the loop so the halt command still drains
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	pub.Start(pubCtx)
	defer func() {
		stopPublisher()
		pub.Wait()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(gctx)
	})

	connCfg := connectors.GetConfig()
	if connCfg.PriceFeedURL != "" {
		feed := connectors.NewPriceFeed(r.Log, connCfg, eng)
		g.Go(func() error {
			return feed.Run(gctx)
		})
	} else {
		r.Log.Warn("PRICE_FEED_URL not set, waiting for ticks from other producers")
	}

	if cfg.EnableInbound && connCfg.InboundRedisAddr != "" {
		client := connectors.NewRedisClient(connCfg)
		defer client.Close()
		inbound := connectors.NewRedisInbound(r.Log, client, connCfg, eng)
		g.Go(func() error {
			return inbound.Run(gctx)
		})
	}

	if cfg.EnableServer {
		routes := server.Routes{
			Engine:   eng,
			Verifier: security.NewTokenVerifier(security.GetConfig().OverrideTokenHash),
		}
		if journal != nil {
			routes.Events = journal
		}
		g.Go(func() error {
			return server.StartServer(gctx, server.GetConfig(), server.NewRouter(routes))
		})
	}

	r.Log.WithField("service", cfg.ServiceName).Info("risk engine started")
	if err := g.Wait(); err != nil {
		r.Log.WithError(err).Error("risk engine stopped")
		return err
	}
	r.Log.Info("risk engine stopped")
	return nil
}
