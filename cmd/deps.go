package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	_ "github.com/kozaktomas/face-attendance/internal/database/csvfile"
	_ "github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/notify"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds the components shared by the commands.
type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	metrics    *metrics.Metrics
	capability recognizer.Capability
	client     *recognizer.Client // nil for the dlib backend
	references *postgres.ReferenceRepository
	index      *database.HNSWIndex
	store      *identity.Store
	ledger     database.Ledger
	publisher  notify.Publisher
	engine     *attendance.Engine

	closers []func() error
}

// setup loads the configuration, applies the command's flags and opens the
// identity store. With withEngine it also opens the ledger and builds the engine.
func setup(cmd *cobra.Command, withEngine bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}
	log, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &app{cfg: cfg, log: log, metrics: metrics.New(registry)}

	ctx := cmd.Context()
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if withEngine {
		if err := a.openEngine(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openCapability() error {
	switch a.cfg.Embedding.Backend {
	case config.EmbeddingDlib:
		d, err := recognizer.NewDlib(a.cfg.Embedding.ModelDir)
		if err != nil {
			return fmt.Errorf("loading dlib models: %w", err)
		}
		a.closers = append(a.closers, func() error { d.Close(); return nil })
		a.capability = recognizer.WithTimeout(d, a.cfg.Match.Timeout)
	default:
		a.client = recognizer.NewClient(a.cfg.Embedding.URL)
		a.capability = recognizer.WithTimeout(a.client, a.cfg.Match.Timeout)
	}
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	if err := a.openCapability(); err != nil {
		return err
	}

	opts := []identity.Option{
		identity.WithMode(a.cfg.Store.Mode),
		identity.WithLogger(a.log),
		identity.WithOnChange(a.metrics.SetIdentities),
	}

	if a.cfg.Database.URL != "" && a.cfg.Database.CacheEmbeddings && a.cfg.Store.Mode == config.ModeEmbedding {
		pool, err := postgres.Initialize(ctx, &a.cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		a.closers = append(a.closers, postgres.CloseGlobalPool)
		a.references = postgres.NewReferenceRepository(pool)
		opts = append(opts, identity.WithCache(a.references))
	}

	if a.cfg.Match.Index == config.IndexHNSW {
		a.index = database.NewHNSWIndex(a.cfg.Match.Metric)
		a.index.SetPath(a.cfg.Database.HNSWIndexPath)
		opts = append(opts, identity.WithIndex(a.index))
	}

	a.store = identity.NewStore(a.cfg.Store.Dir, a.capability, opts...)
	if err := a.store.Load(ctx); err != nil {
		return fmt.Errorf("loading reference faces: %w", err)
	}
	a.log.WithFields(logrus.Fields{
		"dir":        a.cfg.Store.Dir,
		"mode":       a.cfg.Store.Mode,
		"identities": a.store.Len(),
	}).Info("Reference faces loaded")
	return nil
}

func (a *app) newStrategy() facematch.Strategy {
	if a.cfg.Match.Strategy == config.StrategyVerify {
		return facematch.NewVerifyStrategy(a.capability, a.log)
	}
	s := facematch.NewDistanceStrategy(a.capability, a.cfg.Match.Metric, a.cfg.Match.Threshold, a.log)
	s.Index = a.index
	return s
}

func (a *app) openEngine(ctx context.Context) error {
	ledger, err := database.OpenLedger(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.ledger = ledger
	a.closers = append(a.closers, ledger.Close)
	if a.cfg.Ledger.Backend == config.BackendPostgres && a.references == nil {
		a.closers = append(a.closers, postgres.CloseGlobalPool)
	}

	a.publisher = notify.Noop{}
	if len(a.cfg.Kafka.Brokers) > 0 {
		p, err := notify.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.log)
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, p.Close)
	}

	a.engine = attendance.NewEngine(a.store, a.newStrategy(), a.ledger,
		attendance.WithDedupe(a.cfg.Ledger.Dedupe),
		attendance.WithSameDay(a.cfg.Ledger.SameDay),
		attendance.WithWriteRetries(a.cfg.Ledger.WriteRetries),
		attendance.WithHashStrategy(facematch.NewHashStrategy(a.cfg.Match.HashThreshold)),
		attendance.WithPublisher(a.publisher),
		attendance.WithMetrics(a.metrics),
		attendance.WithLogger(a.log),
	)
	a.log.WithFields(logrus.Fields{
		"strategy": a.engine.StrategyName(),
		"dedupe":   a.engine.DedupePolicy(),
		"ledger":   a.cfg.Ledger.Backend,
	}).Debug("Engine ready")
	return nil
}

// Close releases everything setup opened, in reverse order.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.WithError(err).Warn("Failed to release resources")
	}
}
