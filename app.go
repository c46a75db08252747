package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hazyhaar/debatehub/internal/config"
	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/engine"
	"github.com/hazyhaar/debatehub/internal/event"
	"github.com/hazyhaar/debatehub/internal/metrics"
	"github.com/hazyhaar/debatehub/internal/moderation"
	"github.com/hazyhaar/debatehub/internal/notify"
	"github.com/hazyhaar/debatehub/internal/service"
	"github.com/hazyhaar/debatehub/pkg/audit"
)

// app holds the shared runtime every command that touches debates needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *db.DB
	auditLog  *audit.SQLiteLogger
	metrics   *metrics.Metrics
	bus       *event.Bus
	engine    *engine.Engine
	endpoints *service.Endpoints
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	database, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, db: database}

	if cfg.Database.Audit {
		a.auditLog, err = audit.NewSQLiteLogger(database.DB, logger.With("component", "audit"))
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("starting audit log: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)

	a.bus = event.NewBus(reg, logger.With("component", "events"))
	notify.NewSubscriber(database, logger.With("component", "notify")).Attach(a.bus)

	deny, err := moderation.NewDenyList(cfg.Debate.DenyList)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("building deny list: %w", err)
	}

	a.engine = engine.New(database, engine.Config{
		ArgumentAward:     cfg.Debate.ArgumentAward,
		VoteAward:         cfg.Debate.VoteAward,
		LevelStep:         cfg.Debate.LevelStep,
		MaxArgumentLength: cfg.Debate.MaxArgumentLength,
		DefaultDuration:   cfg.Debate.DefaultDuration,
	},
		engine.WithPolicy(deny),
		engine.WithPublisher(a.bus),
		engine.WithMetrics(a.metrics),
		engine.WithLogger(logger.With("component", "engine")),
	)

	var auditLog audit.Logger
	if a.auditLog != nil {
		auditLog = a.auditLog
	}
	a.endpoints = service.New(a.engine, database, auditLog)
	return a, nil
}

// Close stops background writers before the database goes away.
func (a *app) Close() {
	if a.bus != nil {
		a.bus.Stop()
	}
	if a.auditLog != nil {
		a.auditLog.Close()
	}
	a.db.Close()
}
