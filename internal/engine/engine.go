package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"moldline/internal/catalog"
	"moldline/internal/config"
	"moldline/internal/domain"
	"moldline/internal/events"
	"moldline/internal/logging"
	"moldline/internal/metrics"
	"moldline/internal/repo"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrFinalStage     = errors.New("order already at final stage")
)

// BacklogSource lists orders waiting for a production slot.
type BacklogSource interface {
	ListBacklog(ctx context.Context) ([]domain.Order, error)
}

// MoldRegistry lists the molds that may take allocations.
type MoldRegistry interface {
	ListActiveMolds(ctx context.Context) ([]domain.Mold, error)
}

// LaborRegistry lists the active roster of a department.
type LaborRegistry interface {
	ListActiveWorkers(ctx context.Context, department string) ([]domain.Worker, error)
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Backlog BacklogSource
	Molds   MoldRegistry
	Labor   LaborRegistry
	Events  events.Writer
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time

	flight *singleflight.Group
}

// New wires an engine whose collaborators are all served by the workspace
// database.
func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:      db,
		Repo:    r,
		Backlog: r,
		Molds:   r,
		Labor:   r,
		Events:  events.Writer{},
		Config:  cfg,
		Logger:  zap.NewNop(),
		Now:     time.Now,
		flight:  new(singleflight.Group),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	return logging.OrNop(e.Logger)
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// AdvanceOrders moves each order to the next stage of the configured
// pipeline. An order with no stage enters the first one. The batch commits
// as a whole or not at all.
func (e Engine) AdvanceOrders(ctx context.Context, orderIDs []string, actorID string) ([]domain.Order, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	if len(orderIDs) == 0 {
		return nil, fmt.Errorf("%w: order ids are required", ErrInvalidRequest)
	}
	stages := e.Config.Pipeline.Stages
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := e.stamp()
	out := make([]domain.Order, 0, len(orderIDs))
	seen := map[string]bool{}
	for _, id := range orderIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		o, err := e.Repo.GetOrderTx(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		next, err := nextStage(stages, o.Stage)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		if err := e.Repo.UpdateOrderStageTx(ctx, tx, id, next, now); err != nil {
			return nil, fmt.Errorf("order %s: %w", id, err)
		}
		if err := e.Events.Append(ctx, tx, events.OrderStageAdvanced, "", "order", id, actorID, events.Payload{"from": o.Stage, "to": next}); err != nil {
			return nil, err
		}
		o.Stage = next
		o.UpdatedAt = now
		out = append(out, o)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for _, o := range out {
		e.Metrics.ObserveAdvance(o.Stage)
		e.log().Info("order advanced", zap.String("order_id", o.ID), zap.String("stage", o.Stage), zap.String("actor_id", actorID))
	}
	return out, nil
}

func nextStage(stages []string, current string) (string, error) {
	if len(stages) == 0 {
		return "", errors.New("pipeline has no stages")
	}
	if current == "" {
		return stages[0], nil
	}
	for i, st := range stages {
		if st != current {
			continue
		}
		if i == len(stages)-1 {
			return "", ErrFinalStage
		}
		return stages[i+1], nil
	}
	return "", fmt.Errorf("%w: stage %q is not in the pipeline", ErrInvalidRequest, current)
}

// ImportSummary counts the records written by ImportCatalog.
type ImportSummary struct {
	Orders  int `json:"orders"`
	Molds   int `json:"molds"`
	Workers int `json:"workers"`
}

// ImportCatalog upserts every record of f in one transaction.
func (e Engine) ImportCatalog(ctx context.Context, f *catalog.File, actorID string) (ImportSummary, error) {
	if f == nil {
		return ImportSummary{}, fmt.Errorf("%w: catalog is empty", ErrInvalidRequest)
	}
	orders, molds, workers, err := f.Records(e.now())
	if err != nil {
		return ImportSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ImportSummary{}, err
	}
	defer tx.Rollback()
	for _, o := range orders {
		if err := e.Repo.UpsertOrderTx(ctx, tx, o); err != nil {
			return ImportSummary{}, fmt.Errorf("upsert order %s: %w", o.ID, err)
		}
	}
	for _, m := range molds {
		if err := e.Repo.UpsertMoldTx(ctx, tx, m); err != nil {
			return ImportSummary{}, fmt.Errorf("upsert mold %s: %w", m.ID, err)
		}
	}
	for _, w := range workers {
		if err := e.Repo.UpsertWorkerTx(ctx, tx, w); err != nil {
			return ImportSummary{}, fmt.Errorf("upsert worker %s: %w", w.ID, err)
		}
	}
	sum := ImportSummary{Orders: len(orders), Molds: len(molds), Workers: len(workers)}
	if err := e.Events.Append(ctx, tx, events.CatalogImported, "", "catalog", "", actorID, events.Payload{
		"orders": sum.Orders, "molds": sum.Molds, "workers": sum.Workers,
	}); err != nil {
		return ImportSummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return ImportSummary{}, err
	}
	e.log().Info("catalog imported", zap.Int("orders", sum.Orders), zap.Int("molds", sum.Molds), zap.Int("workers", sum.Workers))
	return sum, nil
}
