package engine

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moldline/internal/domain"
	"moldline/internal/events"
	"moldline/internal/scheduling"
)

// GenerateRequest parameterizes one schedule run.
type GenerateRequest struct {
	// Scope is the labor department and the allocation scope replaced by the
	// run. Defaults to scheduling.scope.
	Scope string
	// Days is the horizon in work days. Zero means scheduling.default_days.
	Days int
	// MaxOrdersPerDay is advisory. The labor-derived capacity wins and the
	// report shows both.
	MaxOrdersPerDay *int
	// StartDate defaults to today.
	StartDate *time.Time
	ActorID   string
}

type ScheduleResult struct {
	RunID       string              `json:"runId"`
	Allocations []domain.Allocation `json:"allocations"`
	Report      domain.Report       `json:"analytics"`
}

func (e Engine) normalize(req GenerateRequest) (GenerateRequest, error) {
	if e.Config == nil {
		return req, fmt.Errorf("config not loaded")
	}
	sc := e.Config.Scheduling
	if req.Scope == "" {
		req.Scope = sc.Scope
	}
	if req.Days == 0 {
		req.Days = sc.DefaultDays
	}
	if req.Days < 1 || req.Days > sc.MaxDays {
		return req, fmt.Errorf("%w: scheduleDays must be between 1 and %d", ErrInvalidRequest, sc.MaxDays)
	}
	if req.MaxOrdersPerDay != nil && *req.MaxOrdersPerDay < 1 {
		return req, fmt.Errorf("%w: maxOrdersPerDay must be positive", ErrInvalidRequest)
	}
	start := e.now()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	start = scheduling.DateOf(start)
	req.StartDate = &start
	return req, nil
}

func flightKey(req GenerateRequest) string {
	hint := "-"
	if req.MaxOrdersPerDay != nil {
		hint = strconv.Itoa(*req.MaxOrdersPerDay)
	}
	return fmt.Sprintf("%s|%d|%s|%s", req.Scope, req.Days, hint, req.StartDate.Format(domain.DateLayout))
}

// GenerateSchedule computes a fresh schedule for the backlog and replaces
// the scope's previous allocations with it. Identical concurrent requests
// share one run. A caller that gives up stops waiting; the shared run still
// completes for the others.
func (e Engine) GenerateSchedule(ctx context.Context, req GenerateRequest) (ScheduleResult, error) {
	req, err := e.normalize(req)
	if err != nil {
		return ScheduleResult{}, err
	}
	if e.flight == nil {
		return e.generate(ctx, req)
	}
	detached := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(flightKey(req), func() (any, error) {
		return e.generate(detached, req)
	})
	select {
	case <-ctx.Done():
		return ScheduleResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return ScheduleResult{}, r.Err
		}
		res := r.Val.(ScheduleResult)
		if r.Shared {
			e.log().Debug("schedule run shared", zap.String("run_id", res.RunID))
		}
		return res, nil
	}
}

// runPlan is everything read or derived before the write transaction.
type runPlan struct {
	req      GenerateRequest
	runID    string
	backlog  []domain.Order
	days     []time.Time
	resolver *scheduling.Resolver
	capacity scheduling.Capacity
	bands    scheduling.Bands
}

func (e Engine) generate(ctx context.Context, req GenerateRequest) (res ScheduleResult, err error) {
	started := time.Now()
	logger := e.log().With(zap.String("scope", req.Scope))
	defer func() {
		e.Metrics.ObserveRun(req.Scope, res.Report, time.Since(started), err)
	}()

	backlog, err := e.Backlog.ListBacklog(ctx)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("read backlog: %w", err)
	}
	molds, err := e.Molds.ListActiveMolds(ctx)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("read molds: %w", err)
	}
	workers, err := e.Labor.ListActiveWorkers(ctx, req.Scope)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("read labor roster: %w", err)
	}

	plan := runPlan{
		req:      req,
		runID:    uuid.NewString(),
		backlog:  backlog,
		days:     scheduling.WorkDays(*req.StartDate, req.Days),
		resolver: scheduling.NewResolver(molds),
		capacity: scheduling.AggregateCapacity(workers, req.Scope),
		bands: scheduling.Bands{
			UrgentDays: e.Config.Scheduling.Priority.UrgentDays,
			SoonDays:   e.Config.Scheduling.Priority.SoonDays,
		},
	}
	if plan.capacity.Degraded {
		logger.Warn("labor capacity below one order per day; using 1",
			zap.String("raw", plan.capacity.Raw.String()), zap.Int("workers", plan.capacity.Workers))
	}
	for _, m := range molds {
		if m.Multiplier <= 0 {
			logger.Warn("mold has no per-day capacity", zap.String("mold_id", m.ID), zap.Int("multiplier", m.Multiplier))
		}
	}

	result, run, err := e.materialize(ctx, plan)
	if err != nil {
		logger.Error("schedule run failed", zap.String("run_id", plan.runID), zap.Error(err))
		return ScheduleResult{}, err
	}
	for _, id := range result.MalformedFeatures {
		logger.Warn("malformed order features; defaults used", zap.String("order_id", id))
	}
	report := run.Report
	logger.Info("schedule generated",
		zap.String("run_id", run.ID),
		zap.Int("considered", report.TotalOrders),
		zap.Int("scheduled", report.ScheduledOrders),
		zap.Int("no_compatible_mold", len(report.Failures.NoCompatibleMold)),
		zap.Int("capacity_exhausted", len(report.Failures.CapacityExhausted)),
		zap.Int("daily_capacity", run.DailyCapacity),
	)
	allocs := result.Allocations
	if allocs == nil {
		allocs = []domain.Allocation{}
	}
	return ScheduleResult{RunID: run.ID, Allocations: allocs, Report: report}, nil
}

// materialize swaps the scope's backlog allocations for a new pass in a
// single transaction. Rows that survive the clear (advanced orders, other
// scopes) are read back inside the transaction and occupy their slots, and
// backlog orders another scope already holds are left to that scope.
func (e Engine) materialize(ctx context.Context, p runPlan) (scheduling.Result, domain.Run, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return scheduling.Result{}, domain.Run{}, err
	}
	defer tx.Rollback()

	scope := p.req.Scope
	cleared, err := e.Repo.ClearScheduleTx(ctx, tx, scope)
	if err != nil {
		return scheduling.Result{}, domain.Run{}, fmt.Errorf("clear schedule: %w", err)
	}
	kept, err := e.Repo.ListAllocationsTx(ctx, tx, "", "", "")
	if err != nil {
		return scheduling.Result{}, domain.Run{}, fmt.Errorf("read kept allocations: %w", err)
	}
	pending, held := splitHeld(p.backlog, kept)

	result := scheduling.Allocate(scheduling.Input{
		Orders:        p.bands.Rank(pending, e.now()),
		Days:          p.days,
		Resolver:      p.resolver,
		DailyCapacity: p.capacity.Daily,
		Scope:         scope,
		RunID:         p.runID,
		Reserved:      kept,
	})
	run := domain.Run{
		ID:            p.runID,
		Scope:         scope,
		StartDate:     p.req.StartDate.Format(domain.DateLayout),
		Days:          p.req.Days,
		CapacityHint:  p.req.MaxOrdersPerDay,
		DailyCapacity: p.capacity.Daily,
		ActorID:       p.req.ActorID,
		Report: scheduling.BuildReport(result, scheduling.ReportContext{
			WorkDays:      len(p.days),
			Capacity:      p.capacity,
			CapacityHint:  p.req.MaxOrdersPerDay,
			HeldElsewhere: held,
		}),
		CreatedAt: e.stamp(),
	}

	for _, a := range result.Allocations {
		if err := e.Repo.InsertAllocationTx(ctx, tx, a); err != nil {
			return scheduling.Result{}, domain.Run{}, fmt.Errorf("insert allocation %s: %w", a.OrderID, err)
		}
	}
	if err := e.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return scheduling.Result{}, domain.Run{}, fmt.Errorf("insert run: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ScheduleGenerated, scope, "schedule_run", run.ID, run.ActorID, events.Payload{
		"run_id":         run.ID,
		"start_date":     run.StartDate,
		"days":           run.Days,
		"daily_capacity": run.DailyCapacity,
		"scheduled":      run.Report.ScheduledOrders,
		"unscheduled":    run.Report.UnscheduledOrders,
		"replaced":       cleared,
		"schedule_url":   e.scheduleURL(scope, p.days),
		"allocations":    allocationRefs(result.Allocations),
	}); err != nil {
		return scheduling.Result{}, domain.Run{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return scheduling.Result{}, domain.Run{}, err
	}
	return result, run, nil
}

// splitHeld separates backlog orders that still carry an allocation after
// the clear. Those rows belong to another scope.
func splitHeld(backlog []domain.Order, kept []domain.Allocation) ([]domain.Order, []string) {
	taken := make(map[string]bool, len(kept))
	for _, a := range kept {
		taken[a.OrderID] = true
	}
	pending := make([]domain.Order, 0, len(backlog))
	var held []string
	for _, o := range backlog {
		if taken[o.ID] {
			held = append(held, o.ID)
			continue
		}
		pending = append(pending, o)
	}
	return pending, held
}

// allocationRef is the slice of an allocation that routing consumers react to.
type allocationRef struct {
	OrderID   string `json:"order_id"`
	MoldID    string `json:"mold_id"`
	WorkDay   string `json:"work_day"`
	HeavyFill bool   `json:"heavy_fill"`
	LOPAdjust bool   `json:"lop_adjust"`
	LOPLength string `json:"lop_length,omitempty"`
}

func allocationRefs(allocs []domain.Allocation) []allocationRef {
	out := make([]allocationRef, 0, len(allocs))
	for _, a := range allocs {
		out = append(out, allocationRef{
			OrderID:   a.OrderID,
			MoldID:    a.MoldID,
			WorkDay:   a.WorkDay.Format(domain.DateLayout),
			HeavyFill: a.HeavyFill,
			LOPAdjust: a.LOPAdjust,
			LOPLength: a.LOPLength,
		})
	}
	return out
}

// scheduleURL is the API path listing the run's horizon.
func (e Engine) scheduleURL(scope string, days []time.Time) string {
	base := "/v1"
	if e.Config != nil && e.Config.Server.BasePath != "" {
		base = e.Config.Server.BasePath
	}
	q := url.Values{"scope": {scope}}
	if len(days) > 0 {
		q.Set("from", days[0].Format(domain.DateLayout))
		q.Set("to", days[len(days)-1].Format(domain.DateLayout))
	}
	return path.Join("/", base, "schedule") + "?" + q.Encode()
}
