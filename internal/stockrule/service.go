// Package stockrule runs the pull step of stock rules: it resolves pending
// procurements against the forecast and turns the resulting moves into
// confirmed pickings.
package stockrule

import (
	"context"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/replenishment/internal/jobs"
	"github.com/odyssey-erp/replenishment/internal/picking"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/shared"
)

const jobName = "run_pull"

// ForecastLoader builds the free quantity ledger for a demand.
type ForecastLoader interface {
	Load(ctx context.Context, demand map[inventory.LocationID][]inventory.ProductID) (*inventory.Ledger, error)
}

// HistoryReader reads the moves already attached to procurement groups.
type HistoryReader interface {
	GroupMoves(ctx context.Context, groupIDs []int64) (procurement.GroupMoves, error)
}

// Locker serialises runs touching the same keys.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, fn func(context.Context) error) error
}

// AuditRecorder stores audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Deps groups the collaborators of Service. Locker, Audit, Metrics and
// Tracer are optional.
type Deps struct {
	Forecast ForecastLoader
	History  HistoryReader
	Resolver *procurement.Resolver
	Grouper  *picking.Grouper
	Sink     picking.Sink
	Identity picking.Identity
	Locker   Locker
	Audit    AuditRecorder
	Metrics  *jobmetrics.Metrics
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Result lists what a run produced. On a sink failure it holds the pickings
// created before the failing batch.
type Result struct {
	Moves    []procurement.ResolvedMove
	Batches  []picking.Batch
	Pickings []picking.Picking
}

// Service orchestrates pull runs.
type Service struct {
	forecast ForecastLoader
	history  HistoryReader
	resolver *procurement.Resolver
	grouper  *picking.Grouper
	sink     picking.Sink
	identity picking.Identity
	locker   Locker
	audit    AuditRecorder
	metrics  *jobmetrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewService wires a Service.
func NewService(d Deps) *Service {
	if d.Resolver == nil {
		d.Resolver = procurement.NewResolver(nil)
	}
	if d.Grouper == nil {
		d.Grouper = picking.NewGrouper(picking.MergeLast)
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("github.com/odyssey-erp/replenishment/internal/stockrule")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		forecast: d.Forecast,
		history:  d.History,
		resolver: d.Resolver,
		grouper:  d.Grouper,
		sink:     d.Sink,
		identity: d.Identity,
		locker:   d.Locker,
		audit:    d.Audit,
		metrics:  d.Metrics,
		tracer:   d.Tracer,
		logger:   d.Logger,
	}
}

// RunPull resolves procs and creates one picking per batch. An empty input
// returns an empty Result without any I/O. The first failing batch stops the
// run; pickings created before it are kept.
func (s *Service) RunPull(ctx context.Context, procs []procurement.Procurement) (Result, error) {
	if len(procs) == 0 {
		return Result{}, nil
	}
	runID := RunIDFromContext(ctx)
	logger := s.logger.With(slog.String("run_id", runID))
	tracker := s.metrics.Track(jobName)

	ctx, span := s.tracer.Start(ctx, "stockrule.run_pull", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("procurement.count", len(procs)),
	))
	defer span.End()

	result, err := s.run(ctx, procs)
	span.SetAttributes(
		attribute.Int("move.count", len(result.Moves)),
		attribute.Int("picking.count", len(result.Pickings)),
	)
	if len(result.Pickings) > 0 {
		s.recordAudit(ctx, logger, runID, result)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pull run failed")
		logger.Error("pull run failed",
			slog.Any("error", err),
			slog.Int("procurements", len(procs)),
			slog.Int("pickings_created", len(result.Pickings)))
		return result, tracker.End(err)
	}
	logger.Info("pull run completed",
		slog.Int("procurements", len(procs)),
		slog.Int("moves", len(result.Moves)),
		slog.Int("pickings", len(result.Pickings)))
	return result, tracker.End(nil)
}

func (s *Service) run(ctx context.Context, procs []procurement.Procurement) (Result, error) {
	if err := procurement.Validate(procs); err != nil {
		return Result{}, err
	}
	demand := procurement.ForecastDemand(procs)

	var result Result
	err := s.withLocks(ctx, lockKeys(demand), func(ctx context.Context) error {
		ledger, err := s.loadForecast(ctx, demand)
		if err != nil {
			return err
		}
		history, err := s.loadHistory(ctx, procs)
		if err != nil {
			return err
		}

		_, span := s.tracer.Start(ctx, "stockrule.resolve")
		moves, err := s.resolver.Resolve(procs, ledger, history)
		if err == nil {
			result.Moves = moves
			result.Batches, err = s.grouper.Group(moves)
		}
		span.End()
		if err != nil {
			return err
		}
		s.countResolved(moves)

		for _, batch := range result.Batches {
			p, err := s.createPicking(ctx, batch)
			if err != nil {
				return err
			}
			result.Pickings = append(result.Pickings, p)
			s.metrics.AddBatches(batch.CompanyID, 1)
		}
		return nil
	})
	return result, err
}

func (s *Service) withLocks(ctx context.Context, keys []string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	ctx, span := s.tracer.Start(ctx, "stockrule.lock", trace.WithAttributes(attribute.StringSlice("lock.keys", keys)))
	defer span.End()
	return s.locker.WithLocks(ctx, keys, fn)
}

func (s *Service) loadForecast(ctx context.Context, demand map[inventory.LocationID][]inventory.ProductID) (*inventory.Ledger, error) {
	if len(demand) == 0 {
		return inventory.NewLedger(), nil
	}
	ctx, span := s.tracer.Start(ctx, "stockrule.load_forecast", trace.WithAttributes(attribute.Int("location.count", len(demand))))
	defer span.End()
	ledger, err := s.forecast.Load(ctx, demand)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ledger, nil
}

func (s *Service) loadHistory(ctx context.Context, procs []procurement.Procurement) (procurement.GroupMoves, error) {
	groups := procurement.OverrideGroups(procs)
	if len(groups) == 0 || s.history == nil {
		return procurement.GroupMoves{}, nil
	}
	ctx, span := s.tracer.Start(ctx, "stockrule.load_group_moves", trace.WithAttributes(attribute.Int64Slice("group.ids", groups)))
	defer span.End()
	return s.history.GroupMoves(ctx, groups)
}

func (s *Service) createPicking(ctx context.Context, batch picking.Batch) (picking.Picking, error) {
	ctx, span := s.tracer.Start(ctx, "stockrule.create_picking", trace.WithAttributes(
		attribute.Int64("company.id", batch.CompanyID),
		attribute.String("batch.prefix", batch.Prefix),
		attribute.Int("move.count", len(batch.Moves)),
	))
	defer span.End()
	p, err := s.sink.Create(ctx, s.identity, batch)
	if err != nil {
		span.RecordError(err)
		return picking.Picking{}, err
	}
	span.SetAttributes(attribute.Int64("picking.id", p.ID))
	return p, nil
}

func (s *Service) countResolved(moves []procurement.ResolvedMove) {
	counts := make(map[procurement.ProcureMethod]int)
	for _, m := range moves {
		counts[m.ProcureMethod]++
	}
	for method, n := range counts {
		s.metrics.AddResolved(string(method), n)
	}
}

func (s *Service) recordAudit(ctx context.Context, logger *slog.Logger, runID string, result Result) {
	if s.audit == nil {
		return
	}
	ids := make([]int64, len(result.Pickings))
	for i, p := range result.Pickings {
		ids[i] = p.ID
	}
	entityID := runID
	if entityID == "" {
		entityID = "adhoc"
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  s.identity.ActorID(),
		Action:   "procurement.run_pull",
		Entity:   "procurement_run",
		EntityID: entityID,
		Meta: map[string]any{
			"moves":       len(result.Moves),
			"batches":     len(result.Batches),
			"picking_ids": ids,
		},
	})
	if err != nil {
		logger.Warn("record pull run audit", slog.Any("error", err))
	}
}

// lockKeys lists the forecast lock of every location in demand, sorted.
func lockKeys(demand map[inventory.LocationID][]inventory.ProductID) []string {
	keys := make([]string, 0, len(demand))
	for loc := range demand {
		keys = append(keys, shared.ForecastLockKey(int64(loc)))
	}
	slices.Sort(keys)
	return keys
}
