package stockrule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/odyssey-erp/replenishment/internal/inventory"
	jobmetrics "github.com/odyssey-erp/replenishment/internal/jobs"
	"github.com/odyssey-erp/replenishment/internal/picking"
	"github.com/odyssey-erp/replenishment/internal/procurement"
	"github.com/odyssey-erp/replenishment/internal/shared"
	"github.com/odyssey-erp/replenishment/internal/uom"
)

const stockLoc inventory.LocationID = 8

var unit = uom.Unit{ID: 1, Name: "Units", CategoryID: 1, Ratio: decimal.NewFromInt(1), Rounding: decimal.RequireFromString("0.01")}

type memoryForecast struct {
	qty   map[inventory.ProductID]decimal.Decimal
	err   error
	calls int
}

func (m *memoryForecast) Load(_ context.Context, demand map[inventory.LocationID][]inventory.ProductID) (*inventory.Ledger, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	ledger := inventory.NewLedger()
	for loc, products := range demand {
		for _, p := range products {
			ledger.Set(loc, p, m.qty[p])
		}
	}
	return ledger, nil
}

type memoryHistory struct {
	moves procurement.GroupMoves
	asked [][]int64
}

func (m *memoryHistory) GroupMoves(_ context.Context, ids []int64) (procurement.GroupMoves, error) {
	m.asked = append(m.asked, ids)
	return m.moves, nil
}

type recordingLocker struct {
	keys [][]string
}

func (r *recordingLocker) WithLocks(ctx context.Context, keys []string, fn func(context.Context) error) error {
	r.keys = append(r.keys, keys)
	return fn(ctx)
}

type memorySink struct {
	created []picking.Batch
	failOn  string
	nextID  int64
}

func (m *memorySink) Create(_ context.Context, identity picking.Identity, batch picking.Batch) (picking.Picking, error) {
	if !identity.Valid() {
		return picking.Picking{}, &picking.SinkError{CompanyID: batch.CompanyID, Prefix: batch.Prefix, Err: picking.ErrUntrustedIdentity}
	}
	if batch.Prefix == m.failOn {
		return picking.Picking{}, &picking.SinkError{CompanyID: batch.CompanyID, Prefix: batch.Prefix, Err: errors.New("disk full")}
	}
	m.nextID++
	m.created = append(m.created, batch)
	return picking.Picking{ID: m.nextID, CompanyID: batch.CompanyID, Header: batch.Header}, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type fixture struct {
	forecast *memoryForecast
	history  *memoryHistory
	locker   *recordingLocker
	sink     *memorySink
	audit    *memoryAudit
	metrics  *jobmetrics.Metrics
	registry *prometheus.Registry
	spans    *tracetest.SpanRecorder
	svc      *Service
}

func newFixture(policy picking.MergePolicy) *fixture {
	f := &fixture{
		forecast: &memoryForecast{qty: map[inventory.ProductID]decimal.Decimal{}},
		history:  &memoryHistory{moves: procurement.GroupMoves{}},
		locker:   &recordingLocker{},
		sink:     &memorySink{},
		audit:    &memoryAudit{},
		registry: prometheus.NewRegistry(),
		spans:    tracetest.NewSpanRecorder(),
	}
	f.metrics = jobmetrics.NewMetrics(f.registry)
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))
	f.svc = NewService(Deps{
		Forecast: f.forecast,
		History:  f.history,
		Grouper:  picking.NewGrouper(policy),
		Sink:     f.sink,
		Identity: picking.SystemIdentity(1),
		Locker:   f.locker,
		Audit:    f.audit,
		Metrics:  f.metrics,
		Tracer:   provider.Tracer("test"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func product(id int64, name string) procurement.Product {
	return procurement.Product{ID: inventory.ProductID(id), Name: name, UoM: unit}
}

func request(p procurement.Product, qty string, company int64, method procurement.ProcureMethod) procurement.Procurement {
	return procurement.Procurement{
		Request: procurement.Request{
			Product: p, Qty: decimal.RequireFromString(qty), UoM: unit,
			DestLocationID: 5, CompanyID: company, Origin: "SO7", GroupID: 42,
		},
		Rule: procurement.Rule{ID: 3, Name: "Stock -> Out", SourceLocationID: stockLoc, ProcureMethod: method, PickingTypeID: 2},
	}
}

func TestRunPullEmptyInputDoesNothing(t *testing.T) {
	f := newFixture(picking.MergeLast)
	result, err := f.svc.RunPull(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Moves)
	assert.Empty(t, result.Batches)
	assert.Zero(t, f.forecast.calls)
	assert.Empty(t, f.locker.keys)
	assert.Empty(t, f.sink.created)
	assert.Empty(t, f.spans.Ended())
}

func TestRunPullResolvesGroupsAndCreatesPickings(t *testing.T) {
	f := newFixture(picking.MergeLast)
	f.forecast.qty[100] = decimal.NewFromInt(5)
	widgetRed := product(100, "Widget red")
	widgetBlue := product(101, "Widget blue")
	gadget := product(200, "Gadget")

	ctx := WithRunID(context.Background(), "run-1")
	result, err := f.svc.RunPull(ctx, []procurement.Procurement{
		request(widgetRed, "3", 1, procurement.StockElseOrder),
		request(widgetRed, "3", 1, procurement.StockElseOrder),
		request(gadget, "1", 1, procurement.MakeToOrder),
		request(widgetBlue, "2", 2, procurement.MakeToStock),
	})
	require.NoError(t, err)

	require.Len(t, result.Moves, 4)
	assert.Equal(t, procurement.MakeToStock, result.Moves[0].ProcureMethod)
	assert.Equal(t, procurement.MakeToOrder, result.Moves[1].ProcureMethod)

	require.Len(t, result.Batches, 3)
	assert.Equal(t, "Gadget", result.Batches[0].Prefix)
	assert.Equal(t, "Widget", result.Batches[1].Prefix)
	assert.Len(t, result.Batches[1].Moves, 2)
	assert.Equal(t, int64(2), result.Batches[2].CompanyID)
	require.Len(t, result.Pickings, 3)
	assert.Len(t, f.sink.created, 3)

	assert.Equal(t, [][]string{{"replenishment:location:8:lock"}}, f.locker.keys)
	assert.Equal(t, 1, f.forecast.calls)
	assert.Empty(t, f.history.asked, "no non-positive request, no history read")

	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, "run-1", f.audit.logs[0].EntityID)
	assert.Equal(t, int64(1), f.audit.logs[0].ActorID)

	require.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(`
# HELP replenishment_procurements_resolved_total Procurements resolved per effective procure method.
# TYPE replenishment_procurements_resolved_total counter
replenishment_procurements_resolved_total{method="make_to_order"} 2
replenishment_procurements_resolved_total{method="make_to_stock"} 2
`), "replenishment_procurements_resolved_total"))

	names := make([]string, 0)
	for _, span := range f.spans.Ended() {
		names = append(names, span.Name())
	}
	assert.Contains(t, names, "stockrule.run_pull")
	assert.Contains(t, names, "stockrule.load_forecast")
	assert.Contains(t, names, "stockrule.create_picking")
}

func TestRunPullMissingSourceLocationFailsBeforeIO(t *testing.T) {
	f := newFixture(picking.MergeLast)
	broken := request(product(100, "Widget"), "1", 1, procurement.StockElseOrder)
	broken.Rule.SourceLocationID = 0

	_, err := f.svc.RunPull(context.Background(), []procurement.Procurement{
		request(product(101, "Gadget"), "1", 1, procurement.StockElseOrder),
		broken,
	})
	var procErr *procurement.ProcurementError
	require.ErrorAs(t, err, &procErr)
	assert.Zero(t, f.forecast.calls)
	assert.Empty(t, f.locker.keys)
	assert.Empty(t, f.sink.created)
	require.NoError(t, testutil.GatherAndCompare(f.registry, strings.NewReader(`
# HELP replenishment_jobs_failures_total Total failures observed for background jobs.
# TYPE replenishment_jobs_failures_total counter
replenishment_jobs_failures_total{job="run_pull"} 1
`), "replenishment_jobs_failures_total"))
}

func TestRunPullFetchErrorCreatesNothing(t *testing.T) {
	f := newFixture(picking.MergeLast)
	f.forecast.err = &inventory.FetchError{Location: stockLoc, Err: errors.New("timeout")}

	_, err := f.svc.RunPull(context.Background(), []procurement.Procurement{request(product(100, "Widget"), "1", 1, procurement.StockElseOrder)})
	var fetchErr *inventory.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Empty(t, f.sink.created)
	assert.Empty(t, f.audit.logs)
}

func TestRunPullReadsHistoryForNonPositiveRequests(t *testing.T) {
	f := newFixture(picking.MergeLast)
	f.history.moves = procurement.GroupMoves{42: {{ID: 9, RuleID: 3, Qty: decimal.NewFromInt(4), ProcureMethod: procurement.MakeToStock}}}

	result, err := f.svc.RunPull(context.Background(), []procurement.Procurement{request(product(100, "Widget"), "0", 1, procurement.StockElseOrder)})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{42}}, f.history.asked)
	assert.Equal(t, procurement.MakeToStock, result.Moves[0].ProcureMethod)
}

func TestRunPullStopsAtFirstSinkError(t *testing.T) {
	f := newFixture(picking.MergeLast)
	f.sink.failOn = "Widget"

	result, err := f.svc.RunPull(context.Background(), []procurement.Procurement{
		request(product(100, "Widget a"), "1", 1, procurement.MakeToStock),
		request(product(200, "Gadget"), "1", 1, procurement.MakeToStock),
		request(product(300, "Zeta"), "1", 1, procurement.MakeToStock),
	})
	var sinkErr *picking.SinkError
	require.ErrorAs(t, err, &sinkErr)
	assert.Equal(t, "Widget", sinkErr.Prefix)
	require.Len(t, result.Pickings, 1, "the Gadget picking stays created")
	assert.Len(t, f.sink.created, 1)
	require.Len(t, f.audit.logs, 1)
}

func TestRunPullHeaderConflictUnderAssertEqual(t *testing.T) {
	f := newFixture(picking.MergeAssertEqual)
	a := request(product(100, "Widget a"), "1", 1, procurement.MakeToStock)
	b := request(product(101, "Widget b"), "1", 1, procurement.MakeToStock)
	b.Request.Origin = "SO8"

	_, err := f.svc.RunPull(context.Background(), []procurement.Procurement{a, b})
	require.ErrorIs(t, err, picking.ErrHeaderConflict)
	assert.Empty(t, f.sink.created)
}

func TestRunPullWithoutLockerOrForecastDemand(t *testing.T) {
	sink := &memorySink{}
	svc := NewService(Deps{Sink: sink, Identity: picking.SystemIdentity(1), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	result, err := svc.RunPull(context.Background(), []procurement.Procurement{request(product(100, "Widget"), "2", 1, procurement.MakeToOrder)})
	require.NoError(t, err)
	require.Len(t, result.Pickings, 1)
}
