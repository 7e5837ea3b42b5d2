package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/geo"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/predicate"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/report"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/road"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/store"
	"github.com/ShreyashNadgouda/road-db-ratnagiri/internal/taxonomy"
)

type fakeExec struct {
	mu          sync.Mutex
	spatial     []string
	tabular     []string
	distinct    []string
	live        []string
	distinctErr error
	execErr     error
}

func (f *fakeExec) Execute(_ context.Context, text string, _ ...any) (*store.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spatial = append(f.spatial, text)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &store.ResultSet{
		Columns:  []string{"gid"},
		Features: []geo.Feature{geo.NewFeature(map[string]any{"gid": int64(7)}, nil)},
	}, nil
}

func (f *fakeExec) ExecuteTabular(_ context.Context, text string, _ ...any) (*store.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabular = append(f.tabular, text)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return &store.ResultSet{Columns: []string{"n"}}, nil
}

func (f *fakeExec) Distinct(_ context.Context, _, column string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distinct = append(f.distinct, column)
	if f.distinctErr != nil {
		return nil, f.distinctErr
	}
	return f.live, nil
}

func newEngine(t *testing.T, ex *fakeExec) *Engine {
	t.Helper()
	reg, err := taxonomy.Default()
	require.NoError(t, err)
	return New(reg, ex, nil, nil)
}

func v(f float64) *float64 { return &f }

func TestFilterIsCachedByQueryKey(t *testing.T) {
	ex := &fakeExec{}
	e := newEngine(t, ex)
	ctx := context.Background()
	sel := predicate.Selection{Operator: "Greater than", Value: v(5)}

	r1, err := e.Filter(ctx, "Road Length", sel, "LANJA")
	require.NoError(t, err)
	r2, err := e.Filter(ctx, "Road Length", sel, "LANJA")
	require.NoError(t, err)
	assert.Len(t, ex.spatial, 1)
	assert.Same(t, r1.Result, r2.Result)
	assert.Equal(t, r1.Query.Text, ex.spatial[0])

	_, err = e.Filter(ctx, "Road Length", sel, "RAJAPUR")
	require.NoError(t, err)
	assert.Len(t, ex.spatial, 2)
}

func TestFilterNoFilterSkipsStore(t *testing.T) {
	ex := &fakeExec{}
	e := newEngine(t, ex)
	_, err := e.Filter(context.Background(), "Current Status", predicate.Selection{}, "All")
	assert.ErrorIs(t, err, predicate.ErrNoFilter)
	assert.Empty(t, ex.spatial)
}

func TestFilterErrorsAreNotCached(t *testing.T) {
	ex := &fakeExec{execErr: &store.QueryError{Path: "spatial", Err: errors.New("pq: relation \"RN_DIV\" does not exist")}}
	e := newEngine(t, ex)
	sel := predicate.Selection{Labels: []string{"LANJA"}}
	_, err := e.Filter(context.Background(), "Block Name", sel, "")
	var qe *store.QueryError
	assert.ErrorAs(t, err, &qe)

	ex.execErr = nil
	_, err = e.Filter(context.Background(), "Block Name", sel, "")
	assert.NoError(t, err)
	assert.Len(t, ex.spatial, 2)
}

func TestFilterWithOthersLabel(t *testing.T) {
	ex := &fakeExec{live: []string{"Delayed", "Work done", "in progress"}}
	e := newEngine(t, ex)
	ctx := context.Background()

	r, err := e.Filter(ctx, "Current Status", predicate.Selection{Labels: []string{"Delayed"}}, "")
	require.NoError(t, err)
	assert.Equal(t, []any{"Delayed"}, r.Query.Args)

	_, err = e.Filter(ctx, "Current Status", predicate.Selection{Labels: []string{"Delayed", "In Progress"}}, "")
	require.NoError(t, err)
	assert.Len(t, ex.distinct, 1, "live labels are cached")
}

func TestReportDispatch(t *testing.T) {
	ex := &fakeExec{}
	e := newEngine(t, ex)
	ctx := context.Background()

	def, rs, err := e.Report(ctx, "Top 10 Roads by Total Expenditure")
	require.NoError(t, err)
	assert.True(t, def.RequiresGeometry)
	assert.Len(t, rs.Features, 1)
	assert.Len(t, ex.spatial, 1)

	def, _, err = e.Report(ctx, "Count of Roads by Status")
	require.NoError(t, err)
	assert.False(t, def.RequiresGeometry)
	assert.Equal(t, []string{def.SQL}, ex.tabular)

	_, _, err = e.Report(ctx, "Count of Roads by Status")
	require.NoError(t, err)
	assert.Len(t, ex.tabular, 1)

	_, _, err = e.Report(ctx, "Unknown")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestSelectable(t *testing.T) {
	ex := &fakeExec{live: []string{"Work done", "Delayed", ""}}
	e := newEngine(t, ex)
	labels, err := e.Selectable(context.Background(), "Current Status")
	require.NoError(t, err)
	assert.Equal(t, "Work is Complete", labels[0])
	assert.Equal(t, "Delayed", labels[len(labels)-1])
	assert.Len(t, labels, 8)

	labels, err = e.Selectable(context.Background(), "Block Name")
	require.NoError(t, err)
	assert.Equal(t, []string{"LANJA", "RAJAPUR", "RATNAGIRI", "SANGAMESHWAR"}, labels)
	assert.Len(t, ex.distinct, 1, "categories without others never read live labels")
}

func TestLiveLabelSpelledLikeGroupIsReachable(t *testing.T) {
	ex := &fakeExec{live: []string{"Work is complete", "Work is Complete", "In Progress", "Delayed"}}
	e := newEngine(t, ex)
	ctx := context.Background()

	labels, err := e.Selectable(ctx, "Current Status")
	require.NoError(t, err)
	assert.Len(t, labels, 8)
	assert.Equal(t, "Delayed", labels[len(labels)-1])

	// 每个实时标签都能通过某个可选标签命中
	for _, raw := range ex.live {
		hit := false
		for _, l := range labels {
			r, err := e.Filter(ctx, "Current Status", predicate.Selection{Labels: []string{l}}, "")
			require.NoError(t, err)
			if r.Query.Match(road.Record{Status: raw}) {
				hit = true
				break
			}
		}
		assert.True(t, hit, raw)
	}

	r, err := e.Filter(ctx, "Current Status", predicate.Selection{Labels: []string{"In Progress"}}, "")
	require.NoError(t, err)
	assert.Contains(t, r.Query.Args, "In Progress")
	assert.True(t, r.Query.Match(road.Record{Status: "In Progress"}))
	assert.True(t, r.Query.Match(road.Record{Status: "in progress"}))
}

func TestSelectableDegradesWhenStoreUnavailable(t *testing.T) {
	down := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	ex := &fakeExec{distinctErr: down}
	e := newEngine(t, ex)

	labels, err := e.Selectable(context.Background(), "Current Status")
	assert.ErrorIs(t, err, taxonomy.ErrDataUnavailable)
	assert.ErrorIs(t, err, down)
	assert.Len(t, labels, 7)

	_, err = e.Filter(context.Background(), "Current Status", predicate.Selection{Labels: []string{"Delayed"}}, "")
	assert.ErrorIs(t, err, taxonomy.ErrDataUnavailable)

	// 预置分组仍可查询
	_, err = e.Filter(context.Background(), "Current Status", predicate.Selection{Labels: []string{"In Progress"}}, "")
	assert.NoError(t, err)
}

func TestDistinctNeedsSingleColumn(t *testing.T) {
	e := newEngine(t, &fakeExec{})
	_, err := e.Distinct(context.Background(), "Date")
	assert.ErrorIs(t, err, predicate.ErrInvalidInput)
	_, err = e.Distinct(context.Background(), "Nope")
	assert.ErrorIs(t, err, taxonomy.ErrUnknownCategory)
}

func TestWarm(t *testing.T) {
	ex := &fakeExec{live: []string{"Delayed"}}
	e := newEngine(t, ex)
	failed, err := e.Warm(context.Background())
	require.NoError(t, err)
	assert.Zero(t, failed)
	assert.Equal(t, len(report.Names()), len(ex.spatial)+len(ex.tabular))
	assert.Len(t, ex.distinct, 3)

	// 清理只移除过期条目：未过期时 Sweep 为空操作，再次预热全部命中缓存
	assert.Zero(t, e.Sweep())
	_, _ = e.Warm(context.Background())
	assert.Equal(t, len(report.Names()), len(ex.spatial)+len(ex.tabular))
	assert.Len(t, ex.distinct, 3)

	ex2 := &fakeExec{execErr: errors.New("boom"), live: []string{}}
	failed, err = newEngine(t, ex2).Warm(context.Background())
	assert.Error(t, err)
	assert.Equal(t, len(report.Names()), failed)
}
