package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeteat/pos/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Call: "POST /products", Body: map[string]any{"name": "Tea", "price_cents": float64(1500)}, OK: true},
		{Seq: 2, Call: "POST /bills", Body: map[string]any{"discount_rate_bps": float64(500)}, OK: true},
		{Seq: 3, Call: "GET /bills?page=2", OK: true},
		{Seq: 4, Call: "POST /bills", Code: "NO_VALID_ITEMS"},
	}
}

func TestAssertTraceContains(t *testing.T) {
	tests := []struct {
		name    string
		call    string
		body    map[string]any
		wantErr bool
	}{
		{"call only", "POST /bills", nil, false},
		{"body subset", "POST /products", map[string]any{"name": "Tea"}, false},
		{"wrong body", "POST /products", map[string]any{"name": "Coffee"}, true},
		{"query ignored", "GET /bills", nil, false},
		{"absent", "DELETE /products/1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Call: tt.call, Body: tt.body})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var assertErr *AssertionError
			require.ErrorAs(t, err, &assertErr)
			assert.Equal(t, AssertTraceContains, assertErr.Type)
			assert.Equal(t, "not found in trace", assertErr.Actual)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	assert.NoError(t, assertTraceOrder(sampleTrace(), Assertion{Calls: []string{"POST /products", "GET /bills"}}))

	err := assertTraceOrder(sampleTrace(), Assertion{Calls: []string{"POST /bills", "POST /products"}})
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Contains(t, assertErr.Actual, "should be before")

	err = assertTraceOrder(sampleTrace(), Assertion{Calls: []string{"POST /products", "GET /health"}})
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "missing call: GET /health", assertErr.Actual)
}

func TestAssertTraceCount(t *testing.T) {
	assert.NoError(t, assertTraceCount(sampleTrace(), Assertion{Call: "POST /bills", Count: 2}))
	assert.NoError(t, assertTraceCount(sampleTrace(), Assertion{Call: "GET /health", Count: 0}))

	err := assertTraceCount(sampleTrace(), Assertion{Call: "POST /bills", Count: 3})
	var assertErr *AssertionError
	require.ErrorAs(t, err, &assertErr)
	assert.Equal(t, "2 occurrences", assertErr.Actual)
}

func TestSubsetMatch(t *testing.T) {
	actual := map[string]any{
		"bill_no": "MNE-000001",
		"total":   float64(3600),
		"items": []any{
			map[string]any{"qty": float64(2), "name": "Tea"},
		},
		"item_no": nil,
	}

	tests := []struct {
		name     string
		expected any
		want     bool
	}{
		{"empty object", map[string]any{}, true},
		{"scalar field", map[string]any{"bill_no": "MNE-000001"}, true},
		{"nested array", map[string]any{"items": []any{map[string]any{"qty": float64(2)}}}, true},
		{"null field", map[string]any{"item_no": nil}, true},
		{"missing key", map[string]any{"id": float64(1)}, false},
		{"wrong value", map[string]any{"total": float64(1)}, false},
		{"array length differs", map[string]any{"items": []any{}}, false},
		{"type differs", map[string]any{"total": "3600"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, subsetMatch(actual, tt.expected))
		})
	}
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "2 occurrences of POST /bills",
		Actual:   "1 occurrences",
		Trace:    sampleTrace()[3:],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 2 occurrences of POST /bills")
	assert.Contains(t, msg, "[4] POST /bills")
	assert.Contains(t, msg, "-> NO_VALID_ITEMS")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	sql, args, err = buildWhereClause(map[string]any{"name": "Tea", "item_no": nil, "is_available": true})
	require.NoError(t, err)
	assert.Equal(t, "is_available = ? AND item_no IS NULL AND name = ?", sql)
	assert.Equal(t, []any{int64(1), "Tea"}, args)

	_, _, err = buildWhereClause(map[string]any{"name; DROP TABLE bills": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "bill_no=MNE-000001 AND id=1", formatWhereClause(map[string]any{"id": 1, "bill_no": "MNE-000001"}))
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("a", "a"))
	assert.True(t, stateValuesEqual("a", []byte("a")))
	assert.True(t, stateValuesEqual(10, int64(10)))
	assert.True(t, stateValuesEqual(float64(10), int64(10)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(false, int64(0)))
	assert.True(t, stateValuesEqual(nil, nil))

	assert.False(t, stateValuesEqual("10", int64(10)))
	assert.False(t, stateValuesEqual(10, "10"))
	assert.False(t, stateValuesEqual(nil, int64(0)))
	assert.False(t, stateValuesEqual(0, nil))
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "assert.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	err = st.Run(context.Background(), func(q store.Querier) error {
		_, err := q.ExecContext(context.Background(), `
			INSERT INTO products (item_no, name, price_cents, is_available) VALUES
				(1, 'Tea', 1500, 1),
				(2, 'Coffee', 1800, 0),
				(NULL, 'Water', 0, 1)
		`)
		return err
	})
	require.NoError(t, err)
	return st
}

func TestAssertFinalState(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		assertion  Assertion
		wantActual string
	}{
		{
			name:      "row found",
			assertion: Assertion{Table: "products", Where: map[string]any{"name": "Tea"}, Expect: map[string]any{"item_no": 1, "is_available": true}},
		},
		{
			name:      "null where",
			assertion: Assertion{Table: "products", Where: map[string]any{"item_no": nil}, Expect: map[string]any{"name": "Water"}},
		},
		{
			name:       "row not found",
			assertion:  Assertion{Table: "products", Where: map[string]any{"name": "Juice"}, Expect: map[string]any{"item_no": 1}},
			wantActual: "row not found",
		},
		{
			name:       "ambiguous",
			assertion:  Assertion{Table: "products", Where: map[string]any{"is_available": true}, Expect: map[string]any{"item_no": 1}},
			wantActual: "multiple rows matched (assertion is ambiguous)",
		},
		{
			name:       "value mismatch",
			assertion:  Assertion{Table: "products", Where: map[string]any{"name": "Coffee"}, Expect: map[string]any{"price_cents": 1900}},
			wantActual: `field "price_cents" = 1800 (type int64)`,
		},
		{
			name:       "missing column",
			assertion:  Assertion{Table: "products", Where: map[string]any{"name": "Tea"}, Expect: map[string]any{"colour": "green"}},
			wantActual: `field "colour" not present`,
		},
		{
			name:       "missing table",
			assertion:  Assertion{Table: "orders", Expect: map[string]any{"id": 1}},
			wantActual: "query error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.assertion)
			if tt.wantActual == "" {
				assert.NoError(t, err)
				return
			}
			var assertErr *AssertionError
			require.ErrorAs(t, err, &assertErr)
			assert.Contains(t, assertErr.Actual, tt.wantActual)
		})
	}
}

func TestAssertFinalState_InvalidTableName(t *testing.T) {
	st := setupTestStore(t)
	err := assertFinalState(context.Background(), st, Assertion{Table: "products; DROP TABLE bills", Expect: map[string]any{"id": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Call: "POST /bills", Count: 2},
		{Type: AssertTraceContains, Call: "GET /health"},
		{Type: "eventually"},
		{Type: AssertFinalState, Table: "products", Expect: map[string]any{"id": 1}},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_contains")
	assert.Contains(t, errs[1], `unknown assertion type "eventually"`)
	assert.Contains(t, errs[2], "final_state requires database context")
}

func TestEvaluateAssertions_FinalStateWithContext(t *testing.T) {
	st := setupTestStore(t)
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "products", Where: map[string]any{"item_no": 2}, Expect: map[string]any{"name": "Coffee"}},
	}, &AssertionContext{Store: st, Ctx: context.Background()})
	assert.Empty(t, errs)
}
