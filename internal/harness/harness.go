package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meeteat/pos/internal/backup"
	"github.com/meeteat/pos/internal/billing"
	"github.com/meeteat/pos/internal/ident"
	"github.com/meeteat/pos/internal/inventory"
	"github.com/meeteat/pos/internal/printer"
	"github.com/meeteat/pos/internal/receipt"
	"github.com/meeteat/pos/internal/router"
	"github.com/meeteat/pos/internal/store"
	"github.com/meeteat/pos/internal/testutil"
)

// DataDirVar is replaced by the scenario's scratch directory in call paths
// and bodies, and substituted back in recorded results.
const DataDirVar = "$DATA_DIR"

// Harness executes scenarios against a fresh store in a scratch directory.
type Harness struct {
	dir    string
	store  *store.Store
	router *router.Router
	clock  *testutil.FixedClock
	jobs   *captureSender
}

// captureSender records print jobs instead of spooling them.
type captureSender struct {
	jobs []PrintJob
}

func (c *captureSender) Send(_ context.Context, name string, data []byte) error {
	c.jobs = append(c.jobs, PrintJob{Printer: name, Bytes: len(data)})
	return nil
}

// Option configures scenario execution.
type Option func(*options)

type options struct {
	log *slog.Logger
}

// WithLogger routes component logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Run executes a scenario and returns the result.
//
// Each run gets its own scratch directory holding the store and any backups,
// a fixed clock starting at scenario.Clock, and fixed request ids, so traces
// are reproducible.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	dir, err := os.MkdirTemp("", "meeteat-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h, err := newHarness(dir, scenario, o.log)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Setup {
		ev := h.call(ctx, "setup", step)
		result.AddTrace(ev)
		if !ev.OK {
			return nil, fmt.Errorf("setup[%d] %s failed: %s", i, step.Call, ev.Error)
		}
	}

	for i, step := range scenario.Flow {
		ev := h.call(ctx, "flow", step)
		result.AddTrace(ev)
		if msg := checkExpect(step, ev); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Call, msg))
		}
	}

	actx := &AssertionContext{Store: h.store, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	result.Printed = h.jobs.jobs
	return result, nil
}

func newHarness(dir string, scenario *Scenario, log *slog.Logger) (*Harness, error) {
	start := DefaultClock
	if scenario.Clock != "" {
		start = scenario.Clock
	}
	t, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, fmt.Errorf("parse clock: %w", err)
	}

	st, err := store.Open(filepath.Join(dir, "meet-eat.db"), store.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	clk := testutil.NewFixedClock(t)
	jobs := &captureSender{}
	layout := receipt.DefaultLayout(42)

	r := router.New(router.Deps{
		Catalog: inventory.NewManager(st, inventory.WithClock(clk), inventory.WithLogger(log)),
		Bills:   billing.NewEngine(st, billing.WithClock(clk), billing.WithLogger(log)),
		Backups: backup.NewManager(st,
			backup.WithClock(clk),
			backup.WithLogger(log),
			backup.WithDefaultDir(filepath.Join(dir, "backups"))),
		Printer: printer.NewService(layout, printer.CodePageUTF8, printer.DefaultFeedLines, jobs),
		Store:   st,
	}, router.WithLogger(log), router.WithIDGenerator(ident.NewSequenceGenerator("scenario")))

	return &Harness{dir: dir, store: st, router: r, clock: clk, jobs: jobs}, nil
}

// call runs one step through the router and records its outcome.
func (h *Harness) call(ctx context.Context, phase string, step Step) TraceEvent {
	if step.Advance > 0 {
		h.clock.Advance(step.Advance)
	}

	ev := TraceEvent{Phase: phase, Call: step.Call, Body: step.Body}

	var body []byte
	if step.Body != nil {
		data, err := json.Marshal(h.expand(step.Body))
		if err != nil {
			ev.Code, ev.Error = "HARNESS", fmt.Sprintf("encode body: %v", err)
			return ev
		}
		body = data
	}

	path := strings.ReplaceAll(step.Path(), DataDirVar, h.dir)
	resp := h.router.Handle(ctx, step.Method(), path, body)

	ev.OK = resp.OK
	ev.Code = string(resp.Code)
	ev.Error = strings.ReplaceAll(resp.Error, h.dir, DataDirVar)
	if len(resp.Data) > 0 {
		var out any
		if err := json.Unmarshal(resp.Data, &out); err != nil {
			ev.OK, ev.Code, ev.Error = false, "HARNESS", fmt.Sprintf("decode result: %v", err)
			return ev
		}
		ev.Result = h.collapse(out)
	}
	return ev
}

// expand substitutes DataDirVar in every string of v.
func (h *Harness) expand(v any) any {
	return mapStrings(v, func(s string) string { return strings.ReplaceAll(s, DataDirVar, h.dir) })
}

// collapse substitutes the scratch directory back to DataDirVar.
func (h *Harness) collapse(v any) any {
	return mapStrings(v, func(s string) string { return strings.ReplaceAll(s, h.dir, DataDirVar) })
}

func mapStrings(v any, fn func(string) string) any {
	switch val := v.(type) {
	case string:
		return fn(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = mapStrings(x, fn)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = mapStrings(x, fn)
		}
		return out
	default:
		return v
	}
}

// checkExpect returns a description of how ev differs from step's
// expectation, or "" when it matches.
func checkExpect(step Step, ev TraceEvent) string {
	exp := step.Expect
	if exp == nil || exp.Error == "" {
		if !ev.OK {
			return fmt.Sprintf("expected success, got %s: %s", ev.Code, ev.Error)
		}
		if exp != nil && exp.Result != nil && !subsetMatch(ev.Result, exp.Result) {
			return fmt.Sprintf("result mismatch: expected subset %v, got %v", exp.Result, ev.Result)
		}
		return ""
	}

	if ev.OK {
		return fmt.Sprintf("expected error %s, got success", exp.Error)
	}
	if ev.Code != exp.Error {
		return fmt.Sprintf("expected error %s, got %s: %s", exp.Error, ev.Code, ev.Error)
	}
	if exp.Message != "" && ev.Error != exp.Message {
		return fmt.Sprintf("expected message %q, got %q", exp.Message, ev.Error)
	}
	return ""
}
