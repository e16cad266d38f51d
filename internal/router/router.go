// Package router dispatches gateway calls, a (method, path, body) tuple, to
// the catalog, billing, backup and printing components.
//
// Every route decodes its body into a typed request at the boundary and
// returns a JSON-encodable value or an *apperr.Error.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/backup"
	"github.com/meeteat/pos/internal/billing"
	"github.com/meeteat/pos/internal/ident"
	"github.com/meeteat/pos/internal/inventory"
	"github.com/meeteat/pos/internal/receipt"
)

// Catalog is the inventory surface used by the router.
type Catalog interface {
	ListCategories(ctx context.Context) ([]inventory.Category, error)
	ListProducts(ctx context.Context) ([]inventory.Product, error)
	SearchProducts(ctx context.Context, query string) ([]inventory.Product, error)
	CreateProduct(ctx context.Context, in inventory.ProductInput) (inventory.Product, error)
	UpdateProduct(ctx context.Context, id int64, in inventory.ProductInput) (inventory.Product, error)
	SetAvailability(ctx context.Context, id int64, available bool) (inventory.Product, error)
	DeleteProduct(ctx context.Context, id int64) (inventory.DeleteResult, error)
}

// Bills is the billing surface used by the router.
type Bills interface {
	CreateBill(ctx context.Context, req billing.Request) (billing.Bill, error)
	ListBills(ctx context.Context, f billing.ListFilter) (billing.Page, error)
	GetBill(ctx context.Context, id int64) (billing.Bill, error)
	Count(ctx context.Context) (int64, error)
}

// Backups is the backup surface used by the router.
type Backups interface {
	Settings(ctx context.Context) (backup.Settings, error)
	UpdateSettings(ctx context.Context, u backup.SettingsUpdate) (backup.Settings, error)
	Files(ctx context.Context, dir string) ([]backup.File, error)
	Backup(ctx context.Context, target string) (string, error)
	Restore(ctx context.Context, source string) (string, error)
}

// Printer prints a bill summary on a named printer.
type Printer interface {
	Print(ctx context.Context, printerName string, s receipt.Summary) error
}

// StoreInfo reports store health for /health and /metrics.
type StoreInfo interface {
	SchemaVersion(ctx context.Context) (int, error)
	FileSize() (int64, error)
}

// Deps are the components behind the routes.
type Deps struct {
	Catalog Catalog
	Bills   Bills
	Backups Backups
	Printer Printer
	Store   StoreInfo
}

// Router dispatches calls through a fixed route table.
type Router struct {
	deps   Deps
	routes []route
	ids    ident.Generator
	log    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithIDGenerator sets the request id generator.
func WithIDGenerator(g ident.Generator) Option {
	return func(r *Router) { r.ids = ident.Or(g) }
}

// New creates a Router over deps.
func New(deps Deps, opts ...Option) *Router {
	r := &Router{deps: deps, ids: ident.UUIDv7Generator{}, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	r.routes = r.table()
	return r
}

// Dispatch routes one call. rawPath may carry a query string; body may be
// empty. The result is JSON-encodable.
func (r *Router) Dispatch(ctx context.Context, method, rawPath string, body []byte) (any, error) {
	reqID := r.ids.Generate()
	method = strings.ToUpper(strings.TrimSpace(method))

	result, err := r.dispatch(ctx, method, rawPath, body)
	if err != nil {
		r.log.Warn("request failed",
			"request_id", reqID, "method", method, "path", rawPath,
			"code", apperr.CodeOf(err), "error", err)
		return nil, err
	}
	r.log.Debug("request handled", "request_id", reqID, "method", method, "path", rawPath)
	return result, nil
}

func (r *Router) dispatch(ctx context.Context, method, rawPath string, body []byte) (any, error) {
	path, rawQuery, _ := strings.Cut(rawPath, "?")
	path = cleanPath(path)

	for _, rt := range r.routes {
		if rt.method != method {
			continue
		}
		id, ok := rt.match(path)
		if !ok {
			continue
		}
		return rt.handle(ctx, call{id: id, query: parseQuery(rawQuery), body: body})
	}
	return nil, apperr.Newf(apperr.NotFound, "no route for %s %s", method, path)
}

// Response is the envelope written by line-oriented gateways.
type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  apperr.Code     `json:"code,omitempty"`
}

// Handle dispatches a call and wraps the outcome in a Response.
func (r *Router) Handle(ctx context.Context, method, rawPath string, body []byte) Response {
	result, err := r.Dispatch(ctx, method, rawPath, body)
	if err != nil {
		return errorResponse(err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(err)
	}
	return Response{OK: true, Data: data}
}

func errorResponse(err error) Response {
	return Response{Error: err.Error(), Code: apperr.CodeOf(err)}
}
