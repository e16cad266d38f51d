package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/backup"
	"github.com/meeteat/pos/internal/billing"
)

func (r *Router) table() []route {
	return []route{
		exact(http.MethodGet, "/health", r.health),
		exact(http.MethodGet, "/metrics", r.metrics),

		exact(http.MethodGet, "/categories", r.listCategories),
		exact(http.MethodGet, "/products", r.listProducts),
		exact(http.MethodGet, "/products/search", r.searchProducts),
		exact(http.MethodPost, "/products", r.createProduct),
		withID(http.MethodPut, "/products/", "/availability", r.setAvailability),
		withID(http.MethodPut, "/products/", "", r.updateProduct),
		withID(http.MethodDelete, "/products/", "", r.deleteProduct),

		exact(http.MethodPost, "/bills", r.createBill),
		exact(http.MethodGet, "/bills", r.listBills),
		withID(http.MethodGet, "/bills/", "", r.getBill),

		exact(http.MethodGet, "/backup/settings", r.backupSettings),
		exact(http.MethodPost, "/backup/settings", r.updateBackupSettings),
		exact(http.MethodGet, "/backup/files", r.backupFiles),
		exact(http.MethodPost, "/backup/run", r.runBackup),
		exact(http.MethodPost, "/backup/restore", r.restore),

		exact(http.MethodPost, "/print", r.print),
	}
}

func (r *Router) health(ctx context.Context, _ call) (any, error) {
	version, err := r.deps.Store.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	return healthResponse{Status: "ok", SchemaVersion: version}, nil
}

func (r *Router) metrics(ctx context.Context, _ call) (any, error) {
	count, err := r.deps.Bills.Count(ctx)
	if err != nil {
		return nil, err
	}
	size, err := r.deps.Store.FileSize()
	if err != nil {
		return nil, err
	}
	return metricsResponse{BillCount: count, DBSizeBytes: size}, nil
}

func (r *Router) listCategories(ctx context.Context, _ call) (any, error) {
	return r.deps.Catalog.ListCategories(ctx)
}

func (r *Router) listProducts(ctx context.Context, _ call) (any, error) {
	return r.deps.Catalog.ListProducts(ctx)
}

func (r *Router) searchProducts(ctx context.Context, c call) (any, error) {
	return r.deps.Catalog.SearchProducts(ctx, c.query["q"])
}

func (r *Router) createProduct(ctx context.Context, c call) (any, error) {
	var req productRequest
	if err := decode(c.body, &req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return r.deps.Catalog.CreateProduct(ctx, in)
}

func (r *Router) updateProduct(ctx context.Context, c call) (any, error) {
	var req productRequest
	if err := decode(c.body, &req); err != nil {
		return nil, err
	}
	in, err := req.input()
	if err != nil {
		return nil, err
	}
	return r.deps.Catalog.UpdateProduct(ctx, c.id, in)
}

func (r *Router) setAvailability(ctx context.Context, c call) (any, error) {
	var req availabilityRequest
	if err := decode(c.body, &req); err != nil {
		return nil, err
	}
	if req.IsAvailable == nil {
		return nil, apperr.New(apperr.InvalidInput, "is_available is required")
	}
	return r.deps.Catalog.SetAvailability(ctx, c.id, *req.IsAvailable)
}

func (r *Router) deleteProduct(ctx context.Context, c call) (any, error) {
	return r.deps.Catalog.DeleteProduct(ctx, c.id)
}

func (r *Router) createBill(ctx context.Context, c call) (any, error) {
	var req billRequest
	if err := decode(c.body, &req); err != nil {
		return nil, err
	}
	return r.deps.Bills.CreateBill(ctx, req.request())
}

func (r *Router) listBills(ctx context.Context, c call) (any, error) {
	return r.deps.Bills.ListBills(ctx, billing.ListFilter{
		Page:   c.intParam("page"),
		Limit:  c.intParam("limit"),
		BillNo: c.query["bill_no"],
		Start:  c.query["start"],
		End:    c.query["end"],
	})
}

func (r *Router) getBill(ctx context.Context, c call) (any, error) {
	return r.deps.Bills.GetBill(ctx, c.id)
}

func (r *Router) backupSettings(ctx context.Context, _ call) (any, error) {
	return r.deps.Backups.Settings(ctx)
}

func (r *Router) updateBackupSettings(ctx context.Context, c call) (any, error) {
	var req backup.SettingsUpdate
	if err := decode(c.body, &req); err != nil {
		return nil, err
	}
	return r.deps.Backups.UpdateSettings(ctx, req)
}

func (r *Router) backupFiles(ctx context.Context, c call) (any, error) {
	return r.deps.Backups.Files(ctx, c.query["path"])
}

func (r *Router) runBackup(ctx context.Context, c call) (any, error) {
	var req backupRunRequest
	if err := decode(c.body, &req); err != nil {
		return nil, err
	}
	path, err := r.deps.Backups.Backup(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return backupRunResponse{Path: path}, nil
}

func (r *Router) restore(ctx context.Context, c call) (any, error) {
	var req restoreRequest
	if err := decode(c.body, &req); err != nil {
		return nil, err
	}
	source, err := backup.Source(req.Source, req.BackupPath, req.FileName)
	if err != nil {
		return nil, err
	}
	restored, err := r.deps.Backups.Restore(ctx, source)
	if err != nil {
		return nil, err
	}
	return restoreResponse{RestoredFrom: restored}, nil
}

func (r *Router) print(ctx context.Context, c call) (any, error) {
	var req printRequest
	if err := decode(c.body, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PrinterName) == "" {
		return nil, apperr.New(apperr.InvalidInput, "printerName is required")
	}
	if req.Payload == nil {
		return nil, apperr.New(apperr.InvalidInput, "payload is required")
	}
	if err := r.deps.Printer.Print(ctx, req.PrinterName, *req.Payload); err != nil {
		return nil, err
	}
	return printResponse{Printed: true}, nil
}
