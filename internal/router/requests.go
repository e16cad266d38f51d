package router

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/billing"
	"github.com/meeteat/pos/internal/inventory"
	"github.com/meeteat/pos/internal/receipt"
)

type productRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents *int64 `json:"price_cents"`
	ItemNo     *int64 `json:"item_no"`
}

func (p productRequest) input() (inventory.ProductInput, error) {
	if strings.TrimSpace(p.Name) == "" {
		return inventory.ProductInput{}, apperr.New(apperr.InvalidInput, "name is required")
	}
	if p.PriceCents == nil {
		return inventory.ProductInput{}, apperr.New(apperr.InvalidInput, "price_cents is required")
	}
	return inventory.ProductInput{
		Name:       p.Name,
		Category:   p.Category,
		PriceCents: *p.PriceCents,
		ItemNo:     p.ItemNo,
	}, nil
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

type billItemRequest struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int64  `json:"qty"`
}

type billRequest struct {
	Items           []billItemRequest `json:"items"`
	DiscountRateBps int64             `json:"discount_rate_bps"`
}

func (b billRequest) request() billing.Request {
	req := billing.Request{DiscountRateBps: b.DiscountRateBps, Items: make([]billing.ItemInput, len(b.Items))}
	for i, it := range b.Items {
		req.Items[i] = billing.ItemInput(it)
	}
	return req
}

type backupRunRequest struct {
	Target string `json:"target"`
}

type restoreRequest struct {
	Source     string `json:"source"`
	BackupPath string `json:"backup_path"`
	FileName   string `json:"file_name"`
}

type printRequest struct {
	PrinterName string           `json:"printerName"`
	Payload     *receipt.Summary `json:"payload"`
}

type healthResponse struct {
	Status        string `json:"status"`
	SchemaVersion int    `json:"schema_version"`
}

type metricsResponse struct {
	BillCount   int64 `json:"bill_count"`
	DBSizeBytes int64 `json:"db_size_bytes"`
}

type backupRunResponse struct {
	Path string `json:"path"`
}

type restoreResponse struct {
	RestoredFrom string `json:"restored_from"`
}

type printResponse struct {
	Printed bool `json:"printed"`
}

// decode unmarshals a JSON body into v. An empty body leaves v zero.
func decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "malformed request body", err)
	}
	return nil
}
