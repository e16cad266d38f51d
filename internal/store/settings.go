package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Setting keys.
const (
	// SettingBillSeq backs bill_no generation. Only the bill transaction
	// writes it.
	SettingBillSeq = "bill_seq"

	SettingBackupPath            = "backup_path"
	SettingBackupIntervalMinutes = "backup_interval_minutes"

	// SettingDiscountRateBps is a legacy default discount, kept for older
	// front ends that still read it.
	SettingDiscountRateBps = "discount_rate_bps"
)

// GetSetting returns the value for key and whether it exists.
func GetSetting(ctx context.Context, q Querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// PutSetting inserts or replaces the value for key.
func PutSetting(ctx context.Context, q Querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}
