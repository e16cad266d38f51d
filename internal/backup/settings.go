package backup

import (
	"context"
	"strconv"
	"strings"

	"github.com/meeteat/pos/internal/apperr"
	"github.com/meeteat/pos/internal/store"
)

// Settings are the persisted backup preferences.
type Settings struct {
	BackupPath            string `json:"backup_path"`
	BackupIntervalMinutes int64  `json:"backup_interval_minutes"`
}

// SettingsUpdate changes the fields that are set.
type SettingsUpdate struct {
	BackupPath            *string `json:"backup_path"`
	BackupIntervalMinutes *int64  `json:"backup_interval_minutes"`
}

// Settings reads the backup preferences.
func (m *Manager) Settings(ctx context.Context) (Settings, error) {
	var s Settings
	err := m.store.Run(ctx, func(q store.Querier) error {
		var err error
		s, err = readSettings(ctx, q)
		return err
	})
	return s, err
}

// UpdateSettings writes the fields set in u and returns the result.
func (m *Manager) UpdateSettings(ctx context.Context, u SettingsUpdate) (Settings, error) {
	if u.BackupIntervalMinutes != nil && *u.BackupIntervalMinutes < 0 {
		return Settings{}, apperr.New(apperr.InvalidInput, "backup_interval_minutes must not be negative")
	}

	var s Settings
	err := m.store.RunTx(ctx, func(q store.Querier) error {
		if u.BackupPath != nil {
			if err := store.PutSetting(ctx, q, store.SettingBackupPath, strings.TrimSpace(*u.BackupPath)); err != nil {
				return err
			}
		}
		if u.BackupIntervalMinutes != nil {
			v := strconv.FormatInt(*u.BackupIntervalMinutes, 10)
			if err := store.PutSetting(ctx, q, store.SettingBackupIntervalMinutes, v); err != nil {
				return err
			}
		}
		var err error
		s, err = readSettings(ctx, q)
		return err
	})
	if err != nil {
		return Settings{}, err
	}
	m.log.Info("backup settings updated", "backup_path", s.BackupPath, "interval_minutes", s.BackupIntervalMinutes)
	return s, nil
}

func readSettings(ctx context.Context, q store.Querier) (Settings, error) {
	var s Settings
	path, _, err := store.GetSetting(ctx, q, store.SettingBackupPath)
	if err != nil {
		return s, err
	}
	s.BackupPath = path

	interval, ok, err := store.GetSetting(ctx, q, store.SettingBackupIntervalMinutes)
	if err != nil {
		return s, err
	}
	if ok {
		// Legacy stores may hold free text here; treat it as unset.
		s.BackupIntervalMinutes, _ = strconv.ParseInt(strings.TrimSpace(interval), 10, 64)
	}
	return s, nil
}
