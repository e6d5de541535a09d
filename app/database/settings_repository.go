package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var _ SettingsRepository = (*SettingsStore)(nil)

const autoRefreshSettingKey = "auto_refresh_enabled"

type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// GetAutoRefreshEnabled returns true when the setting is missing or unreadable.
// Read errors other than a missing table are returned alongside true.
func (s *SettingsStore) GetAutoRefreshEnabled(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT setting_value FROM app_settings WHERE setting_key = ?`, autoRefreshSettingKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return true, nil
		}
		return true, fmt.Errorf("failed to read auto refresh setting: %w", err)
	}

	enabled, err := strconv.ParseBool(strings.Trim(strings.TrimSpace(value), `"`))
	if err != nil {
		return true, nil
	}
	return enabled, nil
}
