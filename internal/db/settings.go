package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lendarr/lendarr/internal/domain"
)

// Setting keys used by the lifecycle engine.
const (
	// SettingSimulatedDate holds the operator-set simulated instant, or is
	// absent when real time is in effect.
	SettingSimulatedDate = "simulated_date"
	// SettingSimulatedDateSetBy records who last changed the simulated date.
	SettingSimulatedDateSetBy = "simulated_date_set_by"
	// SettingSimulationStartedAt records the real wall-clock instant at which
	// the current simulation window began. Cleared on simulation reset.
	SettingSimulationStartedAt = "simulation_started_at"
	// SettingAutoReturnCheckouts holds the JSON list of configured
	// auto-return tuples.
	SettingAutoReturnCheckouts = "auto_return_checkouts"
	// SettingPushURL optionally holds a shoutrrr URL; when present, created
	// notifications are also pushed externally, best effort.
	SettingPushURL = "push_url"
)

// GetSetting returns a setting's value, or ErrNotFound.
func GetSetting(q Queryer, key string) (string, error) {
	var value string
	err := q.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting writes a setting, inserting or replacing.
func SetSetting(q Queryer, key, value string) error {
	_, err := q.Exec(
		"INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, FormatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a setting. Deleting an absent key is not an error.
func DeleteSetting(q Queryer, key string) error {
	if _, err := q.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// GetAutoReturns decodes the configured auto-return tuples. An absent
// setting is an empty list.
func GetAutoReturns(q Queryer) ([]domain.AutoReturn, error) {
	raw, err := GetSetting(q, SettingAutoReturnCheckouts)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tuples []domain.AutoReturn
	if err := json.Unmarshal([]byte(raw), &tuples); err != nil {
		return nil, fmt.Errorf("failed to decode auto-return tuples: %w", err)
	}
	return tuples, nil
}

// SetAutoReturns encodes and stores the auto-return tuple list.
func SetAutoReturns(q Queryer, tuples []domain.AutoReturn) error {
	raw, err := json.Marshal(tuples)
	if err != nil {
		return fmt.Errorf("failed to encode auto-return tuples: %w", err)
	}
	return SetSetting(q, SettingAutoReturnCheckouts, string(raw))
}
