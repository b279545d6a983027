package models

import "time"

// ActionType tags an audit entry
type ActionType string

const (
	ActionAutoAlertSent     ActionType = "auto_alert_sent"
	ActionAutoAlertFailed   ActionType = "auto_alert_failed"
	ActionManualAlertSent   ActionType = "manual_alert_sent"
	ActionManualAlertFailed ActionType = "manual_alert_failed"
	ActionSimulatorPaused   ActionType = "simulator_paused_toggled"
)

// ActionLogEntry is an append-only audit record
type ActionLogEntry struct {
	ID        int64      `json:"id"`
	Action    ActionType `json:"action"`
	Detail    string     `json:"detail"`
	Timestamp time.Time  `json:"ts"`
}

// Setting keys
const (
	SettingSimulatorPaused = "simulator_paused"
)

// FormatBool encodes a flag the way settings store it
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
