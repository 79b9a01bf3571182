package models

import "time"

// LogLevel is the severity tag of a trade log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is one human-readable event in the operator's trade log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"type"`
	Message   string    `json:"message"`
}

// PnLSnapshot is the aggregated metrics recorded after a poll cycle.
type PnLSnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	GrossPL      float64   `json:"grossPL"`
	TotalCharges float64   `json:"totalCharges"`
	NetPL        float64   `json:"netPL"`
	BotStatus    BotStatus `json:"botStatus"`
}

// ActionRecord is one audited operator action.
type ActionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Target    string    `json:"target,omitempty"`
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message,omitempty"`
}
