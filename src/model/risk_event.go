package model

import (
	"time"

	"github.com/google/uuid"
)

const RiskEventVersion = 1

type EventKind string

const (
	EventDailyLossWarning        EventKind = "DailyLossWarning"
	EventDailyLossBreach         EventKind = "DailyLossBreach"
	EventWeeklyTargetAchieved    EventKind = "WeeklyTargetAchieved"
	EventTrailingStopArmed       EventKind = "TrailingStopArmed"
	EventTrailingStopTriggered   EventKind = "TrailingStopTriggered"
	EventCircuitBreakerActivated EventKind = "CircuitBreakerActivated"
	EventCircuitBreakerReset     EventKind = "CircuitBreakerReset"
	EventPositionSizeAdjusted    EventKind = "PositionSizeAdjusted"
	EventDiversificationWarning  EventKind = "DiversificationWarning"
	EventHighUncertainty         EventKind = "HighUncertainty"
)

type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Command is the instruction an execution agent acts on. Empty for
// informational events.
type Command string

const (
	CommandNone          Command = ""
	CommandCloseAll      Command = "close_all"
	CommandPauseTrading  Command = "pause_trading"
	CommandClosePosition Command = "close_position"
)

// RiskEvent is the flat, versioned record sent to every sink.
type RiskEvent struct {
	ID         string    `json:"id"`
	Version    int       `json:"version"`
	Kind       EventKind `json:"kind"`
	Severity   Severity  `json:"severity"`
	Symbol     string    `json:"symbol,omitempty"`
	PositionID string    `json:"position_id,omitempty"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
	Command    Command   `json:"command,omitempty"`

	// EdgeKey identifies the condition edge for at-most-once delivery.
	// Empty means unthrottled. Not serialised.
	EdgeKey string `json:"-"`
}

func NewRiskEvent(kind EventKind, severity Severity, value float64, ts time.Time) RiskEvent {
	return RiskEvent{
		ID:        uuid.NewString(),
		Version:   RiskEventVersion,
		Kind:      kind,
		Severity:  severity,
		Value:     value,
		Timestamp: ts.UTC(),
	}
}

func (e RiskEvent) WithPosition(symbol, positionID string) RiskEvent {
	e.Symbol = symbol
	e.PositionID = positionID
	e.EdgeKey = string(e.Kind) + ":" + positionID
	return e
}

func (e RiskEvent) WithSymbol(symbol string) RiskEvent {
	e.Symbol = symbol
	return e
}

// PositionEdgeKeys are the throttle keys a position can hold.
func PositionEdgeKeys(positionID string) []string {
	return []string{
		string(EventTrailingStopArmed) + ":" + positionID,
		string(EventTrailingStopTriggered) + ":" + positionID,
	}
}

func (e RiskEvent) WithCommand(cmd Command) RiskEvent {
	e.Command = cmd
	return e
}

func (e RiskEvent) WithEdgeKey(key string) RiskEvent {
	e.EdgeKey = key
	return e
}

// RiskEventRecord is the journal row of a delivered event.
type RiskEventRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EventID    string    `gorm:"size:36;uniqueIndex" json:"event_id"`
	Version    int       `gorm:"not null" json:"version"`
	Kind       string    `gorm:"size:50;index" json:"kind"`
	Severity   string    `gorm:"size:20;index" json:"severity"`
	Symbol     string    `gorm:"size:50" json:"symbol,omitempty"`
	PositionID string    `gorm:"size:100" json:"position_id,omitempty"`
	Value      float64   `json:"value"`
	Command    string    `gorm:"size:30" json:"command,omitempty"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RiskEventRecord) TableName() string {
	return "risk_events"
}

func NewRiskEventRecord(e RiskEvent) *RiskEventRecord {
	return &RiskEventRecord{
		EventID:    e.ID,
		Version:    e.Version,
		Kind:       string(e.Kind),
		Severity:   string(e.Severity),
		Symbol:     e.Symbol,
		PositionID: e.PositionID,
		Value:      e.Value,
		Command:    string(e.Command),
		Timestamp:  e.Timestamp,
	}
}

func (r RiskEventRecord) ToRiskEvent() RiskEvent {
	return RiskEvent{
		ID:         r.EventID,
		Version:    r.Version,
		Kind:       EventKind(r.Kind),
		Severity:   Severity(r.Severity),
		Symbol:     r.Symbol,
		PositionID: r.PositionID,
		Value:      r.Value,
		Command:    Command(r.Command),
		Timestamp:  r.Timestamp,
	}
}
