package model

import "time"

// Exception is a system-level failure persisted for audit, e.g. state
// corruption that halted the engine.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Service string `gorm:"size:100;index" json:"service"` // e.g. "risk_engine"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "breaker"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "Evaluate"

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	// debug | info | warn | error | fatal
	Level string `gorm:"size:20;index" json:"level"`

	// JSON encoded extra context
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
