// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package journal

import (
	"time"

	"github.com/noldarim/mindlaunch/internal/dispatch"
)

// AttemptRecord is the persisted summary of one generation attempt.
type AttemptRecord struct {
	ID      string `gorm:"primaryKey;type:text" json:"id"`
	Kind    string `gorm:"not null;type:text;index" json:"kind"`
	Input   string `gorm:"type:text" json:"input"`
	LLMType string `gorm:"type:text" json:"llm_type"`

	Outcome     string `gorm:"not null;type:text;index" json:"outcome"` // "success" or "failure"
	Reason      string `gorm:"type:text" json:"reason,omitempty"`
	FinalStatus string `gorm:"type:text" json:"final_status"`

	// Success payload and the server's extras
	Payload           string `gorm:"type:text" json:"payload,omitempty"`
	PayloadBytes      int    `gorm:"type:integer" json:"payload_bytes"`
	AttemptsUsed      int    `gorm:"type:integer" json:"attempts_used,omitempty"`
	ValidationMessage string `gorm:"type:text" json:"validation_message,omitempty"`

	StepCount    int `gorm:"type:integer" json:"step_count"`
	DroppedLines int `gorm:"type:integer" json:"dropped_lines"`

	StartedAt  time.Time `gorm:"not null;index" json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Steps []AttemptStep `gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

// TableName overrides the default table name
func (AttemptRecord) TableName() string {
	return "attempts"
}

// Succeeded reports whether the attempt produced a payload.
func (r *AttemptRecord) Succeeded() bool {
	return r.Outcome == "success"
}

// Duration is the wall time of the attempt.
func (r *AttemptRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// AttemptStep is one step of an attempt, in the order the attempt entered it.
type AttemptStep struct {
	AttemptID string `gorm:"primaryKey;type:text;index:idx_attempt_steps_position,priority:1" json:"attempt_id"`
	Position  int    `gorm:"primaryKey;autoIncrement:false;index:idx_attempt_steps_position,priority:2" json:"position"`
	Status    string `gorm:"not null;type:text" json:"status"`
	Message   string `gorm:"type:text" json:"message,omitempty"`
	Lifecycle string `gorm:"not null;type:text" json:"lifecycle"`
}

// TableName overrides the default table name
func (AttemptStep) TableName() string {
	return "attempt_steps"
}

// NewRecord converts a finished attempt into its persisted form.
func NewRecord(a dispatch.Attempt) *AttemptRecord {
	res := a.Result()
	rec := &AttemptRecord{
		ID:           a.ID,
		Kind:         string(a.Request.Kind),
		Input:        a.Request.Reference(),
		LLMType:      a.Request.LLM.Type,
		Outcome:      res.Outcome.String(),
		Reason:       res.Reason,
		FinalStatus:  string(a.State.Phase.Code),
		StepCount:    len(a.State.Steps),
		DroppedLines: a.Dropped,
		StartedAt:    a.StartedAt,
		FinishedAt:   a.FinishedAt,
	}
	if res.OK() {
		rec.Payload = res.Payload
		rec.PayloadBytes = len(res.Payload)
		rec.AttemptsUsed = res.AttemptsUsed
		rec.ValidationMessage = res.ValidationMessage
	}

	rec.Steps = make([]AttemptStep, 0, len(a.State.Steps))
	for i, s := range a.State.Steps {
		rec.Steps = append(rec.Steps, AttemptStep{
			AttemptID: a.ID,
			Position:  i,
			Status:    string(s.Status),
			Message:   s.Message,
			Lifecycle: s.Lifecycle.String(),
		})
	}
	return rec
}
