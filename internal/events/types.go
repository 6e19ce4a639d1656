// Package events implements the typed publish/subscribe Event Bus from
// spec.md §4.1 on top of the subject-based internal/events/bus backplane.
package events

import "time"

// Base carries the fields every event shares, per spec.md §3.
type Base struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// SessionCreated is published when the Session Manager creates a session.
type SessionCreated struct {
	Base
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// SessionEnded is published when a session transitions to Completed.
type SessionEnded struct {
	Base
	SessionID string `json:"sessionId"`
}

// MessageAdded is published whenever a message is appended to a session's log.
type MessageAdded struct {
	Base
	SessionID      string `json:"sessionId"`
	MessageID      string `json:"messageId"`
	AgentID        string `json:"agentId"`
	SequenceNumber int    `json:"sequenceNumber"`
}

// AgentStatusChanged is published on every agent state machine transition.
type AgentStatusChanged struct {
	Base
	AgentID     string `json:"agentId"`
	OldStatus   string `json:"oldStatus"`
	NewStatus   string `json:"newStatus"`
}

// OrchestrationStepCompleted is published after each plan step reaches a
// terminal status (Completed, Failed, or Skipped).
type OrchestrationStepCompleted struct {
	Base
	PlanID    string `json:"planId"`
	SessionID string `json:"sessionId"`
	StepID    string `json:"stepId"`
	Status    string `json:"status"`
}

// OrchestrationProgressEvent mirrors OrchestrationProgress (spec.md §3) as
// an Event Bus payload, published alongside the progressSink push.
type OrchestrationProgressEvent struct {
	Base
	PlanID         string  `json:"planId"`
	SessionID      string  `json:"sessionId"`
	CurrentStep    int     `json:"currentStep"`
	TotalSteps     int     `json:"totalSteps"`
	CurrentAgent   string  `json:"currentAgent"`
	CurrentTask    string  `json:"currentTask"`
	PercentComplete float64 `json:"percentComplete"`
}
