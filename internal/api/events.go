package api

import (
	"time"
)

// DashboardEvent is the wrapper for all events sent to the dashboard.
type DashboardEvent struct {
	Type      string      `json:"type"`  // "snapshot", "entered", "filled", "terminated"
	Timestamp time.Time   `json:"timestamp"`
	Asset     string      `json:"asset"`
	Data      interface{} `json:"data"`
}

// EnteredEvent is emitted when a new position is entered.
type EnteredEvent struct {
	Asset       string `json:"asset"`
	ConditionID string `json:"condition_id"`
	Question    string `json:"question"`
}

// FilledEvent is emitted when one leg of a position fills.
type FilledEvent struct {
	Asset     string  `json:"asset"`
	TokenType string  `json:"token_type"` // "YES" or "NO"
	Price     float64 `json:"price"`
}

// TerminatedEvent is emitted when a position reaches done or expired.
type TerminatedEvent struct {
	Asset       string  `json:"asset"`
	Status      string  `json:"status"`
	RealizedPnL float64 `json:"realized_pnl"`
}

func NewEnteredEvent(asset, conditionID, question string) EnteredEvent {
	return EnteredEvent{Asset: asset, ConditionID: conditionID, Question: question}
}

func NewFilledEvent(asset, tokenType string, price float64) FilledEvent {
	return FilledEvent{Asset: asset, TokenType: tokenType, Price: price}
}

func NewTerminatedEvent(asset, status string, realizedPnL float64) TerminatedEvent {
	return TerminatedEvent{Asset: asset, Status: status, RealizedPnL: realizedPnL}
}
