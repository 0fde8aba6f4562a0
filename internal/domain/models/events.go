package models

import "time"

type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

// RunEvent reports a run's progress to websocket subscribers.
type RunEvent struct {
	RunID    string    `json:"run_id"`
	Status   RunStatus `json:"status"`
	Symbol   string    `json:"symbol,omitempty"`
	Trades   int       `json:"trades,omitempty"`
	TotalPnl float64   `json:"total_pnl,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}
