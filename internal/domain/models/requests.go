package models

import "time"

// Requests for backtest HTTP endpoints, queue jobs and Kafka messages.

type BacktestRequest struct {
	RunID      string    `json:"run_id,omitempty"`
	Strategy   Strategy  `json:"strategy" validate:"required"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required,gtfield=Start"`
	FillPolicy string    `json:"fill_policy" default:"close" validate:"oneof=close next_open"`
	Async      bool      `json:"async"`
}

type BatchRequest struct {
	Runs []BacktestRequest `json:"runs" validate:"required,min=1,max=50,dive"`
}

type FromTextRequest struct {
	Text       string    `json:"text" validate:"required,max=4000"`
	Symbol     string    `json:"symbol" validate:"required"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required,gtfield=Start"`
	FillPolicy string    `json:"fill_policy" default:"close" validate:"oneof=close next_open"`
}

type RunRequest struct {
	ID string `param:"id" validate:"required"`
}

type SimilarRequest struct {
	ID    string `param:"id" validate:"required"`
	Index int    `param:"index" validate:"gte=0"`
	Top   int    `query:"top" default:"5" validate:"gte=1,lte=50"`
}

type HeatmapRequest struct {
	ID        string `param:"id" validate:"required"`
	Dimension string `query:"dimension" default:"hour" validate:"oneof=hour day condition"`
}

type FactsRequest struct {
	ID        string `param:"id" validate:"required"`
	Index     int    `param:"index" validate:"gte=0"`
	Narrative bool   `query:"narrative"`
}

// RunAccepted is returned for asynchronous submissions.
type RunAccepted struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}
