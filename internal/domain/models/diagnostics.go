package models

// SimilarTrade is one match returned by a similarity search.
type SimilarTrade struct {
	Trade   TradeResult `json:"trade"`
	Score   int         `json:"score"`
	Matched []string    `json:"matched"`
}

type HeatmapDimension string

const (
	DimensionHour      HeatmapDimension = "hour"
	DimensionDay       HeatmapDimension = "day"
	DimensionCondition HeatmapDimension = "condition"
)

// HeatmapCell is the win rate of the trades falling into one bucket.
type HeatmapCell struct {
	Key      string  `json:"key"`
	Label    string  `json:"label"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"win_rate"`
	TotalPnl float64 `json:"total_pnl"`
	AvgPnl   float64 `json:"avg_pnl"`
}

type Heatmap struct {
	RunID     string           `json:"run_id"`
	Dimension HeatmapDimension `json:"dimension"`
	// Condition is set for the condition dimension and names the expression the buckets are built on.
	Condition string        `json:"condition,omitempty"`
	Cells     []HeatmapCell `json:"cells"`
}

// TradeFacts is the structured input handed to a narrative generator.
type TradeFacts struct {
	RunID        string     `json:"run_id"`
	TradeIndex   int        `json:"trade_index"`
	Direction    Direction  `json:"direction"`
	Result       Outcome    `json:"result"`
	Pnl          float64    `json:"pnl"`
	EntryReasons []string   `json:"entry_reasons"`
	ExitReason   ExitReason `json:"exit_reason"`
	HourBucket   string     `json:"hour_bucket"`
	Trend        string     `json:"trend"`
	Volatility   string     `json:"volatility"`
	EntryQuality float64    `json:"entry_quality"`
	ExitQuality  float64    `json:"exit_quality"`
	BarsHeld     int        `json:"bars_held"`
	Narrative    string     `json:"narrative,omitempty"`
}
