package models

import "time"

// Bar is one OHLCV record with the indicator columns precomputed upstream.
// Indicator fields left at zero are recomputed from prices by the scanner.
type Bar struct {
	Symbol      string    `json:"symbol"`
	Timestamp   time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	VWAP        float64   `json:"vwap"`
	EMA9        float64   `json:"ema9"`
	EMA20       float64   `json:"ema20"`
	EMA50       float64   `json:"ema50"`
	AvgVolume20 float64   `json:"avg_volume_20"`
}
