package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"StratLab/internal/domain/models"
	"StratLab/pkg/util"
)

// column aliases accepted in a bar export header
var barColumns = map[string][]string{
	"timestamp":     {"timestamp", "ts", "time", "datetime", "date"},
	"symbol":        {"symbol", "ticker"},
	"open":          {"open", "o"},
	"high":          {"high", "h"},
	"low":           {"low", "l"},
	"close":         {"close", "c"},
	"volume":        {"volume", "vol", "v"},
	"vwap":          {"vwap"},
	"ema9":          {"ema9"},
	"ema20":         {"ema20"},
	"ema50":         {"ema50"},
	"avg_volume_20": {"avg_volume_20", "avgvolume20"},
}

var requiredBarColumns = []string{"timestamp", "open", "high", "low", "close"}

// ReadBars parses a header-led CSV of bars. Rows without a symbol column get
// symbol; timestamps may be RFC3339, "2006-01-02 15:04:05" or unix seconds/ms.
func ReadBars(r io.Reader, symbol string) ([]models.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := indexColumns(header)
	for _, name := range requiredBarColumns {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	if _, ok := idx["symbol"]; !ok && symbol == "" {
		return nil, errors.New("no symbol column and no symbol given")
	}

	var bars []models.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseBar(rec, idx, symbol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for name, aliases := range barColumns {
			for _, a := range aliases {
				if h == a {
					if _, seen := idx[name]; !seen {
						idx[name] = i
					}
				}
			}
		}
	}
	return idx
}

func parseBar(rec []string, idx map[string]int, symbol string) (models.Bar, error) {
	field := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	ts, ok := util.ParseTime(field("timestamp"))
	if !ok {
		return models.Bar{}, fmt.Errorf("bad timestamp %q", field("timestamp"))
	}
	b := models.Bar{Symbol: util.NormalizeSymbol(field("symbol")), Timestamp: ts}
	if b.Symbol == "" {
		b.Symbol = util.NormalizeSymbol(symbol)
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open},
		{"high", &b.High},
		{"low", &b.Low},
		{"close", &b.Close},
		{"volume", &b.Volume},
		{"vwap", &b.VWAP},
		{"ema9", &b.EMA9},
		{"ema20", &b.EMA20},
		{"ema50", &b.EMA50},
		{"avg_volume_20", &b.AvgVolume20},
	} {
		v, err := util.ParseFloat(field(f.name))
		if err != nil {
			return models.Bar{}, fmt.Errorf("bad %s: %w", f.name, err)
		}
		*f.dst = v
	}
	if b.High < b.Low {
		return models.Bar{}, fmt.Errorf("high %v below low %v", b.High, b.Low)
	}
	return b, nil
}

var tradeHeader = []string{
	"index", "entry_time", "exit_time", "entry_price", "exit_price", "stop_price", "target_price",
	"contracts", "pnl", "result", "exit_reason", "bars_held", "mae", "mfe", "entry_quality", "exit_quality",
}

// WriteTrades writes one row per trade.
func WriteTrades(w io.Writer, trades []models.TradeResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		err := cw.Write([]string{
			strconv.Itoa(t.Index),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			formatF(t.EntryPrice),
			formatF(t.ExitPrice),
			formatF(t.StopPrice),
			formatF(t.TargetPrice),
			strconv.Itoa(t.Contracts),
			formatF(t.Pnl),
			string(t.Result),
			string(t.ExitReason),
			strconv.Itoa(t.BarsHeld),
			formatF(t.MAE),
			formatF(t.MFE),
			formatF(t.EntryQuality),
			formatF(t.ExitQuality),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
