package scanner

import (
	"time"

	"StratLab/internal/domain/models"
)

// failureLog deduplicates per-bar failures so a broken expression is reported once with a count.
type failureLog struct {
	index   map[string]int
	records []models.FailureRecord
}

func newFailureLog() *failureLog {
	return &failureLog{index: make(map[string]int)}
}

func (f *failureLog) add(rec models.FailureRecord, at time.Time) {
	key := string(rec.ErrorType) + "|" + rec.FailedExpression + "|" + rec.Message
	if i, ok := f.index[key]; ok {
		f.records[i].Occurrences++
		return
	}
	rec.Occurrences = 1
	rec.FirstSeen = at
	f.index[key] = len(f.records)
	f.records = append(f.records, rec)
}

func (f *failureLog) addErr(err error, at time.Time) {
	f.add(models.FailureFromError(err), at)
}

func (f *failureLog) list() []models.FailureRecord {
	if f.records == nil {
		return []models.FailureRecord{}
	}
	return f.records
}
