package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratLab/internal/domain/models"
)

func TestMemoryBarStore_GetBarsInclusiveAndOrdered(t *testing.T) {
	at := func(sym string, i int) models.Bar {
		return models.Bar{Symbol: sym, Timestamp: t0.Add(time.Duration(i) * time.Minute), Close: float64(i)}
	}
	s := NewMemoryBarStore([]models.Bar{at("ES", 3), at("ES", 0), at("NQ", 1), at("ES", 2), at("ES", 1)})

	bars, err := s.GetBars(context.Background(), "ES", t0.Add(time.Minute), t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.0, bars[0].Close)
	assert.Equal(t, 2.0, bars[1].Close)

	bars, err = s.GetBars(context.Background(), "ES", t0.Add(time.Hour), t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, bars)

	first, last, ok := s.Range("ES")
	require.True(t, ok)
	assert.Equal(t, t0, first)
	assert.Equal(t, t0.Add(3*time.Minute), last)

	_, _, ok = s.Range("CL")
	assert.False(t, ok)
}

func TestMemoryResultStore(t *testing.T) {
	s := NewMemoryResultStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &models.StrategyResult{RunID: "r1"}))

	res, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.RunID)

	_, err = s.Get(ctx, "r2")
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}
