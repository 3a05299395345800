package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate_FourHourScenario(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	q, err := Calculate(15, start, end)
	require.NoError(t, err)
	assert.Equal(t, 4, q.TotalHours)
	assert.Equal(t, 60.0, q.Subtotal)
	assert.Equal(t, 9.0, q.PlatformFee)
	assert.Equal(t, 69.0, q.TotalAmount)
	assert.Equal(t, 51.0, q.HostEarnings)
}

func TestCalculate_RoundsPartialHoursUp(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	q, err := Calculate(12.5, start, start.Add(2*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, q.TotalHours)
	assert.Equal(t, 37.5, q.Subtotal)
	assert.Equal(t, 5.63, q.PlatformFee)
	assert.Equal(t, 43.13, q.TotalAmount)
	assert.Equal(t, 31.87, q.HostEarnings)

	q, err = Calculate(8, start, start.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, q.TotalHours)
}

func TestCalculate_Identities(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rates := []float64{1, 3.33, 7.99, 15, 22.5, 100}
	durations := []time.Duration{
		30 * time.Minute,
		time.Hour,
		90 * time.Minute,
		5 * time.Hour,
		26*time.Hour + 17*time.Minute,
	}

	for _, rate := range rates {
		for _, d := range durations {
			q, err := Calculate(rate, start, start.Add(d))
			require.NoError(t, err)

			hours := BillableHours(start, start.Add(d))
			assert.Equal(t, hours, q.TotalHours)
			assert.Equal(t, toCents(float64(hours)*rate), toCents(q.Subtotal))
			assert.Equal(t, toCents(q.Subtotal)+toCents(q.PlatformFee), toCents(q.TotalAmount))
			assert.Equal(t, toCents(q.Subtotal)-toCents(q.PlatformFee), toCents(q.HostEarnings))
		}
	}
}

func TestCalculate_RejectsInvalidInput(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	_, err := Calculate(15, start, start)
	require.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = Calculate(15, start, start.Add(-time.Hour))
	require.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = Calculate(0, start, start.Add(time.Hour))
	require.ErrorIs(t, err, ErrInvalidRate)

	_, err = Calculate(-5, start, start.Add(time.Hour))
	require.ErrorIs(t, err, ErrInvalidRate)
}
