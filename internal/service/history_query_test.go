package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wisefido-power/internal/models"
	"wisefido-power/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenHistory struct{}

func (brokenHistory) Append(context.Context, models.HistoryPoint) error { return repository.ErrStorage }
func (brokenHistory) Query(context.Context, models.TimeRange) (models.HistorySeries, error) {
	return nil, repository.ErrStorage
}

func seededService(t *testing.T) *HistoryQueryService {
	hist, err := repository.NewFileHistoryLog(filepath.Join(t.TempDir(), "h.csv"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, hist.Append(context.Background(), models.HistoryPoint{
			Timestamp:  time.UnixMilli(i * 1000),
			PowerWatts: i * 100,
		}))
	}
	return NewHistoryQueryService(hist, zap.NewNop(), nil)
}

func TestHistoryQueryService_FullRange(t *testing.T) {
	s := seededService(t)

	pairs, err := s.Query(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{1000, 100}, {2000, 200}, {3000, 300}, {4000, 400}, {5000, 500}}, pairs)
}

func TestHistoryQueryService_EpochMillisRange(t *testing.T) {
	s := seededService(t)

	pairs, err := s.Query(context.Background(), "2000", "4000")
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{2000, 200}, {3000, 300}, {4000, 400}}, pairs)
}

func TestHistoryQueryService_RFC3339Range(t *testing.T) {
	s := seededService(t)

	from := time.UnixMilli(4000).UTC().Format(time.RFC3339)
	pairs, err := s.Query(context.Background(), from, "")
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{4000, 400}, {5000, 500}}, pairs)
}

func TestHistoryQueryService_EmptyRangeIsEmptySeries(t *testing.T) {
	s := seededService(t)

	pairs, err := s.Query(context.Background(), "9000", "10000")
	require.NoError(t, err)
	assert.NotNil(t, pairs)
	assert.Empty(t, pairs)
}

func TestHistoryQueryService_MalformedRange(t *testing.T) {
	s := seededService(t)

	for _, tc := range []struct{ from, to string }{
		{"yesterday", ""},
		{"", "12:00"},
		{"-5", ""},
		{"5000", "1000"},
	} {
		_, err := s.Query(context.Background(), tc.from, tc.to)
		assert.ErrorIs(t, err, ErrMalformedRange, "from=%q to=%q", tc.from, tc.to)
	}
}

func TestHistoryQueryService_StorageFaultPassesThrough(t *testing.T) {
	s := NewHistoryQueryService(brokenHistory{}, zap.NewNop(), nil)

	_, err := s.Query(context.Background(), "", "")
	assert.ErrorIs(t, err, repository.ErrStorage)
	assert.NotErrorIs(t, err, ErrMalformedRange)
}
