package recovery

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRedispatcher struct {
	calls     atomic.Int32
	olderThan atomic.Int64
	count     int
	err       error
}

func (s *stubRedispatcher) Redispatch(_ context.Context, olderThan time.Duration) (int, error) {
	s.calls.Add(1)
	s.olderThan.Store(int64(olderThan))

	return s.count, s.err
}

func TestNewSweeper_Validation(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)

	tests := []struct {
		name       string
		schedule   string
		staleAfter time.Duration
		wantErr    bool
	}{
		{name: "default schedule", staleAfter: time.Minute},
		{name: "standard cron", schedule: "*/5 * * * *", staleAfter: time.Minute},
		{name: "invalid schedule", schedule: "every now and then", staleAfter: time.Minute, wantErr: true},
		{name: "zero stale after", schedule: "@every 1m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewSweeper(tt.schedule, tt.staleAfter, &stubRedispatcher{}, logger)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestSweeper_Sweep(t *testing.T) {
	t.Parallel()

	target := &stubRedispatcher{count: 3}

	s, err := NewSweeper("", 5*time.Minute, target, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	count, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(5*time.Minute), target.olderThan.Load())
}

func TestSweeper_SweepError(t *testing.T) {
	t.Parallel()

	unavailable := errors.New("store unavailable")
	target := &stubRedispatcher{count: 1, err: unavailable}

	s, err := NewSweeper("", time.Minute, target, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	count, err := s.Sweep(context.Background())
	require.ErrorIs(t, err, unavailable)
	assert.Equal(t, 1, count)
}

func TestSweeper_RunsOnSchedule(t *testing.T) {
	t.Parallel()

	target := &stubRedispatcher{}

	s, err := NewSweeper("@every 1s", time.Minute, target, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	assert.Eventually(t, func() bool {
		return target.calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSweeper_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s, err := NewSweeper("", time.Minute, &stubRedispatcher{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	assert.NotPanics(t, s.Stop)
}
