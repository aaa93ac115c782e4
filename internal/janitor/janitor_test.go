package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directchat/internal/domain"
	"directchat/internal/logger"
)

type fakeConvs struct {
	domain.ConversationRepository
	calls atomic.Int32
	n     int64
	err   error
}

func (f *fakeConvs) PruneDanglingRefs(context.Context) (int64, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(&fakeConvs{}, "every tuesday", logger.Discard())
	assert.Error(t, err)

	j, err := New(&fakeConvs{}, "", logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, j.schedule)
}

func TestNextTickFollowsSchedule(t *testing.T) {
	j, err := New(&fakeConvs{}, "0 * * * *", logger.Discard())
	require.NoError(t, err)

	next, err := j.next(time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), next)
}

func TestRunOnce(t *testing.T) {
	convs := &fakeConvs{n: 3}
	j, err := New(convs, "", logger.Discard())
	require.NoError(t, err)

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	convs.err = errors.New("database is locked")
	_, err = j.RunOnce(context.Background())
	assert.ErrorContains(t, err, "database is locked")
}

func TestRunTicksUntilCancelled(t *testing.T) {
	convs := &fakeConvs{}
	j, err := New(convs, "", logger.Discard())
	require.NoError(t, err)
	j.next = func(after time.Time) (time.Time, error) { return after.Add(5 * time.Millisecond), nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return convs.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
