package chamber

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/mechtester/pkg/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwait_SkipsNoise(t *testing.T) {
	m := newTestMock(t, false)
	m.Inject("garbage")
	m.Inject("MOTORS 12")

	line, err := Await(context.Background(), m, time.Second, nil, func(line string) bool {
		_, ok := command.ParseMotors(line)
		return ok
	})
	require.NoError(t, err)
	assert.Equal(t, "MOTORS 12", line)
}

func TestAwait_Timeout(t *testing.T) {
	m := newTestMock(t, false)
	m.Mute(true)

	_, err := Await(context.Background(), m, 30*time.Millisecond, nil, func(line string) bool {
		return false
	})
	assert.ErrorIs(t, err, ErrTransportTimeout)
}

func TestAwait_ParentCancelled(t *testing.T) {
	m := newTestMock(t, false)
	m.Mute(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Await(ctx, m, time.Second, nil, func(string) bool { return true })
	// Buffered boot lines may still be delivered before cancellation is seen.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTransportTimeout)
	}
}

func TestAwait_Closed(t *testing.T) {
	m := newTestMock(t, false)
	readLine(t, m)
	readLine(t, m)
	require.NoError(t, m.Close())

	_, err := Await(context.Background(), m, 0, nil, func(string) bool { return false })
	assert.Error(t, err)
}
