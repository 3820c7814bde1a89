package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPoller_ModifyRearms(t *testing.T) {
	p := newPoller(t)
	r, w := newPipe(t)

	var count int
	require.NoError(t, p.Register(r, EventRead, func(Events) { count++ }))
	_, err := unix.Write(w, []byte("z"))
	require.NoError(t, err)

	_, err = p.PollIO(1000)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// still readable; MOD re-arms the edge
	require.NoError(t, p.Modify(r, EventRead|EventWrite))
	_, err = p.PollIO(1000)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEventsToEpoll(t *testing.T) {
	flags := eventsToEpoll(EventRead | EventWrite)
	assert.NotZero(t, flags&unix.EPOLLIN)
	assert.NotZero(t, flags&unix.EPOLLOUT)
	assert.NotZero(t, flags&uint32(unix.EPOLLET))

	ev := epollToEvents(unix.EPOLLIN | unix.EPOLLHUP | unix.EPOLLERR | unix.EPOLLRDHUP)
	assert.Equal(t, EventRead|EventHangup|EventError|EventReadHangup, ev)
}
