package connectivity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event %v", e.State)
		}
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSwitch_DeliversTransitions(t *testing.T) {
	sw := NewSwitch(StateOffline)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := sw.Subscribe(ctx)
	require.NoError(t, err)

	sw.Set(StateOnline)
	e := recv(t, ch)
	assert.True(t, e.BecameOnline())
	assert.Equal(t, StateOnline, sw.Current())

	sw.Set(StateOffline)
	assert.Equal(t, StateOffline, recv(t, ch).State)
}

func TestSwitch_SameStateNotRepeated(t *testing.T) {
	sw := NewSwitch(StateOffline)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := sw.Subscribe(ctx)
	require.NoError(t, err)

	sw.Set(StateOffline)
	assertNoEvent(t, ch)

	sw.Set(StateOnline)
	recv(t, ch)
	sw.Set(StateOnline)
	assertNoEvent(t, ch)
}

// online -> offline -> online while the consumer is busy must not produce a
// second became-online.
func TestSwitch_CoalescesUnreadFlapping(t *testing.T) {
	sw := NewSwitch(StateOffline)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := sw.Subscribe(ctx)
	require.NoError(t, err)

	sw.Set(StateOnline)
	assert.Equal(t, StateOnline, recv(t, ch).State)

	sw.Set(StateOffline)
	sw.Set(StateOnline)
	assertNoEvent(t, ch)

	sw.Set(StateOffline)
	sw.Set(StateOnline)
	sw.Set(StateOffline)
	assert.Equal(t, StateOffline, recv(t, ch).State)
}

func TestSwitch_ClosesOnCancel(t *testing.T) {
	sw := NewSwitch(StateOnline)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := sw.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}

	// Restartable
	ch2, err := sw.Subscribe(context.Background())
	require.NoError(t, err)
	sw.Set(StateOffline)
	assert.Equal(t, StateOffline, recv(t, ch2).State)
}

func TestUnavailable(t *testing.T) {
	var m Monitor = Unavailable{}
	_, err := m.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, StateUnknown, m.Current())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "online", StateOnline.String())
	assert.Equal(t, "offline", StateOffline.String())
	assert.Equal(t, "unknown", StateUnknown.String())
}
