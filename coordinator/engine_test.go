package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagkeep/reader/readertest"
	"tagkeep/registry"
)

func startEngine(t *testing.T, listeners ...Listener) (*Engine, *readertest.Fake, context.CancelFunc) {
	t.Helper()
	reg, _ := newFlashRegistry(t)
	rdr := &readertest.Fake{}
	coord := New(reg, rdr, Config{Timeout: 2 * time.Second, PollInterval: 5 * time.Millisecond})
	eng := NewEngine(coord)
	eng.Subscribe(listeners...)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- eng.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	return eng, rdr, cancel
}

func TestEngine_Acquisition(t *testing.T) {
	t.Parallel()
	submitted := make(chan Pending, 4)
	finished := make(chan Event, 4)
	deleted := make(chan registry.Entry, 4)
	eng, rdr, _ := startEngine(t, Handlers{
		OnSubmit: func(p Pending) { submitted <- p },
		OnFinish: func(ev Event) { finished <- ev },
		OnDelete: func(e registry.Entry) { deleted <- e },
	})
	ctx := context.Background()

	id, err := eng.Submit(ctx, Request{Intent: IntentRegister, Label: "Keys", Origin: OriginHTTP})
	require.NoError(t, err)

	p := <-submitted
	assert.Equal(t, id, p.RequestID)
	assert.Equal(t, "Keys", p.Request.Label)

	_, err = eng.Submit(ctx, Request{Intent: IntentIdentify, Origin: OriginConsole})
	require.ErrorIs(t, err, ErrBusy)

	st, err := eng.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, IntentRegister, st.Mode)

	rdr.Present(cardA)

	var ev Event
	select {
	case ev = <-finished:
	case <-time.After(time.Second):
		t.Fatal("no acquisition result")
	}
	assert.Equal(t, id, ev.RequestID)
	assert.Equal(t, Success, ev.Outcome)
	assert.Equal(t, OriginHTTP, ev.Origin)

	entries, err := eng.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Keys", entries[0].Label)

	entry, err := eng.Delete(ctx, cardA)
	require.NoError(t, err)
	assert.Equal(t, "Keys", entry.Label)
	assert.Equal(t, cardA, (<-deleted).ID)

	_, err = eng.Delete(ctx, cardA)
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestEngine_Timeout(t *testing.T) {
	t.Parallel()
	finished := make(chan Event, 1)
	eng, _, _ := startEngine(t, Handlers{OnFinish: func(ev Event) { finished <- ev }})

	_, err := eng.Submit(context.Background(), Request{Intent: IntentIdentify, Origin: OriginConsole})
	require.NoError(t, err)

	select {
	case ev := <-finished:
		assert.Equal(t, Timeout, ev.Outcome)
		assert.Equal(t, 2*time.Second, ev.Elapsed)
	case <-time.After(5 * time.Second):
		t.Fatal("no timeout")
	}
}

func TestEngine_Stopped(t *testing.T) {
	t.Parallel()
	eng, _, cancel := startEngine(t)
	cancel()

	require.Eventually(t, func() bool {
		_, err := eng.Status(context.Background())
		return err == ErrStopped
	}, time.Second, 5*time.Millisecond)

	_, err := eng.Submit(context.Background(), Request{Intent: IntentIdentify, Origin: OriginHTTP})
	require.ErrorIs(t, err, ErrStopped)
}
