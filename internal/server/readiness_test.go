package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadySetRefusesUnwatchedHandles(t *testing.T) {
	r := require.New(t)
	set := NewReadySet()

	set.Watch(3)
	set.Watch(7)
	r.Equal(Handle(7), set.Max())

	r.True(set.Mark(Event{Handle: 3, Data: []byte("x")}))
	r.False(set.Mark(Event{Handle: 5}))
	r.Equal(1, set.Len())

	ev, ok := set.IsSet(3)
	r.True(ok)
	r.Equal("x", string(ev.Data))
	_, ok = set.IsSet(7)
	r.False(ok)

	set.Reset()
	r.Zero(set.Len())
	r.Zero(set.Max())
	r.False(set.Mark(Event{Handle: 3}))
}

func TestMuxHandlesAreNeverReused(t *testing.T) {
	mux := NewMux()
	defer mux.Close()

	noop := func() Event { return Event{} }
	w1 := mux.watch(noop)
	w2 := mux.watch(noop)
	w1.stop()
	w3 := mux.watch(noop)

	require.Less(t, w1.handle, w2.handle)
	require.Less(t, w2.handle, w3.handle)
}

func TestMuxWaitDeliversArmedResult(t *testing.T) {
	r := require.New(t)
	mux := NewMux()
	defer mux.Close()

	var runs atomic.Int32
	w := mux.watch(func() Event {
		runs.Add(1)
		return Event{Data: []byte("ping")}
	})

	set := NewReadySet()
	set.Watch(w.handle)
	w.arm()
	w.arm()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	n, err := mux.Wait(ctx, set)
	r.NoError(err)
	r.Equal(1, n)

	ev, ok := set.IsSet(w.handle)
	r.True(ok)
	r.Equal(w.handle, ev.Handle)
	r.Equal("ping", string(ev.Data))
	r.Equal(int32(1), runs.Load())
}

func TestMuxWaitCollectsEveryPendingResult(t *testing.T) {
	r := require.New(t)
	mux := NewMux()
	defer mux.Close()

	set := NewReadySet()
	release := make(chan struct{})
	var started atomic.Int32
	var watchers []*watcher
	for range 3 {
		w := mux.watch(func() Event {
			started.Add(1)
			<-release
			return Event{}
		})
		set.Watch(w.handle)
		w.arm()
		watchers = append(watchers, w)
	}
	r.Eventually(func() bool { return started.Load() == 3 }, testTimeout, time.Millisecond)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	total := 0
	for total < 3 {
		_, err := mux.Wait(ctx, set)
		r.NoError(err)
		total = set.Len()
	}
	for _, w := range watchers {
		_, ok := set.IsSet(w.handle)
		r.True(ok)
	}
}

func TestMuxWaitDiscardsStaleResults(t *testing.T) {
	r := require.New(t)
	mux := NewMux()
	defer mux.Close()

	serverSide, clientSide := tcpPair(t)

	w := mux.watch(func() Event { return Event{Conn: serverSide} })
	w.arm()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	n, err := mux.Wait(ctx, NewReadySet())
	r.NoError(err)
	r.Zero(n)

	requireClosed(t, clientSide)
}

func TestMuxWaitInterruptedByContext(t *testing.T) {
	mux := NewMux()
	defer mux.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := mux.Wait(ctx, NewReadySet())
	require.ErrorIs(t, err, ErrInterrupted)
	require.Zero(t, n)
}

func TestMuxWaitAfterClose(t *testing.T) {
	mux := NewMux()
	w := mux.watch(func() Event {
		time.Sleep(10 * time.Millisecond)
		return Event{}
	})
	w.arm()
	mux.Close()

	_, err := mux.Wait(context.Background(), NewReadySet())
	require.ErrorIs(t, err, ErrMuxClosed)
}
