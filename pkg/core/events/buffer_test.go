package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_DropsNonTerminalWhenFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan *Event, 10)
	for i := 0; i < 5; i++ {
		in <- NewEvent(EventNodeCompleted, "run-1", "n")
	}
	close(in)

	buf := NewBuffer(2)
	triggered := make(chan float64, 1)
	buf.SetBackpressureCallback(func(usage float64) { triggered <- usage })
	buf.Drain(ctx, in)

	totalIn, _, dropped := buf.Stats()
	assert.Equal(t, int64(2), totalIn)
	assert.Equal(t, int64(3), dropped)
	assert.True(t, buf.IsBackpressure())

	select {
	case usage := <-triggered:
		assert.GreaterOrEqual(t, usage, 0.8)
	case <-time.After(time.Second):
		t.Fatal("背压回调未触发")
	}

	var got int
	for {
		if _, ok := buf.Next(ctx); !ok {
			break
		}
		got++
	}
	assert.Equal(t, 2, got)
	assert.False(t, buf.IsBackpressure())
}

func TestBuffer_TerminalEventBlocksUntilConsumed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan *Event, 4)
	in <- NewEvent(EventNodeStarted, "run-1", "a")
	in <- NewEvent(EventNodeCompleted, "run-1", "a")
	in <- NewEvent(EventRunCompleted, "run-1", "")
	close(in)

	buf := NewBuffer(1)
	go buf.Drain(ctx, in)

	var last *Event
	for {
		e, ok := buf.Next(ctx)
		if !ok {
			break
		}
		last = e
	}
	require.NotNil(t, last)
	assert.True(t, last.Terminal(), "终止事件不能被丢弃")
}

func TestBuffer_NextStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	buf := NewBuffer(0)
	cancel()
	_, ok := buf.Next(ctx)
	assert.False(t, ok)
}
