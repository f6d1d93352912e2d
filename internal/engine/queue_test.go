package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldpurpose/internal/ir"
)

func testRequest(caller string) request {
	return request{
		ctx:   context.Background(),
		call:  ir.Call{Action: ir.ActionWithdraw, Caller: caller},
		reply: make(chan response, 1),
	}
}

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()
	var depths []int
	q.depth = func(n int) { depths = append(depths, n) }

	for _, caller := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(testRequest(caller)))
	}
	assert.Equal(t, []int{1, 2, 3}, depths)

	for _, want := range []string{"a", "b", "c"} {
		r, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, r.call.Caller)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
	assert.Equal(t, []int{1, 2, 3, 2, 1, 0}, depths)
}

func TestRequestQueue_Close(t *testing.T) {
	q := newRequestQueue()
	require.True(t, q.Enqueue(testRequest("a")))

	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(testRequest("b")), "enqueue after close should fail")
	assert.False(t, q.Drained(), "closed queue with a pending request is not drained")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Drained())

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Wait did not fire after close")
	}
}

func TestRequestQueue_SignalsOnEnqueue(t *testing.T) {
	q := newRequestQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(testRequest("late"))
	}()

	select {
	case <-q.Wait():
		r, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", r.call.Caller)
	case <-time.After(time.Second):
		t.Fatal("no signal after enqueue")
	}
}

func TestRequestQueue_ThreadSafe(t *testing.T) {
	q := newRequestQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(testRequest(fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for {
		r, ok := q.TryDequeue()
		if !ok {
			break
		}
		seen[r.call.Caller] = true
	}
	assert.Len(t, seen, producers*perProducer)
}
