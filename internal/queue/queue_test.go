package queue

import (
	"sync"
	"testing"
	"time"
)

func TestFIFOOrdering(t *testing.T) {
	q := New(4)
	var got []int
	for i := 0; i < 4; i++ {
		i := i
		if err := q.TryEnqueue(Task{Fn: func() { got = append(got, i) }}); err != nil {
			t.Fatalf("unexpected error enqueuing %d: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		task, ok := q.DequeueBlocking()
		if !ok {
			t.Fatalf("expected a task at index %d", i)
		}
		task.Fn()
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("fifo order violated: got %v", got)
		}
	}
}

func TestTryEnqueueFullReturnsErrFull(t *testing.T) {
	q := New(1)
	if err := q.TryEnqueue(Task{}); err != nil {
		t.Fatalf("first enqueue should succeed: %v", err)
	}
	if err := q.TryEnqueue(Task{}); err != ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestEnqueueAfterShutdownFailsWithoutBlocking(t *testing.T) {
	q := New(1)
	q.Shutdown()

	done := make(chan struct{})
	go func() {
		if err := q.EnqueueBlocking(Task{}); err != ErrClosed {
			t.Errorf("expected ErrClosed, got %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EnqueueBlocking blocked after shutdown")
	}

	if err := q.TryEnqueue(Task{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed from TryEnqueue, got %v", err)
	}
}

func TestDequeueBlockingReturnsFalseWhenShutdownAndEmpty(t *testing.T) {
	q := New(2)
	q.Shutdown()
	if _, ok := q.DequeueBlocking(); ok {
		t.Fatalf("expected ok=false on a shut-down empty queue")
	}
}

func TestDequeueBlockingDrainsBeforeShutdownSignal(t *testing.T) {
	q := New(2)
	if err := q.TryEnqueue(Task{Fn: func() {}}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	q.Shutdown()

	if _, ok := q.DequeueBlocking(); !ok {
		t.Fatalf("expected the pending task to still be dequeued")
	}
	if _, ok := q.DequeueBlocking(); ok {
		t.Fatalf("expected ok=false once drained")
	}
}

func TestEnqueueBlockingWaitsForSpace(t *testing.T) {
	q := New(1)
	if err := q.TryEnqueue(Task{}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		close(started)
		if err := q.EnqueueBlocking(Task{}); err != nil {
			t.Errorf("blocking enqueue failed: %v", err)
		}
	}()

	<-started
	time.Sleep(20 * time.Millisecond)
	if _, ok := q.DequeueBlocking(); !ok {
		t.Fatalf("expected a task to dequeue")
	}
	wg.Wait()
}

func TestNoSpuriousDuplicates(t *testing.T) {
	q := New(8)
	const n = 100
	for i := 0; i < n; i++ {
		if err := q.EnqueueBlocking(Task{Arg: i}); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}
	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		task, ok := q.DequeueBlocking()
		if !ok {
			t.Fatalf("expected task %d", i)
		}
		v := task.Arg.(int)
		if seen[v] {
			t.Fatalf("duplicate task value %d", v)
		}
		seen[v] = true
	}
}
