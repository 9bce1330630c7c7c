package commandqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCommandQueue_BasicEnqueue(t *testing.T) {
	cq := New()
	defer cq.Close()

	executed := false
	task := func(ctx context.Context) (interface{}, error) {
		executed = true
		return "result", nil
	}

	result, err := cq.Enqueue("test", task, nil)

	assert.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.True(t, executed)
}

func TestCommandQueue_TaskError(t *testing.T) {
	cq := New()
	defer cq.Close()

	expectedErr := errors.New("task failed")
	task := func(ctx context.Context) (interface{}, error) {
		return nil, expectedErr
	}

	result, err := cq.Enqueue("test", task, nil)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Nil(t, result)
}

func TestCommandQueue_SessionLaneSerialization(t *testing.T) {
	cq := New()
	defer cq.Close()

	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	lane := SessionLane("abc")
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cq.Enqueue(lane, func(ctx context.Context) (interface{}, error) {
				now := atomic.AddInt32(&active, 1)
				for {
					prev := atomic.LoadInt32(&maxActive)
					if now <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, now) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil, nil
			}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive, "session lane must run one turn at a time")
}

func TestCommandQueue_ConcurrentLanes(t *testing.T) {
	cq := New()
	defer cq.Close()

	var count1, count2 int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = cq.Enqueue(SessionLane("one"), func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				count1++
				mu.Unlock()
				return nil, nil
			}, nil)
		}()
		go func() {
			defer wg.Done()
			_, _ = cq.Enqueue(SessionLane("two"), func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				count2++
				mu.Unlock()
				return nil, nil
			}, nil)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count1)
	assert.Equal(t, 3, count2)
}

func TestCommandQueue_Dedup(t *testing.T) {
	cq := New()
	defer cq.Close()

	var runs int32
	task := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&runs, 1)
		return "outcome", nil
	}

	opts := &TaskOptions{RequestID: "batch-1"}

	first, err := cq.Enqueue("test", task, opts)
	assert.NoError(t, err)
	second, err := cq.Enqueue("test", task, opts)
	assert.NoError(t, err)

	assert.Equal(t, "outcome", first)
	assert.Equal(t, "outcome", second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs), "deduplicated task must run once")
}

func TestCommandQueue_GetStats(t *testing.T) {
	cq := New()
	defer cq.Close()

	stats := cq.GetStats()

	assert.Contains(t, stats, MaintenanceLane)
	assert.Equal(t, 2, stats[MaintenanceLane]["concurrency"])
}

func TestCommandQueue_ClearLane(t *testing.T) {
	cq := New()
	defer cq.Close()

	for i := 0; i < 5; i++ {
		go func() {
			task := func(ctx context.Context) (interface{}, error) {
				time.Sleep(1 * time.Second)
				return nil, nil
			}
			_, _ = cq.Enqueue("test", task, nil)
		}()
	}

	time.Sleep(50 * time.Millisecond)

	cleared := cq.ClearLane("test")
	assert.Greater(t, cleared, 0)
}

func TestCommandQueue_SetConcurrency(t *testing.T) {
	cq := New()
	defer cq.Close()

	cq.SetConcurrency("test", 3)

	stats := cq.GetStats()
	assert.Equal(t, 3, stats["test"]["concurrency"])
}

func TestCommandQueue_WaitForActive(t *testing.T) {
	cq := New()
	defer cq.Close()

	go func() {
		task := func(ctx context.Context) (interface{}, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, nil
		}
		_, _ = cq.Enqueue("test", task, nil)
	}()

	time.Sleep(10 * time.Millisecond)

	drained := cq.WaitForActive(200 * time.Millisecond)
	assert.True(t, drained)
}

func TestCommandQueue_EventEmission(t *testing.T) {
	queue := New()
	defer queue.Close()

	var events []Event
	var mu sync.Mutex

	queue.On("enqueued", func(event Event) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	queue.On("completed", func(event Event) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	_, err := queue.Enqueue("test", Task(func(ctx context.Context) (interface{}, error) {
		return "result", nil
	}), nil)
	assert.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.GreaterOrEqual(t, len(events), 2, "Should have at least enqueued and completed events")

	enqueuedFound := false
	completedFound := false

	for _, event := range events {
		if event.Type == "enqueued" {
			enqueuedFound = true
			assert.Equal(t, "test", event.Lane)
			assert.NotEmpty(t, event.TaskID)
			assert.Contains(t, event.Data, "queueSize")
		}
		if event.Type == "completed" {
			completedFound = true
			assert.Equal(t, "test", event.Lane)
			assert.NotEmpty(t, event.TaskID)
			assert.Contains(t, event.Data, "duration")
			assert.Contains(t, event.Data, "success")
		}
	}

	assert.True(t, enqueuedFound, "Should have enqueued event")
	assert.True(t, completedFound, "Should have completed event")
}

func TestCommandQueue_EventOff(t *testing.T) {
	queue := New()
	defer queue.Close()

	eventCount := 0

	queue.On("enqueued", func(event Event) {
		eventCount++
	})

	_, _ = queue.Enqueue("test", Task(func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}), nil)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, eventCount)

	queue.Off("enqueued")

	_, _ = queue.Enqueue("test", Task(func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}), nil)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, eventCount, "Should not receive events after Off")
}
