package common

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueHandlerChunks(t *testing.T) {
	var mu sync.Mutex
	batches := [][]int{}
	q := NewQueueHandler(func(items []int) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, append([]int(nil), items...))
	}, 2, time.Hour)

	q.Add(1, 2, 3)
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	total := []int{}
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), 2)
		total = append(total, b...)
	}
	assert.Equal(t, []int{1, 2, 3}, total)
	assert.Equal(t, 0, q.Len())
}

func TestQueueHandlerProcessesOnAdd(t *testing.T) {
	got := make(chan []string, 1)
	q := NewQueueHandler(func(items []string) { got <- items }, 10, time.Hour)
	defer q.Close()

	q.Add("a")
	select {
	case items := <-got:
		assert.Equal(t, []string{"a"}, items)
	case <-time.After(2 * time.Second):
		t.Fatal("queue was not processed")
	}
}
