package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestJob(id string, priority int) *job {
	return &job{id: id, priority: priority, index: -1}
}

func TestPriorityQueue_Order(t *testing.T) {
	pq := newPriorityQueue()
	pq.Enqueue(newTestJob("low-1", 1))
	pq.Enqueue(newTestJob("high", 10))
	pq.Enqueue(newTestJob("low-2", 1))
	pq.Enqueue(newTestJob("mid", 5))

	var order []string
	for j := pq.Dequeue(); j != nil; j = pq.Dequeue() {
		require.Equal(t, -1, j.index)
		order = append(order, j.id)
	}
	require.Equal(t, []string{"high", "mid", "low-1", "low-2"}, order)

	s := pq.Stats()
	require.EqualValues(t, 4, s.TotalEnqueued)
	require.EqualValues(t, 4, s.TotalDequeued)
	require.Equal(t, 4, s.MaxSize)
	require.Equal(t, 0, s.CurrentSize)
}

func TestPriorityQueue_UpdateAndRemove(t *testing.T) {
	pq := newPriorityQueue()
	a, b, c := newTestJob("a", 1), newTestJob("b", 2), newTestJob("c", 3)
	pq.Enqueue(a)
	pq.Enqueue(b)
	pq.Enqueue(c)

	pq.UpdatePriority(a, 9)
	require.Same(t, a, pq.Dequeue())
	require.EqualValues(t, 1, pq.Stats().PriorityAdjustments)

	require.True(t, pq.Remove(c))
	require.False(t, pq.Remove(c), "重复移除无效")
	require.False(t, pq.Remove(a), "已出队任务不在队列中")
	require.Equal(t, 1, pq.Len())

	// 不在队列中的任务只更新字段
	pq.UpdatePriority(a, 0)
	require.Equal(t, 0, a.priority)
	require.Same(t, b, pq.Dequeue())
	require.Nil(t, pq.Dequeue())
}
