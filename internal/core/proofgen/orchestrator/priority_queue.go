package orchestrator

import (
	"container/heap"
)

// ============================================================================
// 任务优先级队列
// ============================================================================
//
// 🎯 **调度规则**：
// - 最大堆，优先级值越大越先出队
// - 优先级相同按入队顺序（FIFO）
// - 合并请求提升优先级后通过 Fix 重新堆化
//
// ⚠️ **注意**：队列本身不加锁，由编排器的互斥锁保护。
//
// ============================================================================

// QueueStats 队列统计信息
type QueueStats struct {
	TotalEnqueued       int64 `json:"total_enqueued"`
	TotalDequeued       int64 `json:"total_dequeued"`
	CurrentSize         int   `json:"current_size"`
	MaxSize             int   `json:"max_size"`
	PriorityAdjustments int64 `json:"priority_adjustments"`
}

// priorityQueue 待证明任务队列
type priorityQueue struct {
	items jobHeap
	seq   uint64
	stats QueueStats
}

func newPriorityQueue() *priorityQueue {
	return &priorityQueue{items: make(jobHeap, 0)}
}

// Enqueue 入队，分配 FIFO 序号
func (pq *priorityQueue) Enqueue(j *job) {
	pq.seq++
	j.seq = pq.seq
	heap.Push(&pq.items, j)

	pq.stats.TotalEnqueued++
	if n := pq.items.Len(); n > pq.stats.MaxSize {
		pq.stats.MaxSize = n
	}
}

// Dequeue 取出优先级最高的任务，队列为空返回 nil
func (pq *priorityQueue) Dequeue() *job {
	if pq.items.Len() == 0 {
		return nil
	}
	j := heap.Pop(&pq.items).(*job)
	pq.stats.TotalDequeued++
	return j
}

// Remove 移除仍在队列中的任务
func (pq *priorityQueue) Remove(j *job) bool {
	if j.index < 0 || j.index >= pq.items.Len() || pq.items[j.index] != j {
		return false
	}
	heap.Remove(&pq.items, j.index)
	return true
}

// UpdatePriority 调整任务优先级，任务不在队列中时只更新字段
func (pq *priorityQueue) UpdatePriority(j *job, priority int) {
	if j.priority == priority {
		return
	}
	j.priority = priority
	if j.index >= 0 && j.index < pq.items.Len() && pq.items[j.index] == j {
		heap.Fix(&pq.items, j.index)
	}
	pq.stats.PriorityAdjustments++
}

// Len 队列长度
func (pq *priorityQueue) Len() int {
	return pq.items.Len()
}

// Stats 统计信息副本
func (pq *priorityQueue) Stats() QueueStats {
	s := pq.stats
	s.CurrentSize = pq.items.Len()
	return s
}

// ============================================================================
// heap.Interface 实现
// ============================================================================

type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

// Less 优先级高的在前，相同优先级序号小的在前
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x interface{}) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}
