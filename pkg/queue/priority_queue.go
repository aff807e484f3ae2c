package queue

import (
	"container/heap"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// queuedTask orders tasks by priority (lower first) and, within equal
// priority, by submission sequence (spec §4.5: "priority-ordered...FIFO
// among equal priorities").
type queuedTask struct {
	task     models.Task
	sequence int64
	index    int
}

type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	return h[i].sequence < h[j].sequence
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	item := x.(*queuedTask)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

var _ = heap.Interface(&taskHeap{})
