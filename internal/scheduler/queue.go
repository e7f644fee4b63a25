package scheduler

import (
	"container/heap"

	"github.com/timmy/docpipe/internal/domain"
)

type queueItem struct {
	jobID string
	rank  int
	seq   uint64
}

// jobQueue is a max-heap on priority rank, FIFO within a rank. It is not
// safe for concurrent use; the scheduler guards it with its mutex.
type jobQueue []*queueItem

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].rank != q[j].rank {
		return q[i].rank > q[j].rank
	}
	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *jobQueue) Push(x any) { *q = append(*q, x.(*queueItem)) }

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

type priorityQueue struct {
	items jobQueue
	seq   uint64
}

func (p *priorityQueue) push(jobID string, priority domain.Priority) {
	p.seq++
	heap.Push(&p.items, &queueItem{jobID: jobID, rank: priority.Rank(), seq: p.seq})
}

func (p *priorityQueue) pop() (string, bool) {
	if p.items.Len() == 0 {
		return "", false
	}
	return heap.Pop(&p.items).(*queueItem).jobID, true
}

func (p *priorityQueue) len() int { return p.items.Len() }
