package app

import (
	"context"
	"log"
	"sync"
)

// AnswerSaver is the remote side of the best-effort answer sync channel.
type AnswerSaver interface {
	SaveAnswer(ctx context.Context, answersID string, questionNumber, selectedOption int) error
}

type saveTask struct {
	// 1-indexed wire values; the session converts from internal 0-indexed
	// state before enqueueing.
	questionNumber int
	selectedOption int
}

// syncQueue pushes answer selections to the backend without ever blocking
// the session: local state is authoritative until submission, so sends are
// unordered and best-effort. Failed saves park in a pending list and are
// retried on the next navigation.
type syncQueue struct {
	ctx       context.Context
	remote    AnswerSaver
	answersID string
	tasks     chan saveTask

	mu      sync.Mutex
	pending []saveTask
}

const syncQueueDepth = 64

func newSyncQueue(ctx context.Context, remote AnswerSaver, answersID string) *syncQueue {
	q := &syncQueue{
		ctx:       ctx,
		remote:    remote,
		answersID: answersID,
		tasks:     make(chan saveTask, syncQueueDepth),
	}
	go q.run()
	return q
}

func (q *syncQueue) run() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			if err := q.remote.SaveAnswer(q.ctx, q.answersID, task.questionNumber, task.selectedOption); err != nil {
				if q.ctx.Err() != nil {
					return
				}
				log.Printf("save answer q%d deferred: %v", task.questionNumber, err)
				q.park(task)
			}
		}
	}
}

func (q *syncQueue) park(task saveTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Last write wins per question; stale selections are not worth retrying.
	for i := range q.pending {
		if q.pending[i].questionNumber == task.questionNumber {
			q.pending[i] = task
			return
		}
	}
	q.pending = append(q.pending, task)
}

// Enqueue submits one save without blocking. When the channel is full the
// task parks for a later Flush instead of stalling the caller.
func (q *syncQueue) Enqueue(questionNumber, selectedOption int) {
	task := saveTask{questionNumber: questionNumber, selectedOption: selectedOption}
	select {
	case q.tasks <- task:
	default:
		q.park(task)
	}
}

// Flush requeues parked tasks; called on navigation so retries piggyback on
// user activity instead of a timer.
func (q *syncQueue) Flush() {
	q.mu.Lock()
	parked := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, task := range parked {
		select {
		case q.tasks <- task:
		default:
			q.park(task)
		}
	}
}
