package utils

import (
	"errors"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	TASK_CHAN_SIZE = 100
)

var (
	ErrPoolClosed = errors.New("worker pool closed")
)

type WorkerFunction = func(t *tomb.Tomb, task any) error
type WorkerPool struct {
	n     uint     // number of workers
	tasks chan any // task connection pool
}

func NewWorkerPool(size uint) WorkerPool {
	return NewWorkerPoolWithQueue(size, TASK_CHAN_SIZE)
}

// NewWorkerPoolWithQueue returns a pool whose task queue holds up to queue
// tasks before AddTask blocks.
func NewWorkerPoolWithQueue(size, queue uint) WorkerPool {
	if size == 0 {
		size = 1
	}
	return WorkerPool{
		n:     size,
		tasks: make(chan any, queue),
	}
}

// Capacity is the number of tasks the queue holds without blocking.
func (pool *WorkerPool) Capacity() int {
	return cap(pool.tasks)
}

// Setup starts the workers on the tomb. Workers return once the pool is
// closed and drained, or when the tomb starts dying.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	for id := range pool.n {
		t.Go(func() error {
			return pool.worker(t, int(id), work)
		})
	}
}

// AddTask queues a task, blocking while the queue is full. It gives up once
// the tomb is dying.
func (pool *WorkerPool) AddTask(t *tomb.Tomb, task any) error {
	select {
	case <-t.Dying():
		return ErrPoolClosed
	case pool.tasks <- task:
		return nil
	}
}

// Drain removes the tasks still queued without waiting for new ones.
func (pool *WorkerPool) Drain() []any {
	var tasks []any
	for {
		select {
		case task, ok := <-pool.tasks:
			if !ok {
				return tasks
			}
			tasks = append(tasks, task)
		default:
			return tasks
		}
	}
}

// Close signals that no more tasks will be added.
func (pool *WorkerPool) Close() {
	close(pool.tasks)
}

// Workers wait on tasks in the task connection pool and action them.
func (pool *WorkerPool) worker(t *tomb.Tomb, id int, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task, ok := <-pool.tasks:
			if !ok {
				return nil
			}
			if err := work(t, task); err != nil {
				log.Error().Err(err).Int("id", id).Msg("worker exiting")
				return err
			}
		}
	}
}
