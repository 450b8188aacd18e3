package pool

import (
	"context"
	"sync"

	"mediaPipeline/kafka"
)

type Handler func(context.Context, *kafka.JobMessage) error

// WorkerPool bounds the number of jobs handled at once. Jobs still waiting for a
// slot when ctx is done are dropped.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

func (p *WorkerPool) Submit(ctx context.Context, msg *kafka.JobMessage, handler Handler) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			handler(ctx, msg)
		case <-ctx.Done():
		}
	}()
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
