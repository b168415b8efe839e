package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"obligation-service/pkg/logger"
	"obligation-service/prometheus"
)

type job struct {
	ctx    context.Context
	method Method
	req    Request
}

// Dispatcher runs analysis calls on a fixed pool of workers fed by a
// bounded queue.
type Dispatcher struct {
	client  Client
	timeout time.Duration
	queue   chan job
	group   *errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers goroutines consuming a queue of queueSize
// jobs. Each job gets timeout to finish.
func NewDispatcher(client Client, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		client:  client,
		timeout: timeout,
		queue:   make(chan job, queueSize),
		group:   &errgroup.Group{},
	}
	for i := 0; i < workers; i++ {
		d.group.Go(d.work)
	}
	return d
}

// Enqueue schedules a call and reports whether it was accepted. It never
// blocks: a full queue drops the job. The job keeps ctx values but not its
// cancellation.
func (d *Dispatcher) Enqueue(ctx context.Context, method Method, req Request) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		prometheus.RecordAnalysisJob(string(method), "dropped")
		return false
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), method: method, req: req}:
		return true
	default:
		prometheus.RecordAnalysisJob(string(method), "dropped")
		logger.FromContext(ctx).Warn("Analysis queue full, dropping job",
			zap.String("method", string(method)),
			zap.String("obligation_id", req.ObligationID))
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	return d.group.Wait()
}

func (d *Dispatcher) work() error {
	for j := range d.queue {
		d.run(j)
	}
	return nil
}

func (d *Dispatcher) run(j job) {
	ctx := j.ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := d.call(ctx, j)
	if err != nil {
		prometheus.RecordAnalysisJob(string(j.method), "error")
		logger.FromContext(ctx).Warn("Analysis job failed",
			zap.String("method", string(j.method)),
			zap.String("obligation_id", j.req.ObligationID),
			zap.Error(err))
		return
	}
	prometheus.RecordAnalysisJob(string(j.method), "success")
}

func (d *Dispatcher) call(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panic: %v", r)
		}
	}()
	switch j.method {
	case MethodAnalyze:
		return d.client.Analyze(ctx, j.req)
	case MethodSuggestActions:
		return d.client.SuggestActions(ctx, j.req)
	default:
		return fmt.Errorf("unknown analysis method %q", j.method)
	}
}
