package workerpool

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Pool runs submitted jobs on a fixed number of goroutines.
type Pool struct {
	workers    int
	jobs       chan func()
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopSignal chan struct{}
	active     atomic.Int64

	// observe is called with (active, queued) after every state change.
	observe func(active, queued int)
	lg      zerolog.Logger
}

func New(workers int, observe func(active, queued int), lg zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		workers:    workers,
		jobs:       make(chan func(), workers*2),
		stopSignal: make(chan struct{}),
		observe:    observe,
		lg:         lg.With().Str("component", "worker_pool").Logger(),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		p.active.Add(1)
		p.report()
		p.run(job)
		p.active.Add(-1)
		p.report()
	}
}

func (p *Pool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.lg.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("job panicked")
		}
	}()
	job()
}

// Submit blocks until a worker slot is free. It returns false once the pool
// has been stopped.
func (p *Pool) Submit(job func()) (ok bool) {
	select {
	case <-p.stopSignal:
		return false
	default:
	}

	// a concurrent Stop closes jobs; sending on it panics
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case <-p.stopSignal:
		return false
	case p.jobs <- job:
		p.report()
		return true
	}
}

// Stop rejects new jobs, drains the queue and waits for running jobs.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopSignal)
		close(p.jobs)
	})
	p.wg.Wait()
}

func (p *Pool) Active() int { return int(p.active.Load()) }

func (p *Pool) report() {
	if p.observe != nil {
		p.observe(int(p.active.Load()), len(p.jobs))
	}
}
