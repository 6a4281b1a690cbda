package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/liuran001/MusicPlayer-Go/player"
)

var ErrPoolClosed = errors.New("worker pool closed")

// Pool runs tasks on a fixed number of goroutines.
type Pool struct {
	tasks    chan func()
	quit     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	size     int
	logger   player.Logger
}

// New creates a worker pool with the given size. A nil logger discards
// panic reports.
func New(size int, logger player.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = player.NopLogger{}
	}

	queueSize := size * 8
	if queueSize < 8 {
		queueSize = 8
	}

	p := &Pool{
		tasks:  make(chan func(), queueSize),
		quit:   make(chan struct{}),
		stop:   make(chan struct{}),
		size:   size,
		logger: logger.With("component", "worker"),
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.loop()
	}

	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case task := <-p.tasks:
			p.run(task)
		case <-p.quit:
			for {
				select {
				case <-p.stop:
					return
				case task := <-p.tasks:
					p.run(task)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) run(task func()) {
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Submit enqueues a task for execution.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case <-p.stop:
		return ErrPoolClosed
	case p.tasks <- task:
		return nil
	}
}

// SubmitWaitContext enqueues a task and waits for it to complete or for ctx
// to end. The task keeps running if ctx ends first.
func (p *Pool) SubmitWaitContext(ctx context.Context, task func() error) error {
	if task == nil {
		return nil
	}

	result := make(chan error, 1)
	err := p.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("task panicked: %v", r)
			}
		}()
		result <- task()
	})
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Shutdown stops accepting tasks and waits for queued ones until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.markClosed()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// StopNow closes the pool and drops queued tasks. Running tasks finish on
// their own.
func (p *Pool) StopNow() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.markClosed()
}

func (p *Pool) markClosed() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.quit)
	}
	p.mu.Unlock()
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}
