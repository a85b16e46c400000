package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge/snapshot"
)

// Loader replaces the knowledge collection.
type Loader interface {
	Load(ctx context.Context, items []knowledge.Item) error
}

// Refresher reloads the knowledge snapshot into the store on a cron schedule.
type Refresher struct {
	source snapshot.Store
	target Loader
	expr   *cronexpr.Expression
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewRefresher parses schedule ("@hourly", "@daily" or a cron expression).
func NewRefresher(schedule string, source snapshot.Store, target Loader, logger *log.Logger) (*Refresher, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse refresh cron %q: %w", schedule, err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[REFRESH] ", log.LstdFlags)
	}
	return &Refresher{
		source: source,
		target: target,
		expr:   expr,
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Next returns the first scheduled reload after t.
func (r *Refresher) Next(t time.Time) time.Time { return r.expr.Next(t) }

// Start runs the reload loop until ctx ends or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		for {
			next := r.Next(r.now())
			if next.IsZero() {
				r.logger.Printf("warn: refresh schedule has no future run")
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-r.stop:
				timer.Stop()
				return
			case <-timer.C:
				if err := r.Refresh(ctx); err != nil {
					r.logger.Printf("warn: knowledge refresh failed: %v", err)
				}
			}
		}
	}()
}

// Stop ends the loop and waits for it.
func (r *Refresher) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if started {
		<-r.done
	}
}

// Refresh loads the snapshot once. A missing snapshot leaves the store untouched.
func (r *Refresher) Refresh(ctx context.Context) error {
	items, err := r.source.Load(ctx)
	if errors.Is(err, snapshot.ErrNotFound) {
		r.logger.Printf("no knowledge snapshot yet")
		return nil
	}
	if err != nil {
		return err
	}
	if err := r.target.Load(ctx, items); err != nil {
		return err
	}
	r.logger.Printf("reloaded %d knowledge items", len(items))
	return nil
}
