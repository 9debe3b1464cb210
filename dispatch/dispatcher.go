package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"shopfloor/common"
	"shopfloor/domain"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

type Action string

const (
	ActionFillWorkApproved Action = "fillwork.approved"
	ActionOnsiteCompleted  Action = "onsite.completed"
	ActionRecompute        Action = "progress.recompute"
)

const DefaultQueueSize = 256

var ErrClosed = errors.New("dispatcher is closed")

// WorkOrderEvent asks for the progress of one work order to be brought up to date.
type WorkOrderEvent struct {
	Action      Action
	WorkOrderID types.ID
	Key         domain.WorkOrderKey
	PostedAt    time.Time
}

type Handler interface {
	Handle(ctx context.Context, e WorkOrderEvent) error
}

type HandlerFunc func(ctx context.Context, e WorkOrderEvent) error

func (f HandlerFunc) Handle(ctx context.Context, e WorkOrderEvent) error {
	return f(ctx, e)
}

// Poster accepts work order events, implemented by Dispatcher.
type Poster interface {
	Post(ctx context.Context, e WorkOrderEvent) error
}

// Dispatcher queues work order events and hands them to a single consumer in submission order.
type Dispatcher struct {
	queue   chan WorkOrderEvent
	handler Handler

	closeOnce sync.Once
	closed    chan struct{}
}

func NewDispatcher(size int, handler Handler) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{queue: make(chan WorkOrderEvent, size), handler: handler, closed: make(chan struct{})}
}

// Post enqueues e, waiting for room no longer than ctx allows.
func (d *Dispatcher) Post(ctx context.Context, e WorkOrderEvent) error {
	if e.PostedAt.IsZero() {
		e.PostedAt = time.Now()
	}
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	select {
	case d.queue <- e:
		return nil
	case <-d.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes events until ctx is done or Close is called. Handler failures are logged per work order.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.closed:
			return nil
		case e := <-d.queue:
			d.handle(ctx, e)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, e WorkOrderEvent) {
	defer func() {
		if r := recover(); r != nil {
			common.EntityLogger(domain.KindWorkOrder, e.Key.String()).Errorf("dispatch %s panic: %v", e.Action, r)
		}
	}()
	if err := d.handler.Handle(ctx, e); err != nil {
		common.EntityLogger(domain.KindWorkOrder, e.Key.String()).Errorf("dispatch %s failed: %v", e.Action, err)
		return
	}
	logrus.Debugf("dispatched %s of work order %s", e.Action, e.Key)
}

func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.closed) })
}

// Pending is the number of queued events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
