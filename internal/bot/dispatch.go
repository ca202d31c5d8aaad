package bot

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// queueDepth bounds how many messages may wait behind an in-flight
// transition for one user. Generation can hold a transition for a minute,
// and chat delivery carries no exactly-once guarantee, so overflow drops.
const queueDepth = 16

// Inbound is one routed chat event. Command is "start" or "cancel" when the
// event is a command; otherwise Message carries the payload.
type Inbound struct {
	UserID  int64
	ChatID  int64
	Command string
	Message Message
}

// Dispatcher fans inbound events out to one worker goroutine per user, so
// transitions for a single user run strictly in order while other users
// proceed concurrently. This is the per-user serialization the state machine
// relies on instead of locking the session record.
type Dispatcher struct {
	machine   *Machine
	transport Transport
	logger    *zap.Logger

	ctx context.Context
	mu  sync.Mutex
	wg  sync.WaitGroup

	queues map[int64]chan Inbound
}

func NewDispatcher(ctx context.Context, machine *Machine, transport Transport, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		machine:   machine,
		transport: transport,
		logger:    logger,
		ctx:       ctx,
		queues:    make(map[int64]chan Inbound),
	}
}

// Dispatch routes in to its user's queue, starting a worker on first sight
// of the user. A full queue drops the event with a warning.
func (d *Dispatcher) Dispatch(in Inbound) {
	d.mu.Lock()
	queue, ok := d.queues[in.UserID]
	if !ok {
		queue = make(chan Inbound, queueDepth)
		d.queues[in.UserID] = queue
		d.wg.Add(1)
		go d.worker(queue)
	}
	d.mu.Unlock()

	select {
	case queue <- in:
	default:
		d.logger.Warn("dropping message: user queue full",
			zap.Int64("user_id", in.UserID))
	}
}

// Wait blocks until all workers have drained after the dispatcher's context
// is cancelled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(queue chan Inbound) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case in := <-queue:
			d.handle(in)
		}
	}
}

func (d *Dispatcher) handle(in Inbound) {
	var replies []Outbound
	if in.Command != "" {
		replies = d.machine.HandleCommand(d.ctx, in.UserID, in.ChatID, in.Command)
	} else {
		replies = d.machine.HandleMessage(d.ctx, in.UserID, in.ChatID, in.Message)
	}

	for _, reply := range replies {
		var err error
		if reply.PhotoURL != "" {
			err = d.transport.SendPhoto(d.ctx, in.ChatID, reply.PhotoURL, reply.Caption)
		} else {
			err = d.transport.SendText(d.ctx, in.ChatID, reply.Text)
		}
		if err != nil {
			d.logger.Error("failed to send reply",
				zap.Int64("chat_id", in.ChatID),
				zap.Error(err))
		}
	}
}
