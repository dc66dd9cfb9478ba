package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/teamboard/teamboard/internal/protocol"
)

// writeTimeout bounds one outbound frame write per connection.
const writeTimeout = 5 * time.Second

// Broadcaster is the processor's view of the dispatcher.
type Broadcaster interface {
	Broadcast(msg *protocol.Message)
}

// Dispatcher fans events out to every authenticated connection. Delivery is
// best-effort and fire-and-forget per connection: a connection that fails to
// receive is removed, never retried; reconnection and resync are the
// client's responsibility. Events go out in the order they are enqueued,
// which the serialized command processor guarantees is command-completion
// order.
type Dispatcher struct {
	registry *Registry
	queue    chan *protocol.Message
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: registry,
		queue:    make(chan *protocol.Message, 256),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the broadcast loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop drains nothing and terminates the loop.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Broadcast enqueues one event for all authenticated connections. When the
// queue is full the caller blocks until the loop drains it: slow delivery
// backpressures the serialized producer rather than losing events, since a
// dropped event would silently diverge every mirror until the next
// full-state resync.
func (d *Dispatcher) Broadcast(msg *protocol.Message) {
	select {
	case d.queue <- msg:
	case <-d.ctx.Done():
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case msg := <-d.queue:
			for _, conn := range d.registry.Authenticated() {
				ctx, cancel := context.WithTimeout(d.ctx, writeTimeout)
				err := conn.Send(ctx, msg)
				cancel()
				if err != nil {
					d.logger.Printf("Failed to send %s to client: %v", msg.Type, err)
					d.registry.Remove(conn)
				}
			}
		}
	}
}
