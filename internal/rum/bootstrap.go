package rum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultQueueSize bounds the commands held before a client is attached.
const DefaultQueueSize = 256

var (
	// ErrQueueFull is returned by Enqueue when the pre-init queue is full.
	ErrQueueFull = errors.New("bootstrap queue is full")
	// ErrAlreadyAttached is returned by a second Attach.
	ErrAlreadyAttached = errors.New("bootstrap already attached")
)

type queuedCommand struct {
	name    string
	payload any
}

// Bootstrap accepts commands before the client exists. Queued commands are
// replayed in order, exactly once, when the client is attached; commands
// enqueued afterwards go straight to the client.
type Bootstrap struct {
	mu       sync.Mutex
	capacity int
	queue    []queuedCommand
	client   *Client
}

// NewBootstrap creates a queue holding at most capacity commands.
func NewBootstrap(capacity int) *Bootstrap {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Bootstrap{capacity: capacity}
}

// Enqueue runs the command immediately when a client is attached, otherwise
// queues it. Only errors of immediately run commands are returned.
func (b *Bootstrap) Enqueue(ctx context.Context, name string, payload any) error {
	b.mu.Lock()
	client := b.client
	if client == nil {
		if len(b.queue) >= b.capacity {
			b.mu.Unlock()
			return fmt.Errorf("%w: %s dropped", ErrQueueFull, name)
		}
		b.queue = append(b.queue, queuedCommand{name: name, payload: payload})
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	return client.Command(ctx, name, payload)
}

// Attach hands the queue to client and replays it. Replay errors are logged
// and returned joined; a failing command does not stop the replay.
func (b *Bootstrap) Attach(ctx context.Context, client *Client) error {
	if client == nil {
		return errors.New("client is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		return ErrAlreadyAttached
	}

	var errs []error
	for i, cmd := range b.queue {
		if err := client.Command(ctx, cmd.name, cmd.payload); err != nil {
			slog.Warn("[Bootstrap] Queued command failed",
				"command", cmd.name,
				"position", i,
				"error", err)
			errs = append(errs, fmt.Errorf("queued command %d (%s): %w", i, cmd.name, err))
		}
	}
	slog.Debug("[Bootstrap] Replayed queued commands", "count", len(b.queue))

	b.queue = nil
	b.client = client
	return errors.Join(errs...)
}

// Pending returns the number of queued commands.
func (b *Bootstrap) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
