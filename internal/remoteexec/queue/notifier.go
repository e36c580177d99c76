// Package queue provides an optional Redis pub/sub side-channel for the
// remote executor: a remoteexec.Server publishes on its pool after every
// RunJob, and a remoteexec.Client waiting to retry a failed call wakes on
// that signal -- the same broadcast-on-publish shape the teacher uses to
// wake idle workers across instances.
package queue

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

const channelPrefix = "flow:remoteexec:notify:"

// Notifier broadcasts "ready" signals for a named remote pool and lets
// peers subscribe to them.
type Notifier struct {
	client *redis.Client

	mu     sync.Mutex
	subs   map[string][]*subscription
	closed bool
}

type subscription struct {
	ch     chan struct{}
	cancel context.CancelFunc
}

// NewNotifier wraps an existing Redis client.
func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client, subs: make(map[string][]*subscription)}
}

// Notify sends a "ready" signal to every subscriber of pool.
func (n *Notifier) Notify(ctx context.Context, pool string) error {
	return n.client.Publish(ctx, channelPrefix+pool, "1").Err()
}

// Subscribe returns a channel that receives a value each time Notify is
// called for pool, coalescing bursts the way a single-slot ready
// signal naturally does (a receiver that hasn't drained the previous
// signal yet just skips the duplicate).
func (n *Notifier) Subscribe(ctx context.Context, pool string) <-chan struct{} {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{ch: ch, cancel: cancel}
	n.subs[pool] = append(n.subs[pool], sub)
	n.mu.Unlock()

	pubsub := n.client.Subscribe(subCtx, channelPrefix+pool)
	go func() {
		defer pubsub.Close()
		msgCh := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				n.removeSub(pool, sub)
				return
			case _, ok := <-msgCh:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch
}

func (n *Notifier) removeSub(pool string, target *subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	subs := n.subs[pool]
	for i, s := range subs {
		if s == target {
			n.subs[pool] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Close cancels every outstanding subscription and closes their channels.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, subs := range n.subs {
		for _, s := range subs {
			s.cancel()
			close(s.ch)
		}
	}
	n.subs = nil
	return n.client.Close()
}
