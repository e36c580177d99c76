package remoteexec

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/remoteexec/queue"
	"github.com/oriys/flow/internal/value"
)

// retryWait bounds how long a retry waits on the notifier before trying
// the RPC again anyway, so a peer that never publishes (no queue
// configured, or a missed signal) still makes progress.
const retryWait = 2 * time.Second

// Client implements dispatcher.Runner for graph.ImplRemote, invoking
// RunJob on a peer over gRPC with the hand-written ServiceDesc of
// service.go. It retries the RPC against the same connection up to
// Retries times before surfacing a FunctionFailure, matching §4.6's
// at-least-once tolerance (results are keyed by generation, so a
// duplicate completion from a retried call is harmless to the caller).
type Client struct {
	conn    *grpc.ClientConn
	Retries int

	notifier *queue.Notifier
	pool     string
}

// Dial opens an insecure gRPC connection to addr. Production
// deployments would layer TLS credentials here; the core engine takes
// no position on transport security (out of scope per spec.md §1).
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("remoteexec: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, Retries: 1}, nil
}

// WithNotifier attaches a pub/sub notifier keyed by pool: instead of
// retrying a failed RunJob immediately, Run waits (bounded by
// retryWait) for the peer pool to publish a "ready" signal, avoiding a
// tight retry loop against a pool that is still busy.
func (c *Client) WithNotifier(n *queue.Notifier, pool string) *Client {
	c.notifier = n
	c.pool = pool
	return c
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Run(ctx context.Context, job graph.Job, def *graph.FunctionDef) (value.Value, error) {
	req, err := encodeJob(job, def)
	if err != nil {
		return value.Value{}, err
	}

	var lastErr error
	attempts := c.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		resp := new(structpb.Struct)
		if err := c.conn.Invoke(ctx, runJobMethod, req, resp); err != nil {
			lastErr = err
			if i < attempts-1 {
				c.waitForRetry(ctx)
			}
			continue
		}
		return decodeResult(resp)
	}
	return value.Value{}, fmt.Errorf("remoteexec: RunJob failed after %d attempt(s): %w", attempts, lastErr)
}

// waitForRetry pauses before the next retry attempt: if a notifier is
// attached, it waits for a "ready" signal on the pool (or retryWait,
// whichever comes first); otherwise it retries immediately, matching
// the original no-queue behaviour.
func (c *Client) waitForRetry(ctx context.Context) {
	if c.notifier == nil {
		return
	}
	timer := time.NewTimer(retryWait)
	defer timer.Stop()
	select {
	case <-c.notifier.Subscribe(ctx, c.pool):
	case <-timer.C:
	case <-ctx.Done():
	}
}
