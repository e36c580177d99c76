package remoteexec

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/remoteexec/queue"
	"github.com/oriys/flow/internal/value"
)

// LocalRunner is the narrow slice of dispatcher.Runner the remote
// server needs -- kept as its own interface so this package never
// imports internal/dispatcher, avoiding a dependency cycle (the
// dispatcher in turn depends on a Client implementing its own Runner).
type LocalRunner interface {
	Run(ctx context.Context, job graph.Job, def *graph.FunctionDef) (value.Value, error)
}

// Server exposes a LocalRunner (typically the native or wasm executor
// of the peer it runs on) over the RunJob RPC. Per §4.6 the remote
// contract is stateless: every request carries everything needed to
// run the job, and duplicate completions are the caller's problem to
// dedupe by generation, not the server's.
type Server struct {
	runner LocalRunner

	notifier *queue.Notifier
	pool     string
}

// NewServer wraps runner for remote invocation.
func NewServer(runner LocalRunner) *Server {
	return &Server{runner: runner}
}

// WithNotifier attaches a pub/sub notifier keyed by pool: every RunJob
// that finishes (success or failure) publishes a "ready" signal so a
// Client waiting in waitForRetry on the same pool wakes immediately
// instead of on its timeout.
func (s *Server) WithNotifier(n *queue.Notifier, pool string) *Server {
	s.notifier = n
	s.pool = pool
	return s
}

func (s *Server) RunJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	job, err := decodeJob(req)
	if err != nil {
		return nil, err
	}

	def := &graph.FunctionDef{
		ID:           job.FunctionID,
		Name:         job.FunctionName,
		NonReentrant: job.NonReentrant,
		Implementation: graph.Implementation{
			Location: job.ImplementationLoc,
		},
	}
	out, runErr := s.runner.Run(ctx, graph.Job{
		FunctionID: job.FunctionID,
		Generation: job.Generation,
		JobID:      job.JobID,
		Values:     job.Inputs,
	}, def)

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, s.pool)
	}

	return encodeResult(out, runErr)
}
