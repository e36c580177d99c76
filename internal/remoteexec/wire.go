// Package remoteexec implements the optional distributed executor
// transport of §4.6: the same (function_id, generation, values) job
// contract as the in-process Runner, carried over gRPC. No .pb.go
// codegen exists anywhere in this tree (nothing in the retrieval pack
// ships one either), so the wire payload is built from
// google.golang.org/protobuf/types/known/structpb -- real, already
// compiled protobuf message types that need no protoc step -- addressed
// through a hand-written grpc.ServiceDesc for the single RunJob method,
// the same low-level registration shape grpc-go itself generates.
package remoteexec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oriys/flow/internal/graph"
	"github.com/oriys/flow/internal/value"
)

// jobRequest is the wire shape of one remote invocation: everything the
// server needs to run the job with no other shared state, since the
// remote contract is stateless and at-least-once tolerant (§4.6).
type jobRequest struct {
	FunctionID        int
	FunctionName      string
	Generation        uint64
	JobID             string
	ImplementationLoc string
	NonReentrant      bool
	Inputs            []value.Value
}

func encodeJob(job graph.Job, def *graph.FunctionDef) (*structpb.Struct, error) {
	inputs := make([]interface{}, len(job.Values))
	for i, v := range job.Values {
		var raw interface{}
		b, err := v.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("remoteexec: encode input %d: %w", i, err)
		}
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("remoteexec: encode input %d: %w", i, err)
		}
		inputs[i] = raw
	}

	s, err := structpb.NewStruct(map[string]interface{}{
		"function_id":        float64(def.ID),
		"function_name":      def.Name,
		"generation":         float64(job.Generation),
		"job_id":             job.JobID,
		"implementation_loc": def.Implementation.Location,
		"non_reentrant":      def.NonReentrant,
		"inputs":             inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("remoteexec: build request struct: %w", err)
	}
	return s, nil
}

func decodeJob(s *structpb.Struct) (*jobRequest, error) {
	fields := s.GetFields()
	req := &jobRequest{
		FunctionID:        int(fields["function_id"].GetNumberValue()),
		FunctionName:      fields["function_name"].GetStringValue(),
		Generation:        uint64(fields["generation"].GetNumberValue()),
		JobID:             fields["job_id"].GetStringValue(),
		ImplementationLoc: fields["implementation_loc"].GetStringValue(),
		NonReentrant:      fields["non_reentrant"].GetBoolValue(),
	}
	inputsList := fields["inputs"].GetListValue()
	if inputsList != nil {
		req.Inputs = make([]value.Value, len(inputsList.GetValues()))
		for i, iv := range inputsList.GetValues() {
			req.Inputs[i] = value.FromInterface(iv.AsInterface())
		}
	}
	return req, nil
}

func encodeResult(v value.Value, runErr error) (*structpb.Struct, error) {
	if runErr != nil {
		return structpb.NewStruct(map[string]interface{}{
			"error": runErr.Error(),
		})
	}
	var raw interface{}
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("remoteexec: encode result: %w", err)
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("remoteexec: encode result: %w", err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"value": raw,
	})
}

func decodeResult(s *structpb.Struct) (value.Value, error) {
	fields := s.GetFields()
	if errMsg, ok := fields["error"]; ok && errMsg.GetStringValue() != "" {
		return value.Value{}, fmt.Errorf("remoteexec: remote function failed: %s", errMsg.GetStringValue())
	}
	return value.FromInterface(fields["value"].AsInterface()), nil
}
