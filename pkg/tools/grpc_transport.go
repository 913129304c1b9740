package tools

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
)

// ExternalToolClient talks to an optional out-of-process tool daemon
// over gRPC, generalizing the teacher's pkg/agent/llm_grpc.go
// stdio-sidecar-over-gRPC pattern (itself generalized from
// pkg/mcp/transport.go's subprocess transport) to a research-tool
// daemon instead of an LLM backend.
//
// Unlike llm_grpc.go, this client doesn't have a protoc-generated
// service stub to call against — no such .proto exists in this
// exercise — so it speaks a minimal, self-describing wire contract
// using google.golang.org/protobuf's built-in structpb.Struct message
// for both the request and response payloads, carried over two fixed
// RPC methods on the daemon: ListTools and ExecuteTool.
type ExternalToolClient struct {
	conn *grpc.ClientConn
}

// NewExternalToolClient dials addr in plaintext, matching
// llm_grpc.go's NewGRPCLLMClient choice for a localhost/sidecar
// deployment.
func NewExternalToolClient(addr string) (*ExternalToolClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial external tool daemon at %s: %w", addr, err)
	}
	return &ExternalToolClient{conn: conn}, nil
}

// Close releases the connection.
func (c *ExternalToolClient) Close() error {
	return c.conn.Close()
}

// ListTools fetches the daemon's tool catalog.
func (c *ExternalToolClient) ListTools(ctx context.Context) ([]llmadapter.ToolSpec, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/research.tools.v1.ToolDaemon/ListTools", &structpb.Struct{}, resp); err != nil {
		return nil, fmt.Errorf("list external tools: %w", err)
	}

	toolsField, ok := resp.Fields["tools"]
	if !ok {
		return nil, nil
	}
	list := toolsField.GetListValue()
	if list == nil {
		return nil, nil
	}

	specs := make([]llmadapter.ToolSpec, 0, len(list.Values))
	for _, v := range list.Values {
		s := v.GetStructValue()
		if s == nil {
			continue
		}
		name := s.Fields["name"].GetStringValue()
		if name == "" {
			continue
		}
		specs = append(specs, llmadapter.ToolSpec{
			Name:        name,
			Description: s.Fields["description"].GetStringValue(),
			InputSchema: s.Fields["input_schema"].GetStructValue().AsMap(),
		})
	}
	return specs, nil
}

// Execute runs one tool call on the daemon and returns its textual result.
func (c *ExternalToolClient) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	argStruct, err := structpb.NewStruct(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments for %s: %w", name, err)
	}
	req, err := structpb.NewStruct(map[string]any{
		"tool":      name,
		"arguments": argStruct.AsMap(),
	})
	if err != nil {
		return "", fmt.Errorf("encode request for %s: %w", name, err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/research.tools.v1.ToolDaemon/ExecuteTool", req, resp); err != nil {
		return "", fmt.Errorf("execute external tool %s: %w", name, err)
	}
	return resp.Fields["result"].GetStringValue(), nil
}
