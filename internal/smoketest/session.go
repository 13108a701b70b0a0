// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package smoketest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forgelabs/mcpsmith/internal/buildinfo"
	"github.com/forgelabs/mcpsmith/internal/registry"
)

// mcpSession adapts an MCP client session to the ToolSession seam.
type mcpSession struct {
	session *mcp.ClientSession
}

// DialStdio launches the server process and performs the protocol handshake
// over its stdio pipes.
func DialStdio(ctx context.Context, def registry.ServerDefinition) (ToolSession, error) {
	cmd := exec.Command(def.Command, def.Args...)
	cmd.Dir = def.WorkingDir
	cmd.Env = os.Environ()
	for k, v := range def.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "mcpsmith",
		Version: buildinfo.Version,
	}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", def.Name, err)
	}
	return &mcpSession{session: session}, nil
}

func (s *mcpSession) ListTools(ctx context.Context) ([]ToolInfo, error) {
	result, err := s.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	tools := make([]ToolInfo, 0, len(result.Tools))
	for _, tool := range result.Tools {
		info := ToolInfo{Name: tool.Name, Description: tool.Description}
		if tool.InputSchema != nil {
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				info.RawSchema = raw
			}
		}
		tools = append(tools, info)
	}
	return tools, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*CallOutcome, error) {
	result, err := s.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return &CallOutcome{IsError: result.IsError, Text: strings.Join(parts, "\n")}, nil
}

func (s *mcpSession) Close() error {
	return s.session.Close()
}
