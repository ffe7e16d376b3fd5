// Package tools holds the callable tools the agent can invoke while
// answering. Every tool consumes JSON arguments and returns plain text;
// failures are rendered into the text because the model only reads text.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lavrabot/lavra/internal/llm"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	// Name is the function name the model calls.
	Name() string
	// Description tells the model when to use the tool.
	Description() string
	// Parameters is the JSON schema of the tool's arguments.
	Parameters() json.RawMessage
	// Execute runs the tool. Errors come back as descriptive text, never as
	// a Go error, so the model can read and recover from them.
	Execute(ctx context.Context, args json.RawMessage) string
}

// Registry holds the registered tools in registration order.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. Registering the same name twice replaces the earlier
// tool but keeps its position.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Definitions returns the tool declarations to send with a chat request.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.NewToolDef(t.Name(), t.Description(), t.Parameters()))
	}
	return defs
}

// Execute runs the named tool with raw JSON arguments.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) string {
	t, ok := r.tools[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return fmt.Sprintf("Erro: ferramenta desconhecida: %s", name)
	}
	r.logger.Info("tool invoked", "tool", name)
	return t.Execute(ctx, args)
}
