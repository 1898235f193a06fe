// Package tools defines the capabilities the completion model may request
// mid-turn and the registry that dispatches accumulated calls to them.
package tools

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/fintalk-ai/fintalk-core/core/events"
	"github.com/fintalk-ai/fintalk-core/core/llms"
)

// Canonical tool names exposed to the model.
const (
	NameSearch      = "search"
	NameRunBacktest = "runBacktest"
	NameSimulate    = "simulateGrowth"
)

// Result is what a tool produces for the turn stream. Text feeds the
// assistant message, Sources the citation list, Graph the chart display.
// All fields are optional.
type Result struct {
	Text    string
	Sources []events.Source
	Graph   *events.GraphData
}

// Tool is one externally-backed capability. Execute receives the accumulated
// argument JSON exactly once per completed call.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Execute     func(ctx context.Context, argumentsJSON string) (*Result, error)
}

// SchemaFor reflects the JSON schema of a tool's argument struct.
func SchemaFor(arguments any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(arguments)
}

// Registry holds the tools bound for one turn.
type Registry struct {
	tools []Tool
}

func NewRegistry(tools ...Tool) *Registry {
	return &Registry{tools: tools}
}

// Declarations returns the provider-facing tool list.
func (r *Registry) Declarations() []llms.Tool {
	if r == nil {
		return nil
	}
	declarations := make([]llms.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		declarations = append(declarations, llms.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	return declarations
}

// Empty reports whether any tool is bound.
func (r *Registry) Empty() bool {
	return r == nil || len(r.tools) == 0
}

// Call dispatches one accumulated tool call to its handler.
func (r *Registry) Call(ctx context.Context, name string, argumentsJSON string) (*Result, error) {
	if r == nil {
		return nil, fmt.Errorf("no tools bound")
	}
	for _, tool := range r.tools {
		if tool.Name != name {
			continue
		}
		result, err := tool.Execute(ctx, argumentsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to execute tool %q: %w", name, err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("unknown tool %q", name)
}
