package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"invoice-agent/internal/metrics"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
)

// ToolHandler executes a tool with its raw JSON arguments and returns the data
// placed under "data" in the tool result.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

// ToolDefinition describes a single tool in the registry.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any // JSON Schema for the tool's input parameters
	Handler     ToolHandler
}

// ToolResult is the envelope every tool call returns to the model.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry holds the tools available to the agent for one conversation.
type ToolRegistry struct {
	tools   []ToolDefinition
	metrics *metrics.Registry
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// WithMetrics records every Execute under ai_tool_calls_total.
func (r *ToolRegistry) WithMetrics(m *metrics.Registry) *ToolRegistry {
	r.metrics = m
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *ToolRegistry) Register(t ToolDefinition) {
	for i := range r.tools {
		if r.tools[i].Name == t.Name {
			r.tools[i] = t
			return
		}
	}
	r.tools = append(r.tools, t)
}

func (r *ToolRegistry) Get(name string) (ToolDefinition, bool) {
	for _, t := range r.tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDefinition{}, false
}

func (r *ToolRegistry) All() []ToolDefinition {
	return r.tools
}

// Names returns the registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool and returns its JSON-encoded ToolResult. Tool
// failures are reported inside the result, never as a Go error.
func (r *ToolRegistry) Execute(ctx context.Context, name, args string) (string, bool) {
	res := r.execute(ctx, name, args)
	label := name
	if _, ok := r.Get(name); !ok {
		label = "unknown"
	}
	r.metrics.ObserveTool(label, res.Success)

	out, err := json.Marshal(res)
	if err != nil {
		out, _ = json.Marshal(ToolResult{Error: "failed to encode tool result"})
		return string(out), false
	}
	return string(out), res.Success
}

func (r *ToolRegistry) execute(ctx context.Context, name, args string) ToolResult {
	t, ok := r.Get(name)
	if !ok || t.Handler == nil {
		return ToolResult{Error: fmt.Sprintf("unknown tool %q", name)}
	}
	if len(bytes.TrimSpace([]byte(args))) == 0 {
		args = "{}"
	}
	data, err := t.Handler(ctx, json.RawMessage(args))
	if err != nil {
		return ToolResult{Error: err.Error()}
	}
	return ToolResult{Success: true, Data: data}
}

// ToOpenAITools converts the registry to the OpenAI Responses API tool format.
func (r *ToolRegistry) ToOpenAITools() []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.InputSchema,
				Strict:      openai.Bool(false),
			},
		})
	}
	return out
}

var errInvalidArguments = errors.New("invalid arguments")

// typedTool builds a ToolDefinition whose schema is reflected from P and whose
// arguments are decoded into P before fn runs. Unknown fields are rejected.
func typedTool[P any](name, description string, fn func(ctx context.Context, p P) (any, error)) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: schemaFor[P](),
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var p P
			dec := json.NewDecoder(bytes.NewReader(args))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&p); err != nil {
				return nil, fmt.Errorf("%w: %v", errInvalidArguments, err)
			}
			return fn(ctx, p)
		},
	}
}

func schemaFor[P any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v P
	raw, err := json.Marshal(reflector.Reflect(&v))
	if err != nil {
		panic(fmt.Sprintf("reflect tool schema: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("decode tool schema: %v", err))
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}
