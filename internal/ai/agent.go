package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

// MaxToolRounds bounds the function-calling rounds of one Chat.
const MaxToolRounds = 8

var ErrTooManyToolRounds = errors.New("assistant did not finish within the tool call limit")

// Message is one turn of the visible conversation.
type Message struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	CallID    string
	Name      string
	Arguments string
}

// FunctionOutput answers a FunctionCall.
type FunctionOutput struct {
	CallID string
	Output string
}

// ResponseRequest is one model call. A request continuing a previous response
// carries only the function outputs.
type ResponseRequest struct {
	Instructions       string
	Messages           []Message
	PreviousResponseID string
	Outputs            []FunctionOutput
	Tools              *ToolRegistry
}

// ResponseTurn is the model's reply: final text, or function calls to execute.
type ResponseTurn struct {
	ID    string
	Text  string
	Calls []FunctionCall
}

// Responder performs a single model call.
type Responder interface {
	Respond(ctx context.Context, req ResponseRequest) (*ResponseTurn, error)
}

// ToolCall records an executed tool for the caller.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Success   bool   `json:"success"`
}

type ChatResult struct {
	Reply     string     `json:"reply"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

type Agent struct {
	responder Responder
	log       *zap.Logger
	now       func() time.Time
}

// NewAgent returns an agent backed by the OpenAI Responses API.
func NewAgent(apiKey, model string, log *zap.Logger) *Agent {
	return NewAgentWithResponder(NewOpenAIResponder(apiKey, model), log)
}

func NewAgentWithResponder(r Responder, log *zap.Logger) *Agent {
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{responder: r, log: log, now: time.Now}
}

func (a *Agent) instructions() string {
	return fmt.Sprintf(`You are an invoicing assistant for a small business.
Today is %s.
Use the tools to look up, create and change invoices; never invent invoice data.
Amounts are in US dollars. When a tool fails, explain the error plainly.
Confirm destructive actions (void, delete) only after the user has asked for them.`,
		a.now().Format("2006-01-02"))
}

// Chat answers the last message of history, executing tool calls from tools until
// the model replies with text.
func (a *Agent) Chat(ctx context.Context, history []Message, tools *ToolRegistry) (*ChatResult, error) {
	if len(history) == 0 {
		return nil, errors.New("at least one message is required")
	}

	result := &ChatResult{ToolCalls: []ToolCall{}}
	req := ResponseRequest{Instructions: a.instructions(), Messages: history, Tools: tools}

	for round := 0; round < MaxToolRounds; round++ {
		turn, err := a.responder.Respond(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("openai responses error: %w", err)
		}
		if len(turn.Calls) == 0 {
			result.Reply = turn.Text
			return result, nil
		}

		outputs := make([]FunctionOutput, 0, len(turn.Calls))
		for _, call := range turn.Calls {
			out, ok := tools.Execute(ctx, call.Name, call.Arguments)
			a.log.Debug("assistant tool call",
				zap.String("tool", call.Name),
				zap.Bool("success", ok),
				zap.Int("round", round+1))
			result.ToolCalls = append(result.ToolCalls, ToolCall{Name: call.Name, Arguments: call.Arguments, Success: ok})
			outputs = append(outputs, FunctionOutput{CallID: call.CallID, Output: out})
		}

		req = ResponseRequest{
			Instructions:       req.Instructions,
			PreviousResponseID: turn.ID,
			Outputs:            outputs,
			Tools:              tools,
		}
	}
	return nil, ErrTooManyToolRounds
}

// ── OpenAI ───────────────────────────────────────────────────────────────────

type openAIResponder struct {
	client *openai.Client
	model  string
}

func NewOpenAIResponder(apiKey, model string) Responder {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = "gpt-4o"
	}
	return &openAIResponder{client: &client, model: model}
}

func (o *openAIResponder) Respond(ctx context.Context, req ResponseRequest) (*ResponseTurn, error) {
	items := make(responses.ResponseInputParam, 0, len(req.Messages)+len(req.Outputs))
	for _, m := range req.Messages {
		role := responses.EasyInputMessageRoleUser
		if m.Role == "assistant" {
			role = responses.EasyInputMessageRoleAssistant
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}
	for _, out := range req.Outputs {
		items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(out.CallID, out.Output))
	}

	params := responses.ResponseNewParams{
		Model:        shared.ResponsesModel(o.model),
		Instructions: openai.String(req.Instructions),
		Input:        responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if req.Tools != nil {
		params.Tools = req.Tools.ToOpenAITools()
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return nil, err
	}

	turn := &ResponseTurn{ID: resp.ID, Text: resp.OutputText()}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		fc := item.AsFunctionCall()
		turn.Calls = append(turn.Calls, FunctionCall{CallID: fc.CallID, Name: fc.Name, Arguments: fc.Arguments})
	}
	return turn, nil
}
