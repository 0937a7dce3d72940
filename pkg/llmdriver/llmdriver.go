// Package llmdriver generalizes the teacher's single-shot decision call
// into the bounded multi-step tool-invocation loop the trading agent needs
// (spec §4.8): each step lets the model either call one of the Agent/Tool
// Bridge's tools or return its final reasoning.
package llmdriver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/internal/metrics"
	"nof0-api/pkg/llm"
	"nof0-api/pkg/toolbridge"
)

// maxSteps bounds a single cycle's tool-invocation loop (spec §4.8).
const maxSteps = 15

// ToolInvocation records one step of the conversation for audit purposes
// (spec §3 TradingSession.toolCalls).
type ToolInvocation struct {
	Name      string
	Arguments string
	Result    map[string]interface{}
}

// Result is the outcome of a single Driver.Run call.
type Result struct {
	Reasoning        string
	ToolCalls        []ToolInvocation
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Driver runs the bounded tool-invocation loop against an llm.LLMClient and
// a toolbridge.Bridge.
type Driver struct {
	client  llm.LLMClient
	bridge  *toolbridge.Bridge
	model   string
	metrics *metrics.Metrics // optional
}

// New constructs a Driver. model may be empty to use the client's default.
func New(client llm.LLMClient, bridge *toolbridge.Bridge, model string) *Driver {
	return &Driver{client: client, bridge: bridge, model: model}
}

// SetMetrics attaches a tool-invocation counter; optional.
func (d *Driver) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Run drives one symbol's processing cycle: it sends systemPrompt and
// userPrompt, then alternates tool calls and model turns until the model
// returns a final answer or maxSteps is exhausted.
func (d *Driver) Run(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	var invocations []ToolInvocation
	tools := d.bridge.Definitions()

	usage := Result{}
	accumulate := func(resp *llm.ChatResponse) {
		if resp.Model != "" {
			usage.Model = resp.Model
		}
		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens
	}

	for step := 0; step < maxSteps; step++ {
		req := &llm.ChatRequest{
			Model:      d.model,
			Messages:   messages,
			Tools:      tools,
			ToolChoice: "auto",
		}
		resp, err := d.client.Chat(ctx, req)
		if err != nil {
			usage.ToolCalls = invocations
			return usage, fmt.Errorf("llmdriver: chat step %d: %w", step, err)
		}
		if len(resp.Choices) == 0 {
			usage.ToolCalls = invocations
			return usage, fmt.Errorf("llmdriver: chat step %d: no choices returned", step)
		}
		accumulate(resp)
		choice := resp.Choices[0]

		if len(choice.Message.ToolCalls) == 0 {
			usage.Reasoning = choice.Message.Content
			usage.ToolCalls = invocations
			return usage, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   choice.Message.Content,
			ToolCalls: choice.Message.ToolCalls,
		})

		for _, call := range choice.Message.ToolCalls {
			result := d.dispatch(ctx, call)
			if d.metrics != nil {
				d.metrics.ToolInvocations.Inc()
			}
			invocations = append(invocations, ToolInvocation{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
				Result:    result,
			})
			payload, _ := json.Marshal(result)
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    string(payload),
				ToolCallID: call.ID,
			})
		}
	}

	logx.Infof("llmdriver: exhausted %d steps without a final answer", maxSteps)
	usage.ToolCalls = invocations
	return usage, nil
}

func (d *Driver) dispatch(ctx context.Context, call llm.ToolCall) map[string]interface{} {
	raw := []byte(call.Function.Arguments)

	switch call.Function.Name {
	case "getMarketData":
		var args toolbridge.GetMarketDataArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return argError(err)
		}
		return d.bridge.GetMarketData(ctx, args)
	case "getAccountInfo":
		var args toolbridge.GetAccountInfoArgs
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return argError(err)
			}
		}
		return d.bridge.GetAccountInfo(ctx, args)
	case "placeOrder":
		var args toolbridge.PlaceOrderArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return argError(err)
		}
		return d.bridge.PlaceOrder(ctx, args)
	case "search":
		var args toolbridge.SearchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return argError(err)
		}
		return d.bridge.Search(ctx, args)
	default:
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("unknown tool %q", call.Function.Name)}
	}
}

func argError(err error) map[string]interface{} {
	return map[string]interface{}{"success": false, "error": fmt.Sprintf("invalid tool arguments: %v", err)}
}
