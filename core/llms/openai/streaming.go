package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fintalk-ai/fintalk-core/core/llms"
	"github.com/fintalk-ai/fintalk-core/internal/utils"
)

const (
	defaultURL = "https://api.openai.com/v1/chat/completions"

	chunkPrefix = "data:"
	endMessage  = "[DONE]"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey string
	model  string
	url    string
}

type ClientOption func(*Client)

// WithBaseURL points the client at a different completions endpoint, e.g. a
// compatible proxy or a test server.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func NewClient(apiKey string, model string, opts ...ClientOption) *Client {
	client := &Client{apiKey: apiKey, model: model, url: defaultURL}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// PromptWithStream prepares a streamed completion over the given history. The
// request is not sent until Chunks is iterated.
func (c *Client) PromptWithStream(instructions string, history []llms.Message, baseTools []llms.Tool) *Stream {
	var tools []Tool
	if baseTools != nil {
		var cloned []llms.Tool
		copier.Copy(&cloned, baseTools)
		tools = toTools(cloned)
	}

	return &Stream{
		apiKey:   c.apiKey,
		model:    c.model,
		url:      c.url,
		tools:    tools,
		messages: toMessages(instructions, history),
	}
}

type Stream struct {
	apiKey string

	model    string
	url      string
	tools    []Tool
	messages []message
}

type requestBody struct {
	Model      string    `json:"model"`
	Messages   []message `json:"messages"`
	Stream     bool      `json:"stream"`
	Tools      []Tool    `json:"tools,omitempty"`
	ToolChoice *string   `json:"tool_choice,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))
		var toolNames []string
		for _, tool := range s.tools {
			toolNames = append(toolNames, tool.Function.Name)
		}
		span.SetAttributes(attribute.StringSlice("request.available_tools", toolNames))

		var toolChoice *string
		if s.tools != nil {
			toolChoice = utils.Ptr("auto")
		}

		reqBody := requestBody{
			Model:      s.model,
			Messages:   s.messages,
			Stream:     true,
			Tools:      s.tools,
			ToolChoice: toolChoice,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err != nil {
				span.RecordError(fmt.Errorf("error reading error body: %w", err))
			} else {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		toolCallNames := []string{}
		defer func() {
			span.SetAttributes(attribute.StringSlice("response.tool_calls", toolCallNames))
		}()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

			if len(chunk) == 0 {
				continue
			}

			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}

			var finishReason *string
			if len(responseBody.Choices) > 0 {
				delta := responseBody.Choices[0].Delta
				finishReason = responseBody.Choices[0].FinishReason

				for _, call := range delta.ToolCalls {
					if call.Function.Name != "" {
						toolCallNames = append(toolCallNames, call.Function.Name)
					}
					index := 0
					if call.Index != nil {
						index = *call.Index
					}
					if !yield(StreamToolCallChunk{
						finishReason: finishReason,
						toolCall: llms.ToolCall{
							ID:        call.ID,
							Index:     index,
							Name:      call.Function.Name,
							Arguments: call.Function.Arguments,
						},
					}, nil) {
						return
					}
				}

				if delta.Content != "" {
					if !yield(StreamContentChunk{
						finishReason: finishReason,
						content:      delta.Content,
					}, nil) {
						return
					}
				}

				if delta.Content == "" && len(delta.ToolCalls) == 0 && finishReason != nil {
					if !yield(StreamFinishChunk{finishReason: finishReason}, nil) {
						return
					}
				}
			}

			if responseBody.Usage != nil {
				span.SetAttributes(attribute.Int("usage.input", responseBody.Usage.PromptTokens))
				span.SetAttributes(attribute.Int("usage.output", responseBody.Usage.CompletionTokens))
				span.SetAttributes(attribute.Int("usage.total", responseBody.Usage.TotalTokens))

				if !yield(StreamUsageChunk{
					finishReason: finishReason,
					usage: llms.Usage{
						InputTokens:  responseBody.Usage.PromptTokens,
						OutputTokens: responseBody.Usage.CompletionTokens,
						TotalTokens:  responseBody.Usage.TotalTokens,
					},
				}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamToolCallChunk struct {
	finishReason *string
	toolCall     llms.ToolCall
}

func (s StreamToolCallChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamToolCallChunk) ToolCall() llms.ToolCall {
	return s.toolCall
}

// StreamFinishChunk carries a bare finish reason when the provider closes the
// choice without content in the same delta.
type StreamFinishChunk struct {
	finishReason *string
}

func (s StreamFinishChunk) FinishReason() *string {
	return s.finishReason
}

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
