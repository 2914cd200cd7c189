package suitability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/abdullahx404/startsmart/internal/logging"
	"github.com/abdullahx404/startsmart/internal/metrics"
)

const contextualSystemPrompt = "You are a commercial real estate analyst assessing how suitable a location is " +
	"for a candidate business, based on a numeric snapshot of the surrounding business environment. " +
	"Respond with strict JSON only."

// DefaultPrimaryModel and DefaultFallbackModel are the ordered failover
// pair. The fallback only runs after the primary has failed twice.
const (
	DefaultPrimaryModel  = string(anthropic.ModelClaudeSonnet4_20250514)
	DefaultFallbackModel = string(anthropic.ModelClaude3_5HaikuLatest)
)

// contextualTemperature keeps sampling near-deterministic; callers must
// still tolerate run-to-run variance, this only narrows it.
const contextualTemperature = 0.1

// TextGenerator is the transport the contextual stage speaks to. It is
// an interface so tests substitute canned outputs.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, model, prompt string) (string, TokenUsage, error)
}

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

type AnthropicGenerator struct {
	messages  AnthropicMessager
	maxTokens int64
}

func NewAnthropicGeneratorFromEnv(maxTokens int64) (*AnthropicGenerator, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicGenerator{messages: newAnthropicClient(apiKey), maxTokens: maxTokens}, nil
}

func (g *AnthropicGenerator) GenerateJSON(ctx context.Context, model, prompt string) (string, TokenUsage, error) {
	resp, err := g.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   g.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: contextualSystemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(contextualTemperature),
	})
	if err != nil {
		return "", TokenUsage{}, err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	usage := TokenUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
	return sb.String(), usage, nil
}

type llmFailureClass int

const (
	failureParse llmFailureClass = iota
	failureEmpty
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

func (c llmFailureClass) String() string {
	switch c {
	case failureParse:
		return "parse"
	case failureEmpty:
		return "empty"
	case failureTimeout:
		return "timeout"
	case failureRateLimit:
		return "rate_limited"
	case failureServer:
		return "server_error"
	case failureClient:
		return "client_error"
	}
	return "unknown"
}

func classifyTransportError(err error) llmFailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"):
		return failureRateLimit
	case strings.Contains(msg, "status code: 4"):
		return failureClient
	default:
		return failureServer
	}
}

// ModelChain runs a prompt through an ordered list of models with a
// uniform contract: one content retry per model, then failover. No
// hierarchy, just the list.
type ModelChain struct {
	gen    TextGenerator
	models []string
}

func NewModelChain(gen TextGenerator, models ...string) *ModelChain {
	if len(models) == 0 {
		models = []string{DefaultPrimaryModel, DefaultFallbackModel}
	}
	return &ModelChain{gen: gen, models: models}
}

// Run asks each model in order to produce JSON matching out. Malformed
// output earns one retry with corrective feedback against the same
// model; a second malformed response, or any transport failure, moves
// to the next model. Exhausting the chain returns the last error; usage
// is cumulative across every call made.
func (c *ModelChain) Run(ctx context.Context, prompt string, out any, validate func() error) (modelUsed string, usage TokenUsage, attempts int, err error) {
	var lastErr error
	for _, model := range c.models {
		feedback := ""
		for try := 0; try < 2; try++ {
			if ctx.Err() != nil {
				return "", usage, attempts, ctx.Err()
			}
			attempts++
			full := prompt + "\n\nRespond with only valid JSON matching the schema."
			if feedback != "" {
				full += "\n\n" + feedback
			}

			raw, callUsage, callErr := c.gen.GenerateJSON(ctx, model, full)
			usage.InputTokens += callUsage.InputTokens
			usage.OutputTokens += callUsage.OutputTokens
			if callErr != nil {
				class := classifyTransportError(callErr)
				metrics.LLMCalls.WithLabelValues(model, class.String()).Inc()
				logging.Warn().Str("model", model).Str("class", class.String()).Err(callErr).Msg("text-generation transport failure")
				lastErr = fmt.Errorf("model %s transport: %w", model, callErr)
				break // transport failure: straight to the next model
			}
			metrics.LLMTokens.WithLabelValues(model, "input").Add(float64(callUsage.InputTokens))
			metrics.LLMTokens.WithLabelValues(model, "output").Add(float64(callUsage.OutputTokens))

			raw = strings.TrimSpace(raw)
			if raw == "" {
				metrics.LLMCalls.WithLabelValues(model, "empty").Inc()
				lastErr = fmt.Errorf("model %s: empty response", model)
				feedback = "Your previous response was empty. Respond with valid JSON."
				continue
			}
			clean := stripCodeFences(raw)
			resetTarget(out)
			if jsonErr := json.Unmarshal([]byte(clean), out); jsonErr != nil {
				metrics.LLMCalls.WithLabelValues(model, "malformed").Inc()
				lastErr = fmt.Errorf("model %s: json parse: %w", model, jsonErr)
				feedback = "Your previous response was not valid JSON. Respond with only valid JSON."
				continue
			}
			if valErr := validate(); valErr != nil {
				metrics.LLMCalls.WithLabelValues(model, "invalid").Inc()
				lastErr = fmt.Errorf("model %s: schema validation: %w", model, valErr)
				feedback = fmt.Sprintf("Your response failed validation: %s. Fix these issues.", valErr)
				continue
			}
			metrics.LLMCalls.WithLabelValues(model, "ok").Inc()
			return model, usage, attempts, nil
		}
	}
	return "", usage, attempts, lastErr
}

func (c *ModelChain) Models() []string { return append([]string(nil), c.models...) }

// resetTarget zeroes the decode target between attempts. json.Unmarshal
// merges into existing map and slice fields, so without the reset a
// retry's partial response could pass validation on the previous
// attempt's leftovers.
func resetTarget(out any) {
	v := reflect.ValueOf(out)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().SetZero()
	}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
