package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/OrderPipe/internal/genai"
	"github.com/BTreeMap/OrderPipe/internal/metrics"
	"github.com/BTreeMap/OrderPipe/internal/models"
)

// Canned classifier replies.
const (
	ClassifierApology  = "Sorry, I'm having trouble understanding. Could you try again?"
	ClassifierNoAction = "How can I help you today?"
)

const toolArgumentsLogLimit = 1024

const systemPromptTemplate = `
You are an AI assistant for %s restaurant chatbot.

CONVERSATION FLOW:
1. When user wants to see menu → call show_food_menu (shows list of food categories)
2. When user selects "Momos" or asks about momos → call show_momo_varieties (shows momo carousel)
3. When user wants to ADD an item by name (e.g., "add momo", "I want tandoori", "add 2 steam momo") → call add_item_by_name with the item name
4. When user explicitly wants to CHECKOUT/PLACE ORDER (e.g., "checkout", "place order", "confirm", "that's all") → call confirm_order (NO items parameter needed)
5. When user confirms/cancels order → call process_order_response
6. When user asks about their orders, order history, past orders → call show_order_history

IMPORTANT RULES:
- When user says "add X" or "I want X" → use add_item_by_name with the item name, NOT confirm_order
- NEVER invent prices - the database will provide correct prices
- NEVER use confirm_order just to add more items
- For confirm_order, do NOT pass any items - the cart is managed separately
- Only use confirm_order when user wants to finalize/checkout

CONTEXT AWARENESS:
- Current conversation state: %s
- Use context to understand where user is in the ordering flow

RULES:
- Be concise and friendly
- Use the appropriate tool for each step
- For greetings or general chat, use send_text_reply
`

// Intent is the classifier's decision for one free-text message.
type Intent struct {
	Call models.FunctionCall
	// Response is the model's accompanying text, used when the call cannot be dispatched.
	Response string
}

// Classifier asks an OpenAI-compatible model to pick one tool for a free-text message.
type Classifier struct {
	client         genai.ClientInterface
	tools          []openai.ChatCompletionToolParam
	restaurantName string
	model          string
	metrics        metrics.Recorder
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierMetrics records classification outcomes.
func WithClassifierMetrics(r metrics.Recorder) ClassifierOption {
	return func(c *Classifier) {
		c.metrics = metrics.OrNop(r)
	}
}

// WithModelLabel sets the model name used in metrics.
func WithModelLabel(model string) ClassifierOption {
	return func(c *Classifier) {
		c.model = model
	}
}

// NewClassifier creates a classifier offering tools. A nil client makes every
// classification answer with the greeting.
func NewClassifier(client genai.ClientInterface, tools []openai.ChatCompletionToolParam, restaurantName string, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		client:         client,
		tools:          tools,
		restaurantName: restaurantName,
		model:          genai.DefaultModel,
		metrics:        metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SystemPrompt renders the instructions with the conversation context embedded as JSON.
func (c *Classifier) SystemPrompt(cc models.ConversationContext) string {
	state, err := json.Marshal(cc)
	if err != nil {
		state = []byte("{}")
	}
	return fmt.Sprintf(systemPromptTemplate, c.restaurantName, state)
}

func textReply(message string) Intent {
	args, _ := json.Marshal(models.SendTextReplyParams{Message: message})
	return Intent{
		Call:     models.FunctionCall{Name: string(models.ToolSendTextReply), Arguments: args},
		Response: message,
	}
}

// Classify never fails: transport and provider errors become an apology reply.
func (c *Classifier) Classify(ctx context.Context, text string, cc models.ConversationContext) Intent {
	if c.client == nil {
		slog.Debug("Classifier.Classify: no model configured, replying with greeting")
		return textReply(DefaultGreeting)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(c.SystemPrompt(cc)),
		openai.UserMessage(`User message: "` + text + `"`),
	}

	start := time.Now()
	resp, err := c.client.GenerateWithTools(ctx, messages, c.tools)
	c.metrics.ObserveClassification(c.model, err == nil, time.Since(start))
	if err != nil {
		slog.Error("Classifier.Classify: intent detection failed", "error", err)
		return textReply(ClassifierApology)
	}

	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0].Function
		slog.Debug("Classifier.Classify: tool selected", "tool", call.Name, "arguments", formatToolArgumentsForLog(call.Arguments), "toolCalls", len(resp.ToolCalls))
		return Intent{Call: call, Response: resp.Content}
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		content = ClassifierNoAction
	}
	return textReply(content)
}

func formatToolArgumentsForLog(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > toolArgumentsLogLimit {
		return s[:toolArgumentsLogLimit] + "...(truncated)"
	}
	return s
}
