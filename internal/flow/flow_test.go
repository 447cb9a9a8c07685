package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/OrderPipe/internal/genai"
	"github.com/BTreeMap/OrderPipe/internal/messaging"
	"github.com/BTreeMap/OrderPipe/internal/models"
	"github.com/BTreeMap/OrderPipe/internal/store"
	"github.com/BTreeMap/OrderPipe/internal/testutil"
)

const testUser = "9779800000000"

// scriptedLLM returns queued responses from GenerateWithTools and counts calls.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*genai.ToolCallResponse
	err       error
	calls     int
	lastTools []openai.ChatCompletionToolParam
}

func (s *scriptedLLM) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", errors.New("not scripted")
}

func (s *scriptedLLM) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastTools = tools
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &genai.ToolCallResponse{}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) push(tool models.ToolName, args string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, &genai.ToolCallResponse{ToolCalls: []genai.ToolCall{{
		ID:       fmt.Sprintf("call_%d", len(s.responses)),
		Type:     "function",
		Function: genai.FunctionCall{Name: string(tool), Arguments: json.RawMessage(args)},
	}}})
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingOrders breaks order creation while the catalog keeps working.
type failingOrders struct {
	*store.InMemoryStore
}

func (f failingOrders) CreateOrder(ctx context.Context, userID string) (models.Order, error) {
	return models.Order{}, errors.New("connection refused")
}

type fixture struct {
	store    *store.InMemoryStore
	sender   *messaging.MockService
	contexts *MemoryContextStore
	llm      *scriptedLLM
	handlers *Handlers
	engine   *Engine
	now      time.Time
}

func newFixture(t *testing.T, repo Repository, st *store.InMemoryStore) *fixture {
	t.Helper()
	f := &fixture{
		store:    st,
		sender:   messaging.NewMockService(),
		contexts: NewMemoryContextStore(DefaultContextTTL),
		llm:      &scriptedLLM{},
		now:      time.UnixMilli(1718000123456),
	}
	f.handlers = NewHandlers(repo, f.sender, DefaultProfile(), WithClock(func() time.Time { return f.now }))
	registry := NewRegistry(f.handlers)
	classifier := NewClassifier(f.llm, registry.Definitions(), "Momo House")
	f.engine = NewEngine(registry, f.handlers, f.contexts, classifier, WithDedup(st))
	return f
}

func newTestFixture(t *testing.T) *fixture {
	st := testutil.SeededStore(t)
	return newFixture(t, st, st)
}

var messageSeq int

func nextMessageID() string {
	messageSeq++
	return fmt.Sprintf("wamid.test.%d", messageSeq)
}

func (f *fixture) tap(t *testing.T, id string) {
	t.Helper()
	msg := models.InboundMessage{
		MessageID:   nextMessageID(),
		UserID:      testUser,
		Platform:    models.PlatformWhatsApp,
		Type:        "interactive",
		Text:        id,
		Interactive: &models.InteractiveReply{Kind: models.InteractiveButton, ID: id, Title: id},
	}
	if err := f.engine.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage(%s): %v", id, err)
	}
}

func (f *fixture) say(t *testing.T, text string) {
	t.Helper()
	msg := models.InboundMessage{MessageID: nextMessageID(), UserID: testUser, Platform: models.PlatformWhatsApp, Type: "text", Text: text}
	if err := f.engine.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage(%q): %v", text, err)
	}
}

func (f *fixture) context(t *testing.T) models.ConversationContext {
	t.Helper()
	cc, err := f.contexts.Get(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Get context: %v", err)
	}
	return cc
}

func (f *fixture) setContext(t *testing.T, cc models.ConversationContext) {
	t.Helper()
	if err := f.contexts.Set(context.Background(), testUser, cc); err != nil {
		t.Fatalf("Set context: %v", err)
	}
}

func (f *fixture) food(t *testing.T, id int64) models.Food {
	t.Helper()
	food, err := f.store.GetFoodByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFoodByID(%d): %v", id, err)
	}
	return food
}

func containsText(msgs []messaging.SentMessage, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}
