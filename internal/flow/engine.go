package flow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/BTreeMap/OrderPipe/internal/metrics"
	"github.com/BTreeMap/OrderPipe/internal/models"
	"github.com/BTreeMap/OrderPipe/internal/store"
)

// FailureApology is sent when a message could not be handled. Redeliveries of that
// message are dropped as duplicates, so this is the user's only reply.
const FailureApology = "😔 Sorry, something went wrong on our side. Please try that again, or type \"menu\" to start over."

// Engine processes one inbound message at a time per user: it loads the conversation context,
// routes the message to a tool, runs the tool and stores the resulting context.
type Engine struct {
	registry   *Registry
	handlers   *Handlers
	contexts   ContextStore
	classifier *Classifier
	dedup      store.DedupRepo
	locker     *UserLocker
	metrics    metrics.Recorder
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDedup skips messages whose platform id was already recorded.
func WithDedup(d store.DedupRepo) EngineOption {
	return func(e *Engine) {
		e.dedup = d
	}
}

// WithEngineMetrics records routed intents and stage rejections.
func WithEngineMetrics(r metrics.Recorder) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics.OrNop(r)
	}
}

// NewEngine wires the registry, its handlers, a context store and the classifier.
// A nil classifier answers free text with the greeting.
func NewEngine(registry *Registry, handlers *Handlers, contexts ContextStore, classifier *Classifier, opts ...EngineOption) *Engine {
	if classifier == nil {
		classifier = NewClassifier(nil, nil, "")
	}
	e := &Engine{
		registry:   registry,
		handlers:   handlers,
		contexts:   contexts,
		classifier: classifier,
		locker:     NewUserLocker(),
		metrics:    metrics.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage runs one message through dedup, routing and context persistence.
// Panics inside routing or handlers are recovered and returned as errors.
func (e *Engine) HandleMessage(ctx context.Context, msg models.InboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.HandleMessage: recovered from panic", "userID", msg.UserID, "messageID", msg.MessageID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic while handling message %s: %v", msg.MessageID, r)
			if msg.UserID != "" {
				e.handlers.sendText(ctx, msg.UserID, FailureApology)
			}
		}
	}()

	if msg.UserID == "" {
		return models.ErrEmptyUserID
	}
	if !msg.Processable() {
		slog.Debug("Engine.HandleMessage: skipping unprocessable message", "userID", msg.UserID, "type", msg.Type)
		return nil
	}

	if e.dedup != nil && msg.MessageID != "" {
		fresh, derr := e.dedup.RecordInbound(ctx, msg.MessageID, msg.UserID)
		if derr != nil {
			slog.Warn("Engine.HandleMessage: dedup check failed, processing anyway", "messageID", msg.MessageID, "error", derr)
		} else if !fresh {
			slog.Info("Engine.HandleMessage: duplicate delivery ignored", "userID", msg.UserID, "messageID", msg.MessageID)
			return nil
		}
	}

	unlock := e.locker.Lock(msg.UserID)
	defer unlock()

	ctx = WithPlatform(ctx, msg.Platform)

	cc, gerr := e.contexts.Get(ctx, msg.UserID)
	if gerr != nil {
		slog.Warn("Engine.HandleMessage: failed to load context, starting fresh", "userID", msg.UserID, "error", gerr)
		cc = models.NewConversationContext()
	}
	cc = cc.Normalize()
	slog.Debug("Engine.HandleMessage: routing", "userID", msg.UserID, "stage", cc.Stage, "platform", msg.Platform)

	decision, err := e.Route(ctx, msg, cc)
	if err != nil {
		return fmt.Errorf("failed to route message %s: %w", msg.MessageID, err)
	}

	if serr := e.contexts.Set(ctx, msg.UserID, decision.Context); serr != nil {
		slog.Error("Engine.HandleMessage: failed to store context", "userID", msg.UserID, "error", serr)
	}
	if decision.Reply != nil {
		e.handlers.sendText(ctx, msg.UserID, *decision.Reply)
	}

	if e.dedup != nil && msg.MessageID != "" {
		if merr := e.dedup.MarkProcessed(ctx, msg.MessageID); merr != nil {
			slog.Warn("Engine.HandleMessage: failed to mark message processed", "messageID", msg.MessageID, "error", merr)
		}
	}
	return nil
}

// Route picks the tool for msg: interactive ids first, then the history keywords, then the classifier.
func (e *Engine) Route(ctx context.Context, msg models.InboundMessage, cc models.ConversationContext) (Decision, error) {
	if msg.Interactive != nil {
		if route, ok := RouteInteractive(msg.Interactive.ID); ok {
			return e.dispatch(ctx, route, msg.UserID, cc)
		}
		slog.Debug("Engine.Route: unmatched interactive id, treating as text", "userID", msg.UserID, "id", msg.Interactive.ID)
	}

	if IsHistoryRequest(msg.Text) {
		return e.dispatch(ctx, Route{Tool: models.ToolShowOrderHistory, Source: SourceKeyword}, msg.UserID, cc)
	}

	intent := e.classifier.Classify(ctx, msg.Text, cc)
	params, err := e.registry.Decode(intent.Call)
	if err != nil {
		slog.Warn("Engine.Route: unusable tool call, sending text instead", "userID", msg.UserID, "tool", intent.Call.Name, "arguments", formatToolArgumentsForLog(intent.Call.Arguments), "error", err)
		fallback := intent.Response
		if fallback == "" {
			fallback = DefaultGreeting
		}
		return e.dispatch(ctx, Route{
			Tool:   models.ToolSendTextReply,
			Params: &models.SendTextReplyParams{Message: fallback},
			Source: SourceFallback,
		}, msg.UserID, cc)
	}
	return e.dispatch(ctx, Route{Tool: models.ToolName(intent.Call.Name), Params: params, Source: SourceClassifier}, msg.UserID, cc)
}

func (e *Engine) dispatch(ctx context.Context, route Route, userID string, cc models.ConversationContext) (Decision, error) {
	if !StageAllows(route.Tool, route.Params, cc.Stage) {
		e.metrics.IncStageRejected(string(route.Tool), string(cc.Stage))
		slog.Info("Engine.dispatch: intent not valid in current stage, redirecting to cart", "userID", userID, "tool", route.Tool, "stage", cc.Stage)
		e.handlers.sendText(ctx, userID, StageExpiredNotice)
		return e.registry.Invoke(ctx, models.ToolShowCartOptions, nil, userID, cc)
	}

	e.metrics.IncIntent(string(route.Tool), route.Source)
	slog.Debug("Engine.dispatch: invoking tool", "userID", userID, "tool", route.Tool, "source", route.Source, "stage", cc.Stage)
	return e.registry.Invoke(ctx, route.Tool, route.Params, userID, cc)
}
