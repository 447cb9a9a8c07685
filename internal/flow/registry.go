package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

// ErrUnknownTool is returned for tool names that are not registered.
var ErrUnknownTool = errors.New("unknown tool")

// HandlerFunc is the uniform signature every registered tool is invoked through.
type HandlerFunc func(ctx context.Context, params models.ToolParams, userID string, cc models.ConversationContext) (Decision, error)

type toolEntry struct {
	newParams func() models.ToolParams
	handle    HandlerFunc
	// definition is nil for tools the classifier is not offered.
	definition *openai.ChatCompletionToolParam
}

// Registry maps tool names to typed parameter decoders and handlers.
type Registry struct {
	tools map[models.ToolName]toolEntry
	order []models.ToolName
}

func emptyObject() shared.FunctionParameters {
	return shared.FunctionParameters{
		"type":       "object",
		"properties": map[string]interface{}{},
		"required":   []string{},
	}
}

func toolDefinition(name models.ToolName, description string, params shared.FunctionParameters) *openai.ChatCompletionToolParam {
	return &openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(name),
			Description: openai.String(description),
			Parameters:  params,
		},
	}
}

// NewRegistry registers all twelve tools backed by h.
func NewRegistry(h *Handlers) *Registry {
	r := &Registry{tools: make(map[models.ToolName]toolEntry)}

	r.register(models.ToolShowFoodMenu,
		func() models.ToolParams { return &models.ShowFoodMenuParams{} },
		func(ctx context.Context, _ models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ShowFoodMenu(ctx, userID, cc)
		},
		toolDefinition(models.ToolShowFoodMenu,
			"Show a list of food categories available in the restaurant menu. Use this when user wants to see the menu, browse food options, or asks what's available.",
			emptyObject()))

	r.register(models.ToolShowCategoryItems,
		func() models.ToolParams { return &models.ShowCategoryItemsParams{} },
		func(ctx context.Context, p models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ShowCategoryItems(ctx, p.(*models.ShowCategoryItemsParams), userID, cc)
		}, nil)

	r.register(models.ToolShowMomoVarieties,
		func() models.ToolParams { return &models.ShowFoodMenuParams{} },
		func(ctx context.Context, _ models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ShowMomoVarieties(ctx, userID, cc)
		},
		toolDefinition(models.ToolShowMomoVarieties,
			"Show a carousel of momo varieties with images. Use this when user selects momos from the menu, wants to see momo options, or asks specifically about momos.",
			emptyObject()))

	r.register(models.ToolAddToCart,
		func() models.ToolParams { return &models.AddToCartParams{} },
		func(ctx context.Context, p models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.AddToCart(ctx, p.(*models.AddToCartParams), userID, cc)
		}, nil)

	r.register(models.ToolAddItemByName,
		func() models.ToolParams { return &models.AddItemByNameParams{} },
		func(ctx context.Context, p models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.AddItemByName(ctx, p.(*models.AddItemByNameParams), userID, cc)
		},
		toolDefinition(models.ToolAddItemByName,
			"Add an item to cart by name. Use this when user wants to add a specific item by typing its name (e.g., 'add momo', 'I want tandoori momo', 'add 2 steam momo'). This validates the item against the menu before adding.",
			shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "The name of the food item to add",
					},
					"quantity": map[string]interface{}{
						"type":        "number",
						"description": "Quantity to add (default 1)",
					},
				},
				"required": []string{"name"},
			}))

	r.register(models.ToolShowCartOptions,
		func() models.ToolParams { return &models.ShowCartOptionsParams{} },
		func(ctx context.Context, _ models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ShowCartOptions(ctx, userID, cc)
		}, nil)

	r.register(models.ToolConfirmOrder,
		func() models.ToolParams { return &models.ConfirmOrderParams{} },
		func(ctx context.Context, p models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ConfirmOrder(ctx, p.(*models.ConfirmOrderParams), userID, cc)
		},
		toolDefinition(models.ToolConfirmOrder,
			"Show order confirmation with confirm and cancel buttons. ONLY use this when user explicitly says 'checkout', 'place order', 'confirm order', or clicks checkout. Do NOT use this when user is adding items.",
			emptyObject()))

	r.register(models.ToolShowPaymentOptions,
		func() models.ToolParams { return &models.ShowPaymentOptionsParams{} },
		func(ctx context.Context, _ models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ShowPaymentOptions(ctx, userID, cc)
		}, nil)

	r.register(models.ToolProcessOrderResponse,
		func() models.ToolParams { return &models.ProcessOrderResponseParams{} },
		func(ctx context.Context, p models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ProcessOrderResponse(ctx, p.(*models.ProcessOrderResponseParams), userID, cc)
		},
		toolDefinition(models.ToolProcessOrderResponse,
			"Process the user's response to order confirmation (confirmed or cancelled).",
			shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"action": map[string]interface{}{
						"type":        "string",
						"enum":        []string{string(models.OrderActionConfirmed), string(models.OrderActionCancelled)},
						"description": "Whether the order was confirmed or cancelled",
					},
				},
				"required": []string{"action"},
			}))

	r.register(models.ToolProcessPayment,
		func() models.ToolParams { return &models.ProcessPaymentParams{} },
		func(ctx context.Context, p models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ProcessPayment(ctx, p.(*models.ProcessPaymentParams), userID, cc)
		}, nil)

	r.register(models.ToolSendTextReply,
		func() models.ToolParams { return &models.SendTextReplyParams{} },
		func(ctx context.Context, p models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.SendTextReply(ctx, p.(*models.SendTextReplyParams), userID, cc)
		},
		toolDefinition(models.ToolSendTextReply,
			"Send a simple text reply for greetings, general questions, or when no special UI is needed.",
			shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"message": map[string]interface{}{
						"type":        "string",
						"description": "The text message to send to the user",
					},
				},
				"required": []string{"message"},
			}))

	r.register(models.ToolShowOrderHistory,
		func() models.ToolParams { return &models.ShowOrderHistoryParams{} },
		func(ctx context.Context, _ models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
			return h.ShowOrderHistory(ctx, userID, cc)
		},
		toolDefinition(models.ToolShowOrderHistory,
			"Show the user's past orders and order history. Use when user asks about their previous orders, order history, past orders, or wants to see what they ordered before.",
			emptyObject()))

	return r
}

func (r *Registry) register(name models.ToolName, newParams func() models.ToolParams, handle HandlerFunc, def *openai.ChatCompletionToolParam) {
	r.tools[name] = toolEntry{newParams: newParams, handle: handle, definition: def}
	r.order = append(r.order, name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name models.ToolName) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns every registered tool in registration order.
func (r *Registry) Names() []models.ToolName {
	return append([]models.ToolName(nil), r.order...)
}

// Definitions returns the tool catalog offered to the classifier.
func (r *Registry) Definitions() []openai.ChatCompletionToolParam {
	var defs []openai.ChatCompletionToolParam
	for _, name := range r.order {
		if def := r.tools[name].definition; def != nil {
			defs = append(defs, *def)
		}
	}
	return defs
}

// Decode parses and validates the arguments of a model-selected call.
func (r *Registry) Decode(call models.FunctionCall) (models.ToolParams, error) {
	entry, ok := r.tools[models.ToolName(call.Name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}
	params := entry.newParams()
	if err := call.DecodeParams(params); err != nil {
		return nil, err
	}
	return params, nil
}

// Invoke runs the handler for name. A nil params value is replaced by the tool's empty parameters.
func (r *Registry) Invoke(ctx context.Context, name models.ToolName, params models.ToolParams, userID string, cc models.ConversationContext) (Decision, error) {
	entry, ok := r.tools[name]
	if !ok {
		return Decision{Context: cc}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if params == nil {
		params = entry.newParams()
	}
	return entry.handle(ctx, params, userID, cc)
}
