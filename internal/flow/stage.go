package flow

import (
	"slices"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

// StageExpiredNotice is sent when a button from an earlier step is tapped out of turn.
const StageExpiredNotice = "⌛ That option has expired. Here's where your order stands now."

type guardKey struct {
	tool   models.ToolName
	action models.OrderAction
}

// stageGuards lists the stages a guarded intent may fire from. Intents without an
// entry are allowed from any stage.
var stageGuards = map[guardKey][]models.StageType{
	{tool: models.ToolProcessOrderResponse, action: models.OrderActionConfirmed}: {
		models.StageConfirmingOrder, models.StageConfirmingCancel,
	},
	{tool: models.ToolProcessOrderResponse, action: models.OrderActionCancelled}: {
		models.StageConfirmingOrder, models.StageConfirmingCancel, models.StageCartOptions,
	},
	{tool: models.ToolProcessOrderResponse, action: models.OrderActionCancelConfirm}: {
		models.StageConfirmingCancel,
	},
	{tool: models.ToolProcessPayment}: {
		models.StageSelectingPayment,
	},
}

func guardKeyFor(tool models.ToolName, params models.ToolParams) guardKey {
	key := guardKey{tool: tool}
	if p, ok := params.(*models.ProcessOrderResponseParams); ok {
		key.action = p.Action
	}
	return key
}

// StageAllows reports whether tool with params may run while the user is in stage.
func StageAllows(tool models.ToolName, params models.ToolParams, stage models.StageType) bool {
	allowed, guarded := stageGuards[guardKeyFor(tool, params)]
	if !guarded {
		return true
	}
	return slices.Contains(allowed, stage)
}
