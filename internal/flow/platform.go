package flow

import (
	"context"

	"github.com/BTreeMap/OrderPipe/internal/models"
)

type contextKey string

const platformKey contextKey = "platform"

// WithPlatform records the channel the current message arrived on.
func WithPlatform(ctx context.Context, p models.Platform) context.Context {
	return context.WithValue(ctx, platformKey, p)
}

// PlatformFromContext returns the channel stored by WithPlatform, defaulting to WhatsApp.
func PlatformFromContext(ctx context.Context) models.Platform {
	if p, ok := ctx.Value(platformKey).(models.Platform); ok && p != "" {
		return p
	}
	return models.PlatformWhatsApp
}
