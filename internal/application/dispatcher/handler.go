package dispatcher

import (
	"context"

	"github.com/garyjia/gst-compliance/internal/domain/event"
)

// Handler processes lifecycle events
type Handler func(ctx context.Context, evt *event.Event) error

type namedHandler struct {
	name    string
	handler Handler
}
