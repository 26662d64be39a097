package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/domain/event"
)

var ist = time.FixedZone("IST", 5*60*60+30*60)

const noticeTimeLayout = "02 Jan 2006 03:04 PM"

// NotifiedEvents are the lifecycle events that reach the compliance team
var NotifiedEvents = []event.Type{
	event.TypeEwaybillGenerated,
	event.TypeEwaybillCancelled,
	event.TypeEwaybillExtended,
	event.TypeExtensionWindowOpened,
	event.TypeScheduledExtensionFailed,
	event.TypeEwaybillExpired,
}

// NotificationService turns lifecycle events into team notices
type NotificationService interface {
	Handle(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifier: notifier,
		logger:   logger,
	}
}

// Handle sends the notice for evt. Events without a notice are ignored.
func (s *notificationServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	message, ok := buildNotice(evt)
	if !ok {
		return nil
	}

	if err := s.notifier.Notify(ctx, message); err != nil {
		s.logger.Error("Failed to send notice", "error", err, "event_type", evt.Type, "ewaybill_number", evt.EwaybillNumber)
		return fmt.Errorf("send notice: %w", err)
	}

	s.logger.Info("Notice sent", "event_type", evt.Type, "ewaybill_number", evt.EwaybillNumber)
	return nil
}

func buildNotice(evt *event.Event) (string, bool) {
	if evt == nil {
		return "", false
	}
	subject := fmt.Sprintf("e-Waybill %s (%s %s)", evt.EwaybillNumber, evt.DocumentType, evt.DocumentName)

	switch evt.Type {
	case event.TypeEwaybillGenerated:
		msg := subject + " generated."
		if v, ok := evt.Payload["sandbox"].(bool); ok && v {
			msg += " Sandbox mode, not filed with the portal."
		}
		return msg + validUptoLine(evt), true

	case event.TypeEwaybillCancelled:
		reason := evt.GetPayloadString("reason")
		if label, ok := entity.CancelReasonLabel(reason); ok {
			reason = label
		}
		return fmt.Sprintf("%s cancelled. Reason: %s", subject, reason), true

	case event.TypeEwaybillExtended:
		return subject + " extended." + validUptoLine(evt), true

	case event.TypeExtensionWindowOpened:
		var b strings.Builder
		b.WriteString(subject)
		b.WriteString(" is due to expire.")
		b.WriteString(validUptoLine(evt))
		if closes, ok := evt.GetPayloadTime("window_closes_at"); ok {
			fmt.Fprintf(&b, "\nExtension possible until %s IST.", closes.In(ist).Format(noticeTimeLayout))
		}
		if scheduled, _ := evt.Payload["extension_scheduled"].(bool); scheduled {
			b.WriteString("\nA scheduled extension will be submitted automatically.")
		} else if canExtend, _ := evt.Payload["can_extend"].(bool); !canExtend {
			b.WriteString("\nIt cannot be extended because the company itself is the transporter.")
		}
		return b.String(), true

	case event.TypeScheduledExtensionFailed:
		return fmt.Sprintf("%s: scheduled extension failed. %s", subject, evt.GetPayloadString("error")), true

	case event.TypeEwaybillExpired:
		return subject + " has expired and can no longer be extended.", true
	}
	return "", false
}

func validUptoLine(evt *event.Event) string {
	t, ok := evt.GetPayloadTime("valid_upto")
	if !ok {
		return ""
	}
	return fmt.Sprintf("\nValid upto %s IST.", t.In(ist).Format(noticeTimeLayout))
}
