package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garyjia/gst-compliance/internal/application/port"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// messageCreator is the slice of the IM API the notifier needs
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Notifier posts plain-text notices to a Lark chat or user
type Notifier struct {
	messages      messageCreator
	receiveIDType string
	receiveID     string
	logger        *zap.Logger
}

// NewNotifier creates a Lark-backed port.Notifier
func NewNotifier(client *lark.Client, cfg Config, logger *zap.Logger) *Notifier {
	return newNotifier(client.Im.Message, cfg, logger)
}

func newNotifier(messages messageCreator, cfg Config, logger *zap.Logger) *Notifier {
	idType := cfg.ReceiveIDType
	if idType == "" {
		idType = larkim.ReceiveIdTypeChatId
	}
	return &Notifier{
		messages:      messages,
		receiveIDType: idType,
		receiveID:     cfg.ReceiveID,
		logger:        logger,
	}
}

// Notify sends text as a Lark text message
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("notice text cannot be empty")
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode message content: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(n.receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(n.receiveID).
			MsgType(larkim.MsgTypeText).
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.messages.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send Lark message", zap.String("receive_id", n.receiveID), zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		n.logger.Error("Lark API returned failure",
			zap.String("receive_id", n.receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	n.logger.Info("Lark notice sent", zap.String("message_id", messageID))
	return nil
}

// LogNotifier writes notices to the log when Lark is not configured
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only port.Notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notice text
func (n *LogNotifier) Notify(ctx context.Context, text string) error {
	n.logger.Info("Notice", zap.String("text", text))
	return nil
}

var (
	_ port.Notifier = (*Notifier)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
)
