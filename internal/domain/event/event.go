package event

import (
	"time"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/google/uuid"
)

// Event represents a change in an e-Waybill's lifecycle
type Event struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	EwaybillNumber string                 `json:"ewaybill_number"`
	DocumentType   entity.DocumentType    `json:"document_type"`
	DocumentName   string                 `json:"document_name"`
	Payload        map[string]interface{} `json:"payload"`
	Timestamp      time.Time              `json:"timestamp"`
}

// NewEvent creates an event for the given record. at is the instant the change took effect.
func NewEvent(eventType Type, rec *entity.EwaybillRecord, at time.Time, payload map[string]interface{}) *Event {
	evt := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: at,
	}
	if evt.Payload == nil {
		evt.Payload = map[string]interface{}{}
	}
	if rec != nil {
		evt.EwaybillNumber = rec.Number
		evt.DocumentType = rec.DocumentType
		evt.DocumentName = rec.DocumentName
	}
	return evt
}

// WithPayload returns a copy of the event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadTime retrieves a time value from the payload
func (e *Event) GetPayloadTime(key string) (time.Time, bool) {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case time.Time:
			return v, true
		case *time.Time:
			if v != nil {
				return *v, true
			}
		}
	}
	return time.Time{}, false
}
