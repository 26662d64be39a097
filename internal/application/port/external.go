package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/domain/event"
)

// ErrAPIRejected is wrapped by adapter errors when the portal refuses a request
var ErrAPIRejected = errors.New("e-waybill portal rejected the request")

// GenerateEwaybillRequest carries the part-B details entered at generation
type GenerateEwaybillRequest struct {
	Snapshot        *entity.TransactionSnapshot
	TransporterID   string
	TransporterName string
	VehicleNo       string
	ModeOfTransport string
	Distance        int
}

// CancelEwaybillRequest cancels an e-Waybill within its cancellation window
type CancelEwaybillRequest struct {
	CompanyGSTIN string
	Number       string
	ReasonCode   string
	Remark       string
}

// ExtendEwaybillRequest extends validity inside the extension window
type ExtendEwaybillRequest struct {
	CompanyGSTIN      string
	Number            string
	VehicleNo         string
	FromPlace         string
	FromPincode       string
	RemainingDistance int
	ConsignmentStatus string
	ReasonCode        string
	Remark            string
}

// UpdateVehicleRequest replaces the part-B vehicle details
type UpdateVehicleRequest struct {
	CompanyGSTIN    string
	Number          string
	VehicleNo       string
	FromPlace       string
	ModeOfTransport string
	ReasonCode      string
	Remark          string
	// Distance and FirstVehicle let a local stand-in start validity the way the portal does
	Distance     int
	FirstVehicle bool
}

// UpdateTransporterRequest assigns a different transporter
type UpdateTransporterRequest struct {
	CompanyGSTIN    string
	Number          string
	TransporterID   string
	TransporterName string
}

// EwaybillAPIResult is the common portal response
type EwaybillAPIResult struct {
	Number    string
	Date      time.Time
	ValidUpto *time.Time
	RequestID string
	Sandbox   bool
}

// EwaybillAPI is the e-Waybill portal reached through a GST Suvidha Provider
type EwaybillAPI interface {
	Generate(ctx context.Context, req GenerateEwaybillRequest) (*EwaybillAPIResult, error)
	Cancel(ctx context.Context, req CancelEwaybillRequest) (*EwaybillAPIResult, error)
	Extend(ctx context.Context, req ExtendEwaybillRequest) (*EwaybillAPIResult, error)
	UpdateVehicle(ctx context.Context, req UpdateVehicleRequest) (*EwaybillAPIResult, error)
	UpdateTransporter(ctx context.Context, req UpdateTransporterRequest) (*EwaybillAPIResult, error)
}

// Notifier sends a plain-text notice to the compliance team
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// EventPublisher hands lifecycle events to subscribers without blocking the caller
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event)
}

// Clock is the time source for window decisions
type Clock interface {
	Now() time.Time
}
