package gsp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// kilometres covered per day of validity for regular cargo
const kmPerValidityDay = 200

// SandboxClient answers e-Waybill requests locally. Numbers are derived from the
// clock and a sequence, and validity follows the portal's distance rule.
type SandboxClient struct {
	clock  port.Clock
	logger *zap.Logger

	mu  sync.Mutex
	seq int64
}

// NewSandboxClient creates a local stand-in for the portal
func NewSandboxClient(clock port.Clock, logger *zap.Logger) *SandboxClient {
	return &SandboxClient{clock: clock, logger: logger}
}

// Generate returns a fresh 12-digit number valid per the distance rule.
// A part-A only e-waybill has no validity until a vehicle is assigned.
func (s *SandboxClient) Generate(ctx context.Context, req port.GenerateEwaybillRequest) (*port.EwaybillAPIResult, error) {
	if req.Snapshot == nil {
		return nil, fmt.Errorf("generate: snapshot is required")
	}

	now := s.clock.Now()
	var validUpto *time.Time
	if req.VehicleNo != "" {
		v := ValidUptoFor(now, req.Distance)
		validUpto = &v
	}

	s.mu.Lock()
	s.seq++
	number := fmt.Sprintf("1%011d", (now.Unix()*100+s.seq)%100_000_000_000)
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("ewaybill_number", number),
		zap.String("document_name", req.Snapshot.Name),
	}
	if validUpto != nil {
		fields = append(fields, zap.String("valid_upto", formatPortalTime(*validUpto)))
	}
	s.logger.Info("Sandbox e-waybill generated", fields...)

	return &port.EwaybillAPIResult{
		Number:    number,
		Date:      now,
		ValidUpto: validUpto,
		RequestID: uuid.NewString(),
		Sandbox:   true,
	}, nil
}

// Cancel acknowledges the cancellation at the current instant
func (s *SandboxClient) Cancel(ctx context.Context, req port.CancelEwaybillRequest) (*port.EwaybillAPIResult, error) {
	return s.ack(req.Number, nil), nil
}

// Extend recomputes validity from the remaining distance
func (s *SandboxClient) Extend(ctx context.Context, req port.ExtendEwaybillRequest) (*port.EwaybillAPIResult, error) {
	validUpto := ValidUptoFor(s.clock.Now(), req.RemainingDistance)
	return s.ack(req.Number, &validUpto), nil
}

// UpdateVehicle acknowledges the new vehicle. The first vehicle on a part-A only
// e-waybill starts its validity.
func (s *SandboxClient) UpdateVehicle(ctx context.Context, req port.UpdateVehicleRequest) (*port.EwaybillAPIResult, error) {
	if !req.FirstVehicle {
		return s.ack(req.Number, nil), nil
	}
	validUpto := ValidUptoFor(s.clock.Now(), req.Distance)
	return s.ack(req.Number, &validUpto), nil
}

// UpdateTransporter acknowledges the new transporter
func (s *SandboxClient) UpdateTransporter(ctx context.Context, req port.UpdateTransporterRequest) (*port.EwaybillAPIResult, error) {
	return s.ack(req.Number, nil), nil
}

func (s *SandboxClient) ack(number string, validUpto *time.Time) *port.EwaybillAPIResult {
	return &port.EwaybillAPIResult{
		Number:    number,
		Date:      s.clock.Now(),
		ValidUpto: validUpto,
		RequestID: uuid.NewString(),
		Sandbox:   true,
	}
}

// ValidUptoFor returns the validity end for a consignment starting at from.
// One day covers up to 200 km, and a day ends at midnight IST of the following day.
func ValidUptoFor(from time.Time, distanceKm int) time.Time {
	days := (distanceKm + kmPerValidityDay - 1) / kmPerValidityDay
	if days < 1 {
		days = 1
	}
	local := from.In(ist)
	end := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, ist).AddDate(0, 0, days)
	return end.UTC()
}

var _ port.EwaybillAPI = (*SandboxClient)(nil)
