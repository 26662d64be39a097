package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/domain/ewaybill"
)

// ParseState converts a persisted status string into a lifecycle state
func ParseState(status string) (State, error) {
	if status == "" {
		return StateNonExistent, nil
	}
	s := State(status)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, status)
	}
	return s, nil
}

// NewLifecycle builds a state machine for one e-Waybill, with every guard
// evaluated against the record as it stands at now.
//
//	NON_EXISTENT --GENERATE--> GENERATED
//	GENERATED --CANCEL--> CANCELLED            (within 24h of generation)
//	GENERATED --EXTEND--> GENERATED            (inside the extension window)
//	GENERATED --UPDATE_VEHICLE--> GENERATED    (while valid)
//	GENERATED --UPDATE_TRANSPORTER--> GENERATED
//	GENERATED --EXPIRE--> EXPIRED              (after the extension window closed)
func NewLifecycle(rec *entity.EwaybillRecord, companyGSTIN string, now time.Time) StateMachine {
	b := NewBuilder()

	b.Configure(StateNonExistent).
		Permit(TriggerGenerate, StateGenerated)

	b.Configure(StateGenerated).
		PermitIf(TriggerCancel, StateCancelled, func(ctx context.Context) bool {
			return ewaybill.IsCancellable(rec, now)
		}).
		PermitReentryIf(TriggerExtend, func(ctx context.Context) bool {
			return ewaybill.CanExtend(rec, companyGSTIN) && ewaybill.CanExtendNow(rec, now)
		}).
		PermitReentryIf(TriggerUpdateVehicle, func(ctx context.Context) bool {
			return ewaybill.IsValid(rec, now)
		}).
		PermitReentryIf(TriggerUpdateTransporter, func(ctx context.Context) bool {
			return ewaybill.IsValid(rec, now)
		}).
		PermitIf(TriggerExpire, StateExpired, func(ctx context.Context) bool {
			return !ewaybill.IsValid(rec, now) && ewaybill.HasExtensionWindowExpired(rec, now)
		})

	// terminal states accept nothing
	b.Configure(StateCancelled)
	b.Configure(StateExpired)

	return b.Build(StateOf(rec))
}
