package workflow

import "github.com/garyjia/gst-compliance/internal/domain/entity"

// Trigger represents an e-Waybill action that can cause a state transition
type Trigger string

const (
	TriggerGenerate          Trigger = entity.ActionGenerate
	TriggerCancel            Trigger = entity.ActionCancel
	TriggerExtend            Trigger = entity.ActionExtend
	TriggerExpire            Trigger = entity.ActionExpire
	TriggerUpdateVehicle     Trigger = entity.ActionUpdateVehicle
	TriggerUpdateTransporter Trigger = entity.ActionUpdateTransporter
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
