package event

// Type identifies the type of domain event
type Type string

const (
	TypeEwaybillGenerated        Type = "ewaybill.generated"
	TypeEwaybillCancelled        Type = "ewaybill.cancelled"
	TypeEwaybillExtended         Type = "ewaybill.extended"
	TypeExtensionScheduled       Type = "ewaybill.extension_scheduled"
	TypeVehicleUpdated           Type = "ewaybill.vehicle_updated"
	TypeTransporterUpdated       Type = "ewaybill.transporter_updated"
	TypeEwaybillExpired          Type = "ewaybill.expired"
	TypeExtensionWindowOpened    Type = "ewaybill.extension_window_opened"
	TypeScheduledExtensionFailed Type = "ewaybill.scheduled_extension_failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeEwaybillGenerated,
		TypeEwaybillCancelled,
		TypeEwaybillExtended,
		TypeExtensionScheduled,
		TypeVehicleUpdated,
		TypeTransporterUpdated,
		TypeEwaybillExpired,
		TypeExtensionWindowOpened,
		TypeScheduledExtensionFailed:
		return true
	default:
		return false
	}
}
