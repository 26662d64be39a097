package entity

// Status constants for EwaybillRecord
const (
	EwaybillStatusNonExistent = "NON_EXISTENT"
	EwaybillStatusGenerated   = "GENERATED"
	EwaybillStatusCancelled   = "CANCELLED"
	EwaybillStatusExpired     = "EXPIRED"
)

// Action constants recorded in EwaybillLog
const (
	ActionGenerate          = "GENERATE"
	ActionCancel            = "CANCEL"
	ActionExtend            = "EXTEND"
	ActionScheduleExtension = "SCHEDULE_EXTENSION"
	ActionUpdateVehicle     = "UPDATE_VEHICLE"
	ActionUpdateTransporter = "UPDATE_TRANSPORTER"
	ActionExpire            = "EXPIRE"
)

// Cancellation reason codes accepted by the e-Waybill portal
const (
	CancelReasonDuplicate      = "1"
	CancelReasonOrderCancelled = "2"
	CancelReasonDataEntryError = "3"
	CancelReasonOthers         = "4"
)

var cancelReasons = map[string]string{
	CancelReasonDuplicate:      "Duplicate",
	CancelReasonOrderCancelled: "Order Cancelled",
	CancelReasonDataEntryError: "Data Entry Mistake",
	CancelReasonOthers:         "Others",
}

// Extension reason codes accepted by the e-Waybill portal
const (
	ExtendReasonNaturalCalamity = "1"
	ExtendReasonLawAndOrder     = "2"
	ExtendReasonTransshipment   = "4"
	ExtendReasonAccident        = "5"
	ExtendReasonOthers          = "99"
)

var extendReasons = map[string]string{
	ExtendReasonNaturalCalamity: "Natural Calamity",
	ExtendReasonLawAndOrder:     "Law and Order Situation",
	ExtendReasonTransshipment:   "Transshipment",
	ExtendReasonAccident:        "Accident",
	ExtendReasonOthers:          "Others",
}

// Vehicle update reason codes accepted by the e-Waybill portal
const (
	VehicleReasonBreakDown     = "1"
	VehicleReasonTransshipment = "2"
	VehicleReasonOthers        = "3"
	VehicleReasonFirstTime     = "4"
)

var vehicleReasons = map[string]string{
	VehicleReasonBreakDown:     "Due to Break Down",
	VehicleReasonTransshipment: "Due to Transshipment",
	VehicleReasonOthers:        "Others",
	VehicleReasonFirstTime:     "First Time",
}

// Mode of transport codes
const (
	TransportModeRoad = "1"
	TransportModeRail = "2"
	TransportModeAir  = "3"
	TransportModeShip = "4"
)

// Consignment status reported when extending validity
const (
	ConsignmentInMovement = "M"
	ConsignmentInTransit  = "T"
)

// CancelReasonLabel returns the portal label for a cancellation reason code
func CancelReasonLabel(code string) (string, bool) {
	label, ok := cancelReasons[code]
	return label, ok
}

// ExtendReasonLabel returns the portal label for an extension reason code
func ExtendReasonLabel(code string) (string, bool) {
	label, ok := extendReasons[code]
	return label, ok
}

// VehicleReasonLabel returns the portal label for a vehicle update reason code
func VehicleReasonLabel(code string) (string, bool) {
	label, ok := vehicleReasons[code]
	return label, ok
}

// IsValidTransportMode reports whether code is one of the portal transport modes
func IsValidTransportMode(code string) bool {
	switch code {
	case TransportModeRoad, TransportModeRail, TransportModeAir, TransportModeShip:
		return true
	}
	return false
}
