package entity

import "time"

// EwaybillRecord represents a generated e-Waybill attached to one transaction (1:0..1).
// Window decisions over it live in the ewaybill package; mutation happens only after
// a successful call to the e-Waybill API.
type EwaybillRecord struct {
	ID           int64        `json:"id"`
	Number       string       `json:"ewaybill_number"`
	DocumentType DocumentType `json:"document_type"`
	DocumentName string       `json:"document_name"`
	CompanyGSTIN string       `json:"company_gstin"`

	CreatedOn time.Time  `json:"created_on"`
	ValidUpto *time.Time `json:"valid_upto,omitempty"`

	TransporterID   string `json:"gst_transporter_id,omitempty"`
	TransporterName string `json:"transporter_name,omitempty"`
	VehicleNo       string `json:"vehicle_no,omitempty"`
	Distance        int    `json:"distance,omitempty"`

	ExtensionScheduled       bool `json:"extension_scheduled"`
	IsGeneratedInSandboxMode bool `json:"is_generated_in_sandbox_mode"`

	Status      string     `json:"status"`
	CancelledOn *time.Time `json:"cancelled_on,omitempty"`

	// set when the record enters the extension window and a notice has gone out
	ExpiryNotifiedAt *time.Time `json:"expiry_notified_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive returns true while the e-Waybill has neither been cancelled nor expired
func (r *EwaybillRecord) IsActive() bool {
	return r.Status == EwaybillStatusGenerated
}

// EwaybillLog is the audit trail of lifecycle actions against an e-Waybill
type EwaybillLog struct {
	ID             int64     `json:"id"`
	EwaybillNumber string    `json:"ewaybill_number"`
	DocumentType   string    `json:"document_type"`
	DocumentName   string    `json:"document_name"`
	Action         string    `json:"action"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason,omitempty"`
	Remark         string    `json:"remark,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	IsSandbox      bool      `json:"is_sandbox"`
	Timestamp      time.Time `json:"timestamp"`
}

// ScheduledExtension holds the extend details entered before the extension window opened.
// The validity monitor submits them once the window is open.
type ScheduledExtension struct {
	EwaybillNumber    string    `json:"ewaybill_number"`
	VehicleNo         string    `json:"vehicle_no,omitempty"`
	FromPlace         string    `json:"from_place"`
	FromPincode       string    `json:"from_pincode"`
	RemainingDistance int       `json:"remaining_distance"`
	ConsignmentStatus string    `json:"consignment_status"`
	ReasonCode        string    `json:"reason_code"`
	Remark            string    `json:"remark,omitempty"`
	ScheduledAt       time.Time `json:"scheduled_at"`
}
