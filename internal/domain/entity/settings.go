package entity

import "github.com/shopspring/decimal"

// DefaultEwaybillThreshold is the consignment value above which an e-Waybill is mandatory
var DefaultEwaybillThreshold = decimal.NewFromInt(50000)

// ComplianceSettings is a snapshot of the GST settings in force for one decision
type ComplianceSettings struct {
	EnableEwaybill       bool `json:"enable_e_waybill"`
	EnableEwaybillFromPI bool `json:"enable_e_waybill_from_pi"`
	EnableEwaybillFromDN bool `json:"enable_e_waybill_from_dn"`
	EnableEwaybillFromPR bool `json:"enable_e_waybill_from_pr"`
	EnableEwaybillFromSC bool `json:"enable_e_waybill_from_sc"`

	EnableEInvoice bool `json:"enable_e_invoice"`
	APIEnabled     bool `json:"enable_api"`
	SandboxMode    bool `json:"sandbox_mode"`

	EwaybillThreshold decimal.Decimal `json:"e_waybill_threshold"`

	AutoGenerateEwaybill bool `json:"auto_generate_e_waybill"`
	AutoGenerateEInvoice bool `json:"auto_generate_e_invoice"`
}
