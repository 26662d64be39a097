package ewaybill

import "github.com/garyjia/gst-compliance/internal/domain/entity"

// IsEInvoiceApplicable reports whether the transaction needs an IRN.
// Sales Invoice auto-generation of the e-Waybill piggybacks on this rule.
func IsEInvoiceApplicable(snap *entity.TransactionSnapshot, settings entity.ComplianceSettings) bool {
	if snap == nil || !settings.EnableEInvoice {
		return false
	}
	if snap.DocumentType != entity.DocTypeSalesInvoice {
		return false
	}
	if snap.CompanyGSTIN == "" || snap.GSTCategory == entity.GSTCategoryUnregistered {
		return false
	}
	if len(snap.Items) == 0 {
		return false
	}
	return !snap.Items[0].IsNonGST
}
