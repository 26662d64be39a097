// Package ewaybill holds the e-Waybill decision core: applicability of a transaction
// and the time windows that gate cancellation and extension of a generated e-Waybill.
//
// Every function here is total over well-typed input. Incomplete documents make a
// predicate false; nothing in this package returns an error or reads the wall clock.
package ewaybill

import (
	"strings"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
)

// Decision is the aggregate of the applicability predicates for one snapshot
type Decision struct {
	DocumentType        entity.DocumentType `json:"document_type"`
	Applicable          bool                `json:"is_e_waybill_applicable"`
	GeneratableUsingAPI bool                `json:"is_e_waybill_generatable_using_api"`
	AutoGenerate        bool                `json:"auto_generate_e_waybill"`
	EInvoiceApplicable  bool                `json:"is_e_invoice_applicable"`
	MeetsValueThreshold bool                `json:"meets_value_threshold"`
	HasGoodsToTransport bool                `json:"has_goods_to_transport"`
}

// Evaluate runs every predicate against the snapshot
func Evaluate(snap *entity.TransactionSnapshot, settings entity.ComplianceSettings) Decision {
	d := Decision{
		Applicable:          IsApplicable(snap, settings),
		GeneratableUsingAPI: IsGeneratableUsingAPI(snap, settings),
		AutoGenerate:        ShouldAutoGenerate(snap, settings),
		EInvoiceApplicable:  IsEInvoiceApplicable(snap, settings),
		MeetsValueThreshold: MeetsThreshold(snap, settings),
	}
	if snap != nil {
		d.DocumentType = snap.DocumentType
		d.HasGoodsToTransport = hasGoodsItem(snap.Items)
	}
	return d
}

// IsApplicable reports whether the transaction legally needs an e-Waybill
func IsApplicable(snap *entity.TransactionSnapshot, settings entity.ComplianceSettings) bool {
	if !baseApplicable(snap, settings) {
		return false
	}

	switch snap.DocumentType {
	case entity.DocTypePurchaseInvoice:
		return settings.EnableEwaybillFromPI
	case entity.DocTypeDeliveryNote:
		return settings.EnableEwaybillFromDN
	case entity.DocTypePurchaseReceipt:
		return settings.EnableEwaybillFromPR
	case entity.DocTypeSubcontractingReceipt:
		return settings.EnableEwaybillFromSC
	default:
		return true
	}
}

// IsGeneratableUsingAPI reports whether the API has enough data to generate the e-Waybill.
// When it is false but IsApplicable holds, the e-Waybill has to be generated manually.
func IsGeneratableUsingAPI(snap *entity.TransactionSnapshot, settings entity.ComplianceSettings) bool {
	if !IsApplicable(snap, settings) || !settings.APIEnabled {
		return false
	}

	switch snap.DocumentType {
	case entity.DocTypeSalesInvoice, entity.DocTypePurchaseInvoice:
		// billing address for sales, supplier address for purchases
		return snap.PartyAddressPresent && !snap.CompanyGSTINEqualsPartyGSTIN()
	case entity.DocTypeDeliveryNote:
		return snap.PartyAddressPresent
	default:
		return true
	}
}

// ShouldAutoGenerate reports whether the e-Waybill should be generated on submit
// without user action. Only Sales Invoices are auto-generated.
func ShouldAutoGenerate(snap *entity.TransactionSnapshot, settings entity.ComplianceSettings) bool {
	if snap == nil || snap.DocumentType != entity.DocTypeSalesInvoice {
		return false
	}

	return !snap.IsReturn &&
		!snap.IsDebitNote &&
		snap.EwaybillNumber == "" &&
		settings.AutoGenerateEwaybill &&
		IsGeneratableUsingAPI(snap, settings) &&
		MeetsThreshold(snap, settings) &&
		IsEInvoiceApplicable(snap, settings)
}

// MeetsThreshold compares the absolute base grand total against the configured threshold
func MeetsThreshold(snap *entity.TransactionSnapshot, settings entity.ComplianceSettings) bool {
	if snap == nil {
		return false
	}
	return snap.BaseGrandTotal.Abs().GreaterThanOrEqual(settings.EwaybillThreshold)
}

func baseApplicable(snap *entity.TransactionSnapshot, settings entity.ComplianceSettings) bool {
	if snap == nil || !settings.EnableEwaybill {
		return false
	}
	if snap.CompanyGSTIN == "" || snap.IsOpening {
		return false
	}
	return hasGoodsItem(snap.Items)
}

// hasGoodsItem is true if at least one row moves goods: an HSN code outside the
// services chapter and a non-zero quantity
func hasGoodsItem(items []entity.LineItem) bool {
	for _, item := range items {
		if item.HSNCode == "" || strings.HasPrefix(item.HSNCode, entity.ServicesHSNPrefix) {
			continue
		}
		if item.Qty != 0 {
			return true
		}
	}
	return false
}
