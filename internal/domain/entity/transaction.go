package entity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType identifies the kind of stock/sales transaction an e-Waybill can be raised against
type DocumentType string

const (
	DocTypeSalesInvoice          DocumentType = "Sales Invoice"
	DocTypePurchaseInvoice       DocumentType = "Purchase Invoice"
	DocTypeDeliveryNote          DocumentType = "Delivery Note"
	DocTypePurchaseReceipt       DocumentType = "Purchase Receipt"
	DocTypeSubcontractingReceipt DocumentType = "Subcontracting Receipt"
)

var validDocumentTypes = map[DocumentType]bool{
	DocTypeSalesInvoice:          true,
	DocTypePurchaseInvoice:       true,
	DocTypeDeliveryNote:          true,
	DocTypePurchaseReceipt:       true,
	DocTypeSubcontractingReceipt: true,
}

// IsValid returns true if the document type is one of the supported transaction types
func (d DocumentType) IsValid() bool {
	return validDocumentTypes[d]
}

// String returns the string representation of the document type
func (d DocumentType) String() string {
	return string(d)
}

// DocStatus mirrors the host framework's docstatus
type DocStatus int

const (
	DocStatusDraft     DocStatus = 0
	DocStatusSubmitted DocStatus = 1
	DocStatusCancelled DocStatus = 2
)

// GSTCategoryUnregistered is the party category that makes e-Invoicing inapplicable
const GSTCategoryUnregistered = "Unregistered"

// ServicesHSNPrefix marks HSN/SAC codes that classify services rather than goods
const ServicesHSNPrefix = "99"

// ErrNoLineItems is returned when a submitted transaction carries no line items
var ErrNoLineItems = errors.New("submitted transaction has no line items")

// LineItem is the part of a transaction row the compliance rules look at
type LineItem struct {
	ItemCode string  `json:"item_code,omitempty"`
	HSNCode  string  `json:"hsn_code"`
	Qty      float64 `json:"qty"`
	IsNonGST bool    `json:"is_non_gst,omitempty"`
}

// TransactionSnapshot is a read-only projection of a transaction document at decision time.
// It is built by the host-system sync layer and never mutated by the rule engine.
type TransactionSnapshot struct {
	DocumentType DocumentType `json:"document_type"`
	Name         string       `json:"name"`
	Company      string       `json:"company,omitempty"`
	DocStatus    DocStatus    `json:"docstatus"`

	CompanyGSTIN        string `json:"company_gstin,omitempty"`
	PartyGSTIN          string `json:"party_gstin,omitempty"`
	PartyAddressPresent bool   `json:"party_address_present"`
	GSTCategory         string `json:"gst_category,omitempty"`

	IsOpening   bool `json:"is_opening"`
	IsReturn    bool `json:"is_return"`
	IsDebitNote bool `json:"is_debit_note"`

	Items          []LineItem      `json:"items"`
	BaseGrandTotal decimal.Decimal `json:"base_grand_total"`

	EwaybillNumber string    `json:"ewaybill_number,omitempty"`
	IRN            string    `json:"irn,omitempty"`
	PostingDate    time.Time `json:"posting_date"`

	UpdatedAt time.Time `json:"updated_at"`
}

// CompanyGSTINEqualsPartyGSTIN reports whether the transaction is between two units
// registered under the same GSTIN
func (t *TransactionSnapshot) CompanyGSTINEqualsPartyGSTIN() bool {
	return t.CompanyGSTIN == t.PartyGSTIN
}

// IsSubmitted returns true if the document has been submitted in the host system
func (t *TransactionSnapshot) IsSubmitted() bool {
	return t.DocStatus == DocStatusSubmitted
}

// Validate checks the structural invariants the host system guarantees.
// The rule engine does not depend on it; it guards the sync endpoint.
func (t *TransactionSnapshot) Validate() error {
	if !t.DocumentType.IsValid() {
		return errors.New("unsupported document type: " + string(t.DocumentType))
	}
	if t.Name == "" {
		return errors.New("transaction name is required")
	}
	if t.DocStatus < DocStatusDraft || t.DocStatus > DocStatusCancelled {
		return errors.New("invalid docstatus")
	}
	if t.IsSubmitted() && len(t.Items) == 0 {
		return ErrNoLineItems
	}
	return nil
}
