package ewaybill

import (
	"time"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
)

const (
	// CancellationWindow is how long after generation an e-Waybill may be cancelled
	CancellationWindow = 24 * time.Hour

	// ExtensionMargin is the half-width of the extension window around valid_upto
	ExtensionMargin = 8 * time.Hour
)

// IsCancellable reports whether the e-Waybill is still inside its cancellation window
func IsCancellable(rec *entity.EwaybillRecord, now time.Time) bool {
	if rec == nil || rec.CreatedOn.IsZero() {
		return false
	}
	return now.Before(rec.CreatedOn.Add(CancellationWindow))
}

// IsValid reports whether the e-Waybill has not yet lapsed.
// A record without valid_upto is not tracked and counts as valid.
func IsValid(rec *entity.EwaybillRecord, now time.Time) bool {
	if rec == nil {
		return false
	}
	if rec.ValidUpto == nil {
		return true
	}
	return now.Before(*rec.ValidUpto)
}

// CanExtendNow reports whether now falls strictly inside (valid_upto-8h, valid_upto+8h)
func CanExtendNow(rec *entity.EwaybillRecord, now time.Time) bool {
	if rec == nil || rec.ValidUpto == nil {
		return false
	}
	opens := rec.ValidUpto.Add(-ExtensionMargin)
	closes := rec.ValidUpto.Add(ExtensionMargin)
	return now.After(opens) && now.Before(closes)
}

// HasExtensionWindowExpired reports whether now is strictly after valid_upto+8h.
// The closing instant itself is neither extendable nor expired.
func HasExtensionWindowExpired(rec *entity.EwaybillRecord, now time.Time) bool {
	if rec == nil || rec.ValidUpto == nil {
		return false
	}
	return now.After(rec.ValidUpto.Add(ExtensionMargin))
}

// CanExtend reports whether the e-Waybill may ever be extended.
// One generated with the company's own GSTIN as transporter ID cannot be.
func CanExtend(rec *entity.EwaybillRecord, companyGSTIN string) bool {
	if rec == nil {
		return false
	}
	return rec.TransporterID != companyGSTIN
}

// ExtensionWindowOpensAt returns the first instant after which CanExtendNow can hold
func ExtensionWindowOpensAt(rec *entity.EwaybillRecord) (time.Time, bool) {
	if rec == nil || rec.ValidUpto == nil {
		return time.Time{}, false
	}
	return rec.ValidUpto.Add(-ExtensionMargin), true
}
