package service

import "errors"

var (
	// ErrNotFound is returned when a transaction or e-waybill is unknown
	ErrNotFound = errors.New("not found")

	// ErrNotApplicable is returned when the transaction needs no e-waybill or the API cannot raise one
	ErrNotApplicable = errors.New("e-waybill not applicable")

	// ErrAlreadyGenerated is returned when the transaction already carries an e-waybill
	ErrAlreadyGenerated = errors.New("e-waybill already generated")

	// ErrNotSubmitted is returned when generation is attempted on a draft or cancelled document
	ErrNotSubmitted = errors.New("transaction is not submitted")

	// ErrActionNotAllowed is returned when the lifecycle guards refuse an action
	ErrActionNotAllowed = errors.New("action not allowed")

	// ErrInvalidReason is returned for reason codes the portal does not accept
	ErrInvalidReason = errors.New("invalid reason code")

	// ErrInvalidRequest is returned for malformed part-B or extension details
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAPIUnavailable is returned when live mode is on but no GSP is configured
	ErrAPIUnavailable = errors.New("e-waybill API is not configured")
)
