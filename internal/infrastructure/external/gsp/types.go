package gsp

import (
	"fmt"
	"time"
)

// portal timestamps are IST without a zone marker
var ist = time.FixedZone("IST", 5*60*60+30*60)

const (
	portalDateTimeLayout = "02/01/2006 03:04:05 PM"
	portalDateLayout     = "02/01/2006"
)

// envelope is the GSP response wrapper
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Result  portalReply `json:"result"`
}

// portalReply merges the result fields of every e-Waybill action
type portalReply struct {
	EwayBillNo      int64  `json:"ewayBillNo"`
	EwayBillDate    string `json:"ewayBillDate,omitempty"`
	ValidUpto       string `json:"validUpto,omitempty"`
	CancelDate      string `json:"cancelDate,omitempty"`
	UpdatedDate     string `json:"updatedDate,omitempty"`
	VehUpdDate      string `json:"vehUpdDate,omitempty"`
	TransUpdateDate string `json:"transUpdateDate,omitempty"`
}

type itemPayload struct {
	HSNCode  string  `json:"hsnCode"`
	Quantity float64 `json:"quantity"`
}

type generatePayload struct {
	SupplyType    string        `json:"supplyType"`
	DocType       string        `json:"docType"`
	DocNo         string        `json:"docNo"`
	DocDate       string        `json:"docDate"`
	FromGSTIN     string        `json:"fromGstin"`
	ToGSTIN       string        `json:"toGstin"`
	TotInvValue   string        `json:"totInvValue"`
	TransporterID string        `json:"transporterId,omitempty"`
	TransName     string        `json:"transporterName,omitempty"`
	TransMode     string        `json:"transMode,omitempty"`
	TransDistance string        `json:"transDistance"`
	VehicleNo     string        `json:"vehicleNo,omitempty"`
	ItemList      []itemPayload `json:"itemList"`
}

type cancelPayload struct {
	EwbNo         string `json:"ewbNo"`
	CancelRsnCode int    `json:"cancelRsnCode"`
	CancelRmrk    string `json:"cancelRmrk"`
}

type extendPayload struct {
	EwbNo             string `json:"ewbNo"`
	VehicleNo         string `json:"vehicleNo,omitempty"`
	FromPlace         string `json:"fromPlace"`
	FromPincode       string `json:"fromPincode"`
	RemainingDistance int    `json:"remainingDistance"`
	ConsignmentStatus string `json:"consignmentStatus"`
	ExtnRsnCode       int    `json:"extnRsnCode"`
	ExtnRemarks       string `json:"extnRemarks"`
}

type vehiclePayload struct {
	EwbNo      string `json:"EwbNo"`
	VehicleNo  string `json:"VehicleNo"`
	FromPlace  string `json:"FromPlace"`
	TransMode  string `json:"TransMode"`
	ReasonCode string `json:"ReasonCode"`
	ReasonRem  string `json:"ReasonRem"`
}

type transporterPayload struct {
	EwbNo         string `json:"EwbNo"`
	TransporterID string `json:"TransporterId"`
}

// parsePortalTime reads an IST portal timestamp. An empty string yields ok=false.
func parsePortalTime(s string) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := time.ParseInLocation(portalDateTimeLayout, s, ist)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid portal timestamp %q: %w", s, err)
	}
	return t.UTC(), true, nil
}

func formatPortalTime(t time.Time) string {
	return t.In(ist).Format(portalDateTimeLayout)
}
