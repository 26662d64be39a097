package service

import (
	"fmt"
	"strings"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/pkg/utils"
)

// portal limit on the approximate distance of a consignment
const maxDistanceKm = 4000

// GenerateRequest carries the part-B details entered at generation.
// All fields are optional; without them a part-A only e-waybill is raised.
type GenerateRequest struct {
	TransporterID   string `json:"gst_transporter_id"`
	TransporterName string `json:"transporter_name"`
	VehicleNo       string `json:"vehicle_no"`
	ModeOfTransport string `json:"mode_of_transport"`
	Distance        int    `json:"distance"`
}

// CancelRequest is the reason for cancelling an e-waybill
type CancelRequest struct {
	ReasonCode string `json:"reason"`
	Remark     string `json:"remark"`
}

// ExtendRequest carries the details the portal asks for when extending validity
type ExtendRequest struct {
	VehicleNo         string `json:"vehicle_no"`
	FromPlace         string `json:"current_place"`
	FromPincode       string `json:"current_pincode"`
	RemainingDistance int    `json:"remaining_distance"`
	ConsignmentStatus string `json:"consignment_status"`
	ReasonCode        string `json:"reason"`
	Remark            string `json:"remark"`
}

// VehicleRequest replaces the vehicle on part-B
type VehicleRequest struct {
	VehicleNo       string `json:"vehicle_no"`
	FromPlace       string `json:"place_of_change"`
	ModeOfTransport string `json:"mode_of_transport"`
	ReasonCode      string `json:"reason"`
	Remark          string `json:"remark"`
}

// TransporterRequest assigns a different transporter
type TransporterRequest struct {
	TransporterID   string `json:"gst_transporter_id"`
	TransporterName string `json:"transporter_name"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func (r *GenerateRequest) normalize() error {
	r.TransporterID = strings.ToUpper(strings.TrimSpace(r.TransporterID))
	if r.TransporterID != "" {
		if err := utils.ValidateGSTIN(r.TransporterID); err != nil {
			return invalid("transporter: %v", err)
		}
	}

	r.VehicleNo = utils.NormalizeVehicleNo(r.VehicleNo)
	if r.VehicleNo != "" {
		if err := utils.ValidateVehicleNo(r.VehicleNo); err != nil {
			return invalid("%v", err)
		}
		if r.ModeOfTransport == "" {
			r.ModeOfTransport = entity.TransportModeRoad
		}
	}
	if r.ModeOfTransport != "" && !entity.IsValidTransportMode(r.ModeOfTransport) {
		return invalid("unknown mode of transport %q", r.ModeOfTransport)
	}

	if r.Distance < 0 || r.Distance > maxDistanceKm {
		return invalid("distance must be between 0 and %d km", maxDistanceKm)
	}
	return nil
}

func (r *CancelRequest) normalize() error {
	if _, ok := entity.CancelReasonLabel(r.ReasonCode); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidReason, r.ReasonCode)
	}
	r.Remark = utils.SanitizeString(strings.TrimSpace(r.Remark))
	return nil
}

func (r *ExtendRequest) normalize() error {
	if _, ok := entity.ExtendReasonLabel(r.ReasonCode); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidReason, r.ReasonCode)
	}
	if r.RemainingDistance <= 0 || r.RemainingDistance > maxDistanceKm {
		return invalid("remaining distance must be between 1 and %d km", maxDistanceKm)
	}

	r.FromPlace = strings.TrimSpace(r.FromPlace)
	if r.FromPlace == "" {
		return invalid("current place is required")
	}
	if err := utils.ValidatePincode(r.FromPincode); err != nil {
		return invalid("%v", err)
	}

	if r.ConsignmentStatus == "" {
		r.ConsignmentStatus = entity.ConsignmentInMovement
	}
	r.VehicleNo = utils.NormalizeVehicleNo(r.VehicleNo)
	switch r.ConsignmentStatus {
	case entity.ConsignmentInMovement:
		if err := utils.ValidateVehicleNo(r.VehicleNo); err != nil {
			return invalid("vehicle is required for a consignment in movement: %v", err)
		}
	case entity.ConsignmentInTransit:
	default:
		return invalid("unknown consignment status %q", r.ConsignmentStatus)
	}

	r.Remark = utils.SanitizeString(strings.TrimSpace(r.Remark))
	return nil
}

func (r *VehicleRequest) normalize() error {
	if _, ok := entity.VehicleReasonLabel(r.ReasonCode); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidReason, r.ReasonCode)
	}
	if r.ModeOfTransport == "" {
		r.ModeOfTransport = entity.TransportModeRoad
	}
	if !entity.IsValidTransportMode(r.ModeOfTransport) {
		return invalid("unknown mode of transport %q", r.ModeOfTransport)
	}

	r.VehicleNo = utils.NormalizeVehicleNo(r.VehicleNo)
	if err := utils.ValidateVehicleNo(r.VehicleNo); err != nil {
		return invalid("%v", err)
	}

	r.FromPlace = strings.TrimSpace(r.FromPlace)
	if r.FromPlace == "" {
		return invalid("place of change is required")
	}
	r.Remark = utils.SanitizeString(strings.TrimSpace(r.Remark))
	return nil
}

func (r *TransporterRequest) normalize() error {
	r.TransporterID = strings.ToUpper(strings.TrimSpace(r.TransporterID))
	if err := utils.ValidateGSTIN(r.TransporterID); err != nil {
		return invalid("transporter: %v", err)
	}
	r.TransporterName = strings.TrimSpace(r.TransporterName)
	return nil
}

func (r ExtendRequest) schedule(number string) *entity.ScheduledExtension {
	return &entity.ScheduledExtension{
		EwaybillNumber:    number,
		VehicleNo:         r.VehicleNo,
		FromPlace:         r.FromPlace,
		FromPincode:       r.FromPincode,
		RemainingDistance: r.RemainingDistance,
		ConsignmentStatus: r.ConsignmentStatus,
		ReasonCode:        r.ReasonCode,
		Remark:            r.Remark,
	}
}

func extendRequestFrom(ext *entity.ScheduledExtension) ExtendRequest {
	return ExtendRequest{
		VehicleNo:         ext.VehicleNo,
		FromPlace:         ext.FromPlace,
		FromPincode:       ext.FromPincode,
		RemainingDistance: ext.RemainingDistance,
		ConsignmentStatus: ext.ConsignmentStatus,
		ReasonCode:        ext.ReasonCode,
		Remark:            ext.Remark,
	}
}
