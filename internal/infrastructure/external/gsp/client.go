// Package gsp reaches the e-Waybill portal through a GST Suvidha Provider JSON API
package gsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	pathGenerate          = "/ewaybillapi/v1.03/ewayapi/genewaybill"
	pathCancel            = "/ewaybillapi/v1.03/ewayapi/canewb"
	pathExtend            = "/ewaybillapi/v1.03/ewayapi/extendvalidity"
	pathUpdateVehicle     = "/ewaybillapi/v1.03/ewayapi/vehewb"
	pathUpdateTransporter = "/ewaybillapi/v1.03/ewayapi/updatetransporter"

	maxResponseBytes = 1 << 20
)

// Config holds GSP connection settings
type Config struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	Timeout  time.Duration
}

// APIError is a non-success reply from the GSP or the portal behind it
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gsp request %s failed (status %d): %s", e.RequestID, e.StatusCode, e.Message)
}

// Unwrap lets callers match port.ErrAPIRejected
func (e *APIError) Unwrap() error {
	return port.ErrAPIRejected
}

// Client implements port.EwaybillAPI over HTTP
type Client struct {
	cfg        Config
	httpClient *http.Client
	newID      func() string
	logger     *zap.Logger
}

// NewClient creates a new GSP client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		newID:      uuid.NewString,
		logger:     logger,
	}
}

// Generate raises a new e-Waybill for the transaction
func (c *Client) Generate(ctx context.Context, req port.GenerateEwaybillRequest) (*port.EwaybillAPIResult, error) {
	snap := req.Snapshot
	if snap == nil {
		return nil, fmt.Errorf("generate: snapshot is required")
	}

	payload := generatePayload{
		DocNo:         snap.Name,
		DocDate:       snap.PostingDate.In(ist).Format(portalDateLayout),
		TotInvValue:   snap.BaseGrandTotal.Abs().StringFixed(2),
		TransporterID: req.TransporterID,
		TransName:     req.TransporterName,
		TransMode:     req.ModeOfTransport,
		TransDistance: strconv.Itoa(req.Distance),
		VehicleNo:     req.VehicleNo,
	}
	payload.SupplyType, payload.DocType = supplyAndDocType(snap.DocumentType)
	if payload.SupplyType == "I" {
		payload.FromGSTIN, payload.ToGSTIN = snap.PartyGSTIN, snap.CompanyGSTIN
	} else {
		payload.FromGSTIN, payload.ToGSTIN = snap.CompanyGSTIN, snap.PartyGSTIN
	}
	if payload.ToGSTIN == "" {
		payload.ToGSTIN = "URP"
	}
	for _, item := range snap.Items {
		payload.ItemList = append(payload.ItemList, itemPayload{HSNCode: item.HSNCode, Quantity: item.Qty})
	}

	reply, requestID, err := c.post(ctx, pathGenerate, snap.CompanyGSTIN, payload)
	if err != nil {
		return nil, err
	}

	result := &port.EwaybillAPIResult{Number: strconv.FormatInt(reply.EwayBillNo, 10), RequestID: requestID}
	if err := fillTimes(result, reply.EwayBillDate, reply.ValidUpto); err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel cancels an e-Waybill
func (c *Client) Cancel(ctx context.Context, req port.CancelEwaybillRequest) (*port.EwaybillAPIResult, error) {
	code, err := strconv.Atoi(req.ReasonCode)
	if err != nil {
		return nil, fmt.Errorf("cancel: invalid reason code %q", req.ReasonCode)
	}

	reply, requestID, err := c.post(ctx, pathCancel, req.CompanyGSTIN, cancelPayload{
		EwbNo:         req.Number,
		CancelRsnCode: code,
		CancelRmrk:    req.Remark,
	})
	if err != nil {
		return nil, err
	}

	result := &port.EwaybillAPIResult{Number: req.Number, RequestID: requestID}
	if err := fillTimes(result, reply.CancelDate, ""); err != nil {
		return nil, err
	}
	return result, nil
}

// Extend extends the validity of an e-Waybill
func (c *Client) Extend(ctx context.Context, req port.ExtendEwaybillRequest) (*port.EwaybillAPIResult, error) {
	code, err := strconv.Atoi(req.ReasonCode)
	if err != nil {
		return nil, fmt.Errorf("extend: invalid reason code %q", req.ReasonCode)
	}

	reply, requestID, err := c.post(ctx, pathExtend, req.CompanyGSTIN, extendPayload{
		EwbNo:             req.Number,
		VehicleNo:         req.VehicleNo,
		FromPlace:         req.FromPlace,
		FromPincode:       req.FromPincode,
		RemainingDistance: req.RemainingDistance,
		ConsignmentStatus: req.ConsignmentStatus,
		ExtnRsnCode:       code,
		ExtnRemarks:       req.Remark,
	})
	if err != nil {
		return nil, err
	}

	result := &port.EwaybillAPIResult{Number: req.Number, RequestID: requestID}
	if err := fillTimes(result, reply.UpdatedDate, reply.ValidUpto); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateVehicle replaces part-B vehicle details
func (c *Client) UpdateVehicle(ctx context.Context, req port.UpdateVehicleRequest) (*port.EwaybillAPIResult, error) {
	reply, requestID, err := c.post(ctx, pathUpdateVehicle, req.CompanyGSTIN, vehiclePayload{
		EwbNo:      req.Number,
		VehicleNo:  req.VehicleNo,
		FromPlace:  req.FromPlace,
		TransMode:  req.ModeOfTransport,
		ReasonCode: req.ReasonCode,
		ReasonRem:  req.Remark,
	})
	if err != nil {
		return nil, err
	}

	result := &port.EwaybillAPIResult{Number: req.Number, RequestID: requestID}
	if err := fillTimes(result, reply.VehUpdDate, reply.ValidUpto); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateTransporter assigns a new transporter
func (c *Client) UpdateTransporter(ctx context.Context, req port.UpdateTransporterRequest) (*port.EwaybillAPIResult, error) {
	reply, requestID, err := c.post(ctx, pathUpdateTransporter, req.CompanyGSTIN, transporterPayload{
		EwbNo:         req.Number,
		TransporterID: req.TransporterID,
	})
	if err != nil {
		return nil, err
	}

	result := &port.EwaybillAPIResult{Number: req.Number, RequestID: requestID}
	if err := fillTimes(result, reply.TransUpdateDate, ""); err != nil {
		return nil, err
	}
	return result, nil
}

// post sends payload and decodes the envelope. Every call carries a fresh request id.
func (c *Client) post(ctx context.Context, path, gstin string, payload interface{}) (*portalReply, string, error) {
	requestID := c.newID()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, requestID, fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, requestID, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("requestid", requestID)
	httpReq.Header.Set("gstin", gstin)
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	}
	if c.cfg.Username != "" {
		httpReq.Header.Set("username", c.cfg.Username)
		httpReq.Header.Set("password", c.cfg.Password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("GSP request failed",
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, requestID, fmt.Errorf("gsp request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, requestID, fmt.Errorf("failed to read gsp response: %w", err)
	}

	c.logger.Info("GSP request completed",
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, requestID, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw)), RequestID: requestID}
		}
		return nil, requestID, fmt.Errorf("failed to decode gsp response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, requestID, &APIError{StatusCode: resp.StatusCode, Message: msg, RequestID: requestID}
	}

	return &env.Result, requestID, nil
}

func supplyAndDocType(dt entity.DocumentType) (supplyType, docType string) {
	switch dt {
	case entity.DocTypeSalesInvoice:
		return "O", "INV"
	case entity.DocTypeDeliveryNote:
		return "O", "CHL"
	case entity.DocTypePurchaseInvoice:
		return "I", "INV"
	default:
		return "I", "CHL"
	}
}

func fillTimes(result *port.EwaybillAPIResult, date, validUpto string) error {
	if t, ok, err := parsePortalTime(date); err != nil {
		return err
	} else if ok {
		result.Date = t
	}
	if t, ok, err := parsePortalTime(validUpto); err != nil {
		return err
	} else if ok {
		result.ValidUpto = &t
	}
	return nil
}

var _ port.EwaybillAPI = (*Client)(nil)
