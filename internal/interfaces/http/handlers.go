package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/application/service"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/domain/ewaybill"
)

const (
	reportDateLayout = "2006-01-02"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Version is reported by the health check
var Version = "1.0.0"

var ist = time.FixedZone("IST", 5*60*60+30*60)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// EwaybillResponse is an e-waybill with the instants its windows turn on
type EwaybillResponse struct {
	*entity.EwaybillRecord
	CancellableUntil      time.Time  `json:"cancellable_until"`
	ExtensionWindowOpens  *time.Time `json:"extension_window_opens_at,omitempty"`
	ExtensionWindowCloses *time.Time `json:"extension_window_closes_at,omitempty"`
	ExtendableByCompany   bool       `json:"extendable"`
}

// ActionsResponse lists what may be done with a transaction's e-waybill now
type ActionsResponse struct {
	DocumentType string   `json:"document_type"`
	Name         string   `json:"name"`
	Actions      []string `json:"actions"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
		},
	})
}

// Evaluate handles POST /api/ewaybill/evaluate
func (h *Handlers) Evaluate(c *gin.Context) {
	var snap entity.TransactionSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		h.badRequest(c, "invalid transaction body", err)
		return
	}

	decision, err := h.services.Ewaybill.EvaluateSnapshot(c.Request.Context(), &snap)
	if err != nil {
		h.fail(c, "Failed to evaluate transaction", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: decision})
}

// SyncTransaction handles PUT /api/transactions
func (h *Handlers) SyncTransaction(c *gin.Context) {
	var snap entity.TransactionSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		h.badRequest(c, "invalid transaction body", err)
		return
	}

	result, err := h.services.Ewaybill.SyncTransaction(c.Request.Context(), &snap)
	if err != nil {
		h.fail(c, "Failed to sync transaction", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// AvailableActions handles GET /api/transactions/:doctype/:name/ewaybill/actions
func (h *Handlers) AvailableActions(c *gin.Context) {
	docType, ok := h.docType(c)
	if !ok {
		return
	}
	name := c.Param("name")

	actions, err := h.services.Ewaybill.AvailableActions(c.Request.Context(), docType, name)
	if err != nil {
		h.fail(c, "Failed to list e-waybill actions", err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    ActionsResponse{DocumentType: docType.String(), Name: name, Actions: actions},
	})
}

// GenerateEwaybill handles POST /api/transactions/:doctype/:name/ewaybill.
// An empty body raises a part-A only e-waybill.
func (h *Handlers) GenerateEwaybill(c *gin.Context) {
	docType, ok := h.docType(c)
	if !ok {
		return
	}

	var req service.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, "invalid generate request", err)
		return
	}

	rec, err := h.services.Ewaybill.Generate(c.Request.Context(), docType, c.Param("name"), req)
	if err != nil {
		h.fail(c, "Failed to generate e-waybill", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: toEwaybillResponse(rec)})
}

// GetEwaybill handles GET /api/ewaybills/:number
func (h *Handlers) GetEwaybill(c *gin.Context) {
	rec, err := h.services.Ewaybill.Get(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.fail(c, "Failed to get e-waybill", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toEwaybillResponse(rec)})
}

// GetHistory handles GET /api/ewaybills/:number/history
func (h *Handlers) GetHistory(c *gin.Context) {
	logs, err := h.services.Ewaybill.History(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.fail(c, "Failed to get e-waybill history", err)
		return
	}
	if logs == nil {
		logs = []*entity.EwaybillLog{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: logs})
}

// CancelEwaybill handles POST /api/ewaybills/:number/cancel
func (h *Handlers) CancelEwaybill(c *gin.Context) {
	var req service.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid cancel request", err)
		return
	}

	rec, err := h.services.Ewaybill.Cancel(c.Request.Context(), c.Param("number"), req)
	if err != nil {
		h.fail(c, "Failed to cancel e-waybill", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toEwaybillResponse(rec)})
}

// ExtendEwaybill handles POST /api/ewaybills/:number/extend
func (h *Handlers) ExtendEwaybill(c *gin.Context) {
	var req service.ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid extend request", err)
		return
	}

	rec, err := h.services.Ewaybill.Extend(c.Request.Context(), c.Param("number"), req)
	if err != nil {
		h.fail(c, "Failed to extend e-waybill", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toEwaybillResponse(rec)})
}

// ScheduleExtension handles POST /api/ewaybills/:number/schedule-extension
func (h *Handlers) ScheduleExtension(c *gin.Context) {
	var req service.ExtendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid extend request", err)
		return
	}

	rec, err := h.services.Ewaybill.ScheduleExtension(c.Request.Context(), c.Param("number"), req)
	if err != nil {
		h.fail(c, "Failed to schedule extension", err)
		return
	}
	c.JSON(http.StatusAccepted, Response{Success: true, Data: toEwaybillResponse(rec)})
}

// UpdateVehicle handles POST /api/ewaybills/:number/vehicle
func (h *Handlers) UpdateVehicle(c *gin.Context) {
	var req service.VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid vehicle request", err)
		return
	}

	rec, err := h.services.Ewaybill.UpdateVehicle(c.Request.Context(), c.Param("number"), req)
	if err != nil {
		h.fail(c, "Failed to update vehicle", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toEwaybillResponse(rec)})
}

// UpdateTransporter handles POST /api/ewaybills/:number/transporter
func (h *Handlers) UpdateTransporter(c *gin.Context) {
	var req service.TransporterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid transporter request", err)
		return
	}

	rec, err := h.services.Ewaybill.UpdateTransporter(c.Request.Context(), c.Param("number"), req)
	if err != nil {
		h.fail(c, "Failed to update transporter", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toEwaybillResponse(rec)})
}

// GetSettings handles GET /api/settings
func (h *Handlers) GetSettings(c *gin.Context) {
	settings, err := h.services.Settings.Get(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to get settings", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: settings})
}

// UpdateSettings handles PUT /api/settings
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var settings entity.ComplianceSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		h.badRequest(c, "invalid settings body", err)
		return
	}

	if err := h.services.Settings.Update(c.Request.Context(), &settings); err != nil {
		h.fail(c, "Failed to update settings", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: settings})
}

// DownloadRegister handles GET /api/reports/ewaybill-register?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Both dates are IST calendar days and to is inclusive.
func (h *Handlers) DownloadRegister(c *gin.Context) {
	from, err := time.ParseInLocation(reportDateLayout, c.Query("from"), ist)
	if err != nil {
		h.badRequest(c, "from must be a date like 2024-03-01", err)
		return
	}
	to, err := time.ParseInLocation(reportDateLayout, c.Query("to"), ist)
	if err != nil {
		h.badRequest(c, "to must be a date like 2024-03-31", err)
		return
	}

	reg, err := h.services.Reports.BuildRegister(c.Request.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		h.fail(c, "Failed to build e-waybill register", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, path.Base(reg.Path)))
	c.Data(http.StatusOK, xlsxContentType, reg.Content)
}

// ListRegisters handles GET /api/reports/ewaybill-registers
func (h *Handlers) ListRegisters(c *gin.Context) {
	names, err := h.services.Reports.ListRegisters(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list registers", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: names})
}

// docType reads the :doctype path parameter. It accepts the display name
// ("Sales Invoice") and the slug form ("sales-invoice").
func (h *Handlers) docType(c *gin.Context) (entity.DocumentType, bool) {
	raw := c.Param("doctype")
	docType := entity.DocumentType(raw)
	if !docType.IsValid() {
		docType = fromSlug(raw)
	}
	if !docType.IsValid() {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   fmt.Sprintf("unsupported document type %q", raw),
		})
		return "", false
	}
	return docType, true
}

func fromSlug(slug string) entity.DocumentType {
	words := strings.Split(strings.ToLower(slug), "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return entity.DocumentType(strings.Join(words, " "))
}

func (h *Handlers) badRequest(c *gin.Context, message string, err error) {
	h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   message,
	})
}

func (h *Handlers) fail(c *gin.Context, logMsg string, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(logMsg, "path", c.FullPath(), "error", err)
		message = "internal error"
	}
	c.JSON(status, Response{
		Success: false,
		Error:   message,
	})
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrInvalidReason):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyGenerated), errors.Is(err, service.ErrActionNotAllowed):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotApplicable), errors.Is(err, service.ErrNotSubmitted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, port.ErrAPIRejected):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrAPIUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func toEwaybillResponse(rec *entity.EwaybillRecord) EwaybillResponse {
	resp := EwaybillResponse{
		EwaybillRecord:      rec,
		CancellableUntil:    rec.CreatedOn.Add(ewaybill.CancellationWindow),
		ExtendableByCompany: ewaybill.CanExtend(rec, rec.CompanyGSTIN),
	}
	if opens, ok := ewaybill.ExtensionWindowOpensAt(rec); ok {
		closes := rec.ValidUpto.Add(ewaybill.ExtensionMargin)
		resp.ExtensionWindowOpens = &opens
		resp.ExtensionWindowCloses = &closes
	}
	return resp
}
