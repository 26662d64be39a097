package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/domain/event"
	"github.com/garyjia/gst-compliance/internal/domain/ewaybill"
	"github.com/garyjia/gst-compliance/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SyncResult is the outcome of storing a transaction pushed by the host system
type SyncResult struct {
	Decision          ewaybill.Decision      `json:"decision"`
	Ewaybill          *entity.EwaybillRecord `json:"ewaybill,omitempty"`
	AutoGenerateError string                 `json:"auto_generate_error,omitempty"`
}

// EwaybillService drives e-waybill applicability and lifecycle actions
type EwaybillService interface {
	Evaluate(ctx context.Context, docType entity.DocumentType, name string) (*ewaybill.Decision, error)
	EvaluateSnapshot(ctx context.Context, snap *entity.TransactionSnapshot) (*ewaybill.Decision, error)
	AvailableActions(ctx context.Context, docType entity.DocumentType, name string) ([]string, error)
	SyncTransaction(ctx context.Context, snap *entity.TransactionSnapshot) (*SyncResult, error)

	Generate(ctx context.Context, docType entity.DocumentType, name string, req GenerateRequest) (*entity.EwaybillRecord, error)
	AutoGenerate(ctx context.Context, docType entity.DocumentType, name string) (*entity.EwaybillRecord, error)

	Get(ctx context.Context, number string) (*entity.EwaybillRecord, error)
	History(ctx context.Context, number string) ([]*entity.EwaybillLog, error)

	Cancel(ctx context.Context, number string, req CancelRequest) (*entity.EwaybillRecord, error)
	Extend(ctx context.Context, number string, req ExtendRequest) (*entity.EwaybillRecord, error)
	ScheduleExtension(ctx context.Context, number string, req ExtendRequest) (*entity.EwaybillRecord, error)
	RunScheduledExtension(ctx context.Context, number string) (*entity.EwaybillRecord, error)
	UpdateVehicle(ctx context.Context, number string, req VehicleRequest) (*entity.EwaybillRecord, error)
	UpdateTransporter(ctx context.Context, number string, req TransporterRequest) (*entity.EwaybillRecord, error)

	NotifyExtensionWindow(ctx context.Context, number string) error
	MarkExpired(ctx context.Context, number string) (*entity.EwaybillRecord, error)
}

// EwaybillRepositories groups the stores the e-waybill service reads and writes
type EwaybillRepositories struct {
	Transactions port.TransactionRepository
	Ewaybills    port.EwaybillRepository
	Logs         port.EwaybillLogRepository
	Schedules    port.ScheduledExtensionRepository
}

type ewaybillServiceImpl struct {
	repos     EwaybillRepositories
	txManager port.TransactionManager
	settings  SettingsService
	api       port.EwaybillAPI
	sandbox   port.EwaybillAPI
	events    port.EventPublisher
	clock     port.Clock
	logger    Logger
}

// NewEwaybillService creates a new EwaybillService.
// api may be nil, in which case only sandbox mode works.
func NewEwaybillService(
	repos EwaybillRepositories,
	txManager port.TransactionManager,
	settings SettingsService,
	api port.EwaybillAPI,
	sandbox port.EwaybillAPI,
	events port.EventPublisher,
	clock port.Clock,
	logger Logger,
) EwaybillService {
	return &ewaybillServiceImpl{
		repos:     repos,
		txManager: txManager,
		settings:  settings,
		api:       api,
		sandbox:   sandbox,
		events:    events,
		clock:     clock,
		logger:    logger,
	}
}

// Evaluate runs the applicability rules against a stored transaction
func (s *ewaybillServiceImpl) Evaluate(ctx context.Context, docType entity.DocumentType, name string) (*ewaybill.Decision, error) {
	snap, err := s.loadTransaction(ctx, docType, name)
	if err != nil {
		return nil, err
	}
	return s.EvaluateSnapshot(ctx, snap)
}

// EvaluateSnapshot runs the applicability rules against a snapshot without storing it
func (s *ewaybillServiceImpl) EvaluateSnapshot(ctx context.Context, snap *entity.TransactionSnapshot) (*ewaybill.Decision, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	d := ewaybill.Evaluate(snap, *settings)
	return &d, nil
}

// AvailableActions lists what the user may do with the transaction's e-waybill right now
func (s *ewaybillServiceImpl) AvailableActions(ctx context.Context, docType entity.DocumentType, name string) ([]string, error) {
	snap, err := s.loadTransaction(ctx, docType, name)
	if err != nil {
		return nil, err
	}

	rec, err := s.repos.Ewaybills.GetActiveByDocument(ctx, docType, name)
	if err != nil {
		return nil, fmt.Errorf("get active e-waybill: %w", err)
	}

	actions := []string{}
	if rec == nil {
		if snap.EwaybillNumber != "" || !snap.IsSubmitted() {
			return actions, nil
		}
		settings, err := s.settings.Get(ctx)
		if err != nil {
			return nil, err
		}
		if ewaybill.IsGeneratableUsingAPI(snap, *settings) {
			actions = append(actions, entity.ActionGenerate)
		}
		return actions, nil
	}

	now := s.clock.Now()
	for _, trigger := range workflow.NewLifecycle(rec, rec.CompanyGSTIN, now).PermittedTriggers(ctx) {
		// expiry is the monitor's job
		if trigger == workflow.TriggerExpire {
			continue
		}
		actions = append(actions, trigger.String())
	}
	if canSchedule(rec, now) == nil {
		actions = append(actions, entity.ActionScheduleExtension)
	}
	return actions, nil
}

// SyncTransaction stores a snapshot pushed by the host system and auto-generates
// the e-waybill for submitted documents. An auto-generation failure does not fail the sync.
func (s *ewaybillServiceImpl) SyncTransaction(ctx context.Context, snap *entity.TransactionSnapshot) (*SyncResult, error) {
	if snap == nil {
		return nil, invalid("transaction is required")
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	existing, err := s.repos.Transactions.Get(ctx, snap.DocumentType, snap.Name)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	// the host may not know the number yet
	if existing != nil && snap.EwaybillNumber == "" {
		snap.EwaybillNumber = existing.EwaybillNumber
	}
	snap.UpdatedAt = s.clock.Now()

	if err := s.repos.Transactions.Upsert(ctx, snap); err != nil {
		s.logger.Error("Failed to store transaction", "error", err, "document_type", snap.DocumentType, "name", snap.Name)
		return nil, fmt.Errorf("upsert transaction: %w", err)
	}

	decision, err := s.EvaluateSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	result := &SyncResult{Decision: *decision}

	if snap.IsSubmitted() && decision.AutoGenerate {
		rec, err := s.AutoGenerate(ctx, snap.DocumentType, snap.Name)
		if err != nil {
			result.AutoGenerateError = err.Error()
		}
		result.Ewaybill = rec
	}
	return result, nil
}

// Generate raises an e-waybill for a submitted transaction
func (s *ewaybillServiceImpl) Generate(ctx context.Context, docType entity.DocumentType, name string, req GenerateRequest) (*entity.EwaybillRecord, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	snap, err := s.loadTransaction(ctx, docType, name)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkGeneratable(ctx, snap, *settings); err != nil {
		return nil, err
	}

	return s.generate(ctx, snap, *settings, req, entity.ActionGenerate)
}

// AutoGenerate raises the e-waybill on submit when the rules call for it.
// It returns nil, nil when auto-generation does not apply.
func (s *ewaybillServiceImpl) AutoGenerate(ctx context.Context, docType entity.DocumentType, name string) (*entity.EwaybillRecord, error) {
	snap, err := s.loadTransaction(ctx, docType, name)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	if !snap.IsSubmitted() || !ewaybill.ShouldAutoGenerate(snap, *settings) {
		return nil, nil
	}
	if err := s.checkGeneratable(ctx, snap, *settings); err != nil {
		if errors.Is(err, ErrAlreadyGenerated) {
			return nil, nil
		}
		return nil, err
	}

	s.logger.Info("Auto-generating e-waybill", "document_type", docType, "name", name)
	return s.generate(ctx, snap, *settings, GenerateRequest{}, entity.ActionGenerate)
}

func (s *ewaybillServiceImpl) checkGeneratable(ctx context.Context, snap *entity.TransactionSnapshot, settings entity.ComplianceSettings) error {
	if !snap.IsSubmitted() {
		return fmt.Errorf("%w: %s %s", ErrNotSubmitted, snap.DocumentType, snap.Name)
	}

	if snap.EwaybillNumber != "" {
		return fmt.Errorf("%w: %s carries %s", ErrAlreadyGenerated, snap.Name, snap.EwaybillNumber)
	}
	active, err := s.repos.Ewaybills.GetActiveByDocument(ctx, snap.DocumentType, snap.Name)
	if err != nil {
		return fmt.Errorf("get active e-waybill: %w", err)
	}
	if active != nil {
		return fmt.Errorf("%w: %s carries %s", ErrAlreadyGenerated, snap.Name, active.Number)
	}

	if !ewaybill.IsApplicable(snap, settings) {
		return fmt.Errorf("%w: %s %s", ErrNotApplicable, snap.DocumentType, snap.Name)
	}
	if !ewaybill.IsGeneratableUsingAPI(snap, settings) {
		return fmt.Errorf("%w: %s %s cannot be generated using the API", ErrNotApplicable, snap.DocumentType, snap.Name)
	}
	return nil
}

func (s *ewaybillServiceImpl) generate(ctx context.Context, snap *entity.TransactionSnapshot, settings entity.ComplianceSettings, req GenerateRequest, action string) (*entity.EwaybillRecord, error) {
	api, err := s.apiFor(settings.SandboxMode)
	if err != nil {
		return nil, err
	}

	if err := workflow.NewLifecycle(nil, snap.CompanyGSTIN, s.clock.Now()).Fire(ctx, workflow.TriggerGenerate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActionNotAllowed, err)
	}

	result, err := api.Generate(ctx, port.GenerateEwaybillRequest{
		Snapshot:        snap,
		TransporterID:   req.TransporterID,
		TransporterName: req.TransporterName,
		VehicleNo:       req.VehicleNo,
		ModeOfTransport: req.ModeOfTransport,
		Distance:        req.Distance,
	})
	if err != nil {
		s.logger.Error("E-waybill generation failed", "error", err, "document_type", snap.DocumentType, "name", snap.Name)
		return nil, fmt.Errorf("generate e-waybill: %w", err)
	}

	now := s.clock.Now()
	createdOn := result.Date
	if createdOn.IsZero() {
		createdOn = now
	}
	rec := &entity.EwaybillRecord{
		Number:                   result.Number,
		DocumentType:             snap.DocumentType,
		DocumentName:             snap.Name,
		CompanyGSTIN:             snap.CompanyGSTIN,
		CreatedOn:                createdOn,
		ValidUpto:                result.ValidUpto,
		TransporterID:            req.TransporterID,
		TransporterName:          req.TransporterName,
		VehicleNo:                req.VehicleNo,
		Distance:                 req.Distance,
		IsGeneratedInSandboxMode: result.Sandbox,
		Status:                   entity.EwaybillStatusGenerated,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repos.Ewaybills.Create(txCtx, rec); err != nil {
			return fmt.Errorf("create e-waybill: %w", err)
		}
		if err := s.repos.Transactions.SetEwaybillNumber(txCtx, snap.DocumentType, snap.Name, rec.Number); err != nil {
			return fmt.Errorf("set e-waybill number: %w", err)
		}
		return s.writeLog(txCtx, rec, action, entity.EwaybillStatusNonExistent, "", "", result, now)
	})
	if err != nil {
		// the number is already issued by the portal at this point
		s.logger.Error("Failed to persist generated e-waybill", "error", err, "ewaybill_number", result.Number, "name", snap.Name)
		return nil, err
	}

	s.logger.Info("E-waybill generated",
		"ewaybill_number", rec.Number,
		"document_type", snap.DocumentType,
		"name", snap.Name,
		"sandbox", rec.IsGeneratedInSandboxMode)
	s.publish(ctx, event.TypeEwaybillGenerated, rec, now, map[string]interface{}{
		"valid_upto": rec.ValidUpto,
		"sandbox":    rec.IsGeneratedInSandboxMode,
	})
	return rec, nil
}

// Get returns an e-waybill by number
func (s *ewaybillServiceImpl) Get(ctx context.Context, number string) (*entity.EwaybillRecord, error) {
	return s.loadEwaybill(ctx, number)
}

// History returns the audit trail of an e-waybill
func (s *ewaybillServiceImpl) History(ctx context.Context, number string) ([]*entity.EwaybillLog, error) {
	if _, err := s.loadEwaybill(ctx, number); err != nil {
		return nil, err
	}
	logs, err := s.repos.Logs.GetByEwaybillNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("get e-waybill logs: %w", err)
	}
	return logs, nil
}

// Cancel cancels an e-waybill within 24 hours of generation
func (s *ewaybillServiceImpl) Cancel(ctx context.Context, number string, req CancelRequest) (*entity.EwaybillRecord, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	rec, err := s.loadEwaybill(ctx, number)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.guard(ctx, rec, workflow.TriggerCancel, now); err != nil {
		return nil, err
	}

	api, err := s.apiFor(rec.IsGeneratedInSandboxMode)
	if err != nil {
		return nil, err
	}
	result, err := api.Cancel(ctx, port.CancelEwaybillRequest{
		CompanyGSTIN: rec.CompanyGSTIN,
		Number:       rec.Number,
		ReasonCode:   req.ReasonCode,
		Remark:       req.Remark,
	})
	if err != nil {
		s.logger.Error("E-waybill cancellation failed", "error", err, "ewaybill_number", number)
		return nil, fmt.Errorf("cancel e-waybill: %w", err)
	}

	cancelledOn := result.Date
	if cancelledOn.IsZero() {
		cancelledOn = now
	}
	previous := rec.Status
	rec.Status = entity.EwaybillStatusCancelled
	rec.CancelledOn = &cancelledOn
	rec.ExtensionScheduled = false

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repos.Ewaybills.Update(txCtx, rec); err != nil {
			return fmt.Errorf("update e-waybill: %w", err)
		}
		if err := s.repos.Schedules.Delete(txCtx, rec.Number); err != nil {
			return err
		}
		if err := s.repos.Transactions.SetEwaybillNumber(txCtx, rec.DocumentType, rec.DocumentName, ""); err != nil {
			return fmt.Errorf("clear e-waybill number: %w", err)
		}
		return s.writeLog(txCtx, rec, entity.ActionCancel, previous, req.ReasonCode, req.Remark, result, now)
	})
	if err != nil {
		s.logger.Error("Failed to persist cancellation", "error", err, "ewaybill_number", number)
		return nil, err
	}

	s.logger.Info("E-waybill cancelled", "ewaybill_number", number, "reason", req.ReasonCode)
	s.publish(ctx, event.TypeEwaybillCancelled, rec, now, map[string]interface{}{
		"reason": req.ReasonCode,
		"remark": req.Remark,
	})
	return rec, nil
}

// Extend extends validity inside the extension window. The number stays the same.
func (s *ewaybillServiceImpl) Extend(ctx context.Context, number string, req ExtendRequest) (*entity.EwaybillRecord, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	rec, err := s.loadEwaybill(ctx, number)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.guard(ctx, rec, workflow.TriggerExtend, now); err != nil {
		return nil, err
	}

	api, err := s.apiFor(rec.IsGeneratedInSandboxMode)
	if err != nil {
		return nil, err
	}
	result, err := api.Extend(ctx, port.ExtendEwaybillRequest{
		CompanyGSTIN:      rec.CompanyGSTIN,
		Number:            rec.Number,
		VehicleNo:         req.VehicleNo,
		FromPlace:         req.FromPlace,
		FromPincode:       req.FromPincode,
		RemainingDistance: req.RemainingDistance,
		ConsignmentStatus: req.ConsignmentStatus,
		ReasonCode:        req.ReasonCode,
		Remark:            req.Remark,
	})
	if err != nil {
		s.logger.Error("E-waybill extension failed", "error", err, "ewaybill_number", number)
		return nil, fmt.Errorf("extend e-waybill: %w", err)
	}

	previous := rec.Status
	if result.ValidUpto != nil {
		rec.ValidUpto = result.ValidUpto
	}
	if req.VehicleNo != "" {
		rec.VehicleNo = req.VehicleNo
	}
	rec.ExtensionScheduled = false
	rec.ExpiryNotifiedAt = nil

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repos.Ewaybills.Update(txCtx, rec); err != nil {
			return fmt.Errorf("update e-waybill: %w", err)
		}
		if err := s.repos.Schedules.Delete(txCtx, rec.Number); err != nil {
			return err
		}
		return s.writeLog(txCtx, rec, entity.ActionExtend, previous, req.ReasonCode, req.Remark, result, now)
	})
	if err != nil {
		s.logger.Error("Failed to persist extension", "error", err, "ewaybill_number", number)
		return nil, err
	}

	s.logger.Info("E-waybill extended", "ewaybill_number", number, "valid_upto", rec.ValidUpto)
	s.publish(ctx, event.TypeEwaybillExtended, rec, now, map[string]interface{}{
		"valid_upto": rec.ValidUpto,
		"reason":     req.ReasonCode,
	})
	return rec, nil
}

// ScheduleExtension stores extend details ahead of the extension window.
// Scheduling again replaces the earlier details.
func (s *ewaybillServiceImpl) ScheduleExtension(ctx context.Context, number string, req ExtendRequest) (*entity.EwaybillRecord, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	rec, err := s.loadEwaybill(ctx, number)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := canSchedule(rec, now); err != nil {
		return nil, err
	}

	ext := req.schedule(rec.Number)
	ext.ScheduledAt = now
	rec.ExtensionScheduled = true

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repos.Schedules.Save(txCtx, ext); err != nil {
			return err
		}
		if err := s.repos.Ewaybills.Update(txCtx, rec); err != nil {
			return fmt.Errorf("update e-waybill: %w", err)
		}
		return s.writeLog(txCtx, rec, entity.ActionScheduleExtension, rec.Status, req.ReasonCode, req.Remark, nil, now)
	})
	if err != nil {
		s.logger.Error("Failed to schedule extension", "error", err, "ewaybill_number", number)
		return nil, err
	}

	opens, _ := ewaybill.ExtensionWindowOpensAt(rec)
	s.logger.Info("E-waybill extension scheduled", "ewaybill_number", number, "window_opens_at", opens)
	s.publish(ctx, event.TypeExtensionScheduled, rec, now, map[string]interface{}{
		"window_opens_at": opens,
	})
	return rec, nil
}

// RunScheduledExtension submits a stored schedule. A portal rejection, an invalid
// request or a refusal that cannot clear by waiting drops the schedule; other
// failures leave it for the next attempt.
func (s *ewaybillServiceImpl) RunScheduledExtension(ctx context.Context, number string) (*entity.EwaybillRecord, error) {
	ext, err := s.repos.Schedules.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, fmt.Errorf("%w: no extension scheduled for %s", ErrNotFound, number)
	}

	rec, err := s.Extend(ctx, number, extendRequestFrom(ext))
	if err == nil {
		return rec, nil
	}

	s.logger.Error("Scheduled extension failed", "error", err, "ewaybill_number", number)
	failed, loadErr := s.loadEwaybill(ctx, number)
	if loadErr != nil {
		return nil, err
	}
	s.publish(ctx, event.TypeScheduledExtensionFailed, failed, s.clock.Now(), map[string]interface{}{
		"error": err.Error(),
	})

	if scheduleIsDead(failed, err, s.clock.Now()) {
		failed.ExtensionScheduled = false
		unscheduleErr := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := s.repos.Schedules.Delete(txCtx, number); err != nil {
				return err
			}
			return s.repos.Ewaybills.Update(txCtx, failed)
		})
		if unscheduleErr != nil {
			s.logger.Error("Failed to drop rejected schedule", "error", unscheduleErr, "ewaybill_number", number)
		}
	}
	return nil, err
}

// UpdateVehicle replaces the vehicle on part-B while the e-waybill is valid
func (s *ewaybillServiceImpl) UpdateVehicle(ctx context.Context, number string, req VehicleRequest) (*entity.EwaybillRecord, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	rec, err := s.loadEwaybill(ctx, number)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.guard(ctx, rec, workflow.TriggerUpdateVehicle, now); err != nil {
		return nil, err
	}

	api, err := s.apiFor(rec.IsGeneratedInSandboxMode)
	if err != nil {
		return nil, err
	}
	result, err := api.UpdateVehicle(ctx, port.UpdateVehicleRequest{
		CompanyGSTIN:    rec.CompanyGSTIN,
		Number:          rec.Number,
		VehicleNo:       req.VehicleNo,
		FromPlace:       req.FromPlace,
		ModeOfTransport: req.ModeOfTransport,
		ReasonCode:      req.ReasonCode,
		Remark:          req.Remark,
		Distance:        rec.Distance,
		FirstVehicle:    rec.ValidUpto == nil,
	})
	if err != nil {
		s.logger.Error("Vehicle update failed", "error", err, "ewaybill_number", number)
		return nil, fmt.Errorf("update vehicle: %w", err)
	}

	rec.VehicleNo = req.VehicleNo
	// a part-A only e-waybill gets its validity with the first vehicle
	if result.ValidUpto != nil {
		rec.ValidUpto = result.ValidUpto
	}

	if err := s.persistUpdate(ctx, rec, entity.ActionUpdateVehicle, req.ReasonCode, req.Remark, result, now); err != nil {
		return nil, err
	}

	s.logger.Info("E-waybill vehicle updated", "ewaybill_number", number, "vehicle_no", req.VehicleNo)
	s.publish(ctx, event.TypeVehicleUpdated, rec, now, map[string]interface{}{
		"vehicle_no": req.VehicleNo,
		"reason":     req.ReasonCode,
	})
	return rec, nil
}

// UpdateTransporter assigns a different transporter while the e-waybill is valid
func (s *ewaybillServiceImpl) UpdateTransporter(ctx context.Context, number string, req TransporterRequest) (*entity.EwaybillRecord, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	rec, err := s.loadEwaybill(ctx, number)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.guard(ctx, rec, workflow.TriggerUpdateTransporter, now); err != nil {
		return nil, err
	}

	api, err := s.apiFor(rec.IsGeneratedInSandboxMode)
	if err != nil {
		return nil, err
	}
	result, err := api.UpdateTransporter(ctx, port.UpdateTransporterRequest{
		CompanyGSTIN:    rec.CompanyGSTIN,
		Number:          rec.Number,
		TransporterID:   req.TransporterID,
		TransporterName: req.TransporterName,
	})
	if err != nil {
		s.logger.Error("Transporter update failed", "error", err, "ewaybill_number", number)
		return nil, fmt.Errorf("update transporter: %w", err)
	}

	rec.TransporterID = req.TransporterID
	rec.TransporterName = req.TransporterName
	// the company's own GSTIN as transporter rules out any pending extension
	unschedule := rec.ExtensionScheduled && !ewaybill.CanExtend(rec, rec.CompanyGSTIN)
	if unschedule {
		rec.ExtensionScheduled = false
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repos.Ewaybills.Update(txCtx, rec); err != nil {
			return fmt.Errorf("update e-waybill: %w", err)
		}
		if unschedule {
			if err := s.repos.Schedules.Delete(txCtx, rec.Number); err != nil {
				return err
			}
		}
		return s.writeLog(txCtx, rec, entity.ActionUpdateTransporter, rec.Status, "", "", result, now)
	})
	if err != nil {
		s.logger.Error("Failed to persist e-waybill update", "error", err, "ewaybill_number", number, "action", entity.ActionUpdateTransporter)
		return nil, err
	}

	s.logger.Info("E-waybill transporter updated", "ewaybill_number", number, "transporter_id", req.TransporterID)
	s.publish(ctx, event.TypeTransporterUpdated, rec, now, map[string]interface{}{
		"transporter_id":        req.TransporterID,
		"extension_unscheduled": unschedule,
	})
	return rec, nil
}

// NotifyExtensionWindow announces once that the extension window is open.
// It is a no-op outside the window or when the notice already went out.
func (s *ewaybillServiceImpl) NotifyExtensionWindow(ctx context.Context, number string) error {
	rec, err := s.loadEwaybill(ctx, number)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	if !rec.IsActive() || rec.ExpiryNotifiedAt != nil || !ewaybill.CanExtendNow(rec, now) {
		return nil
	}

	rec.ExpiryNotifiedAt = &now
	if err := s.repos.Ewaybills.Update(ctx, rec); err != nil {
		return fmt.Errorf("update e-waybill: %w", err)
	}

	s.publish(ctx, event.TypeExtensionWindowOpened, rec, now, map[string]interface{}{
		"valid_upto":          rec.ValidUpto,
		"window_closes_at":    rec.ValidUpto.Add(ewaybill.ExtensionMargin),
		"can_extend":          ewaybill.CanExtend(rec, rec.CompanyGSTIN),
		"extension_scheduled": rec.ExtensionScheduled,
	})
	return nil
}

// MarkExpired moves an e-waybill whose extension window has closed to EXPIRED
func (s *ewaybillServiceImpl) MarkExpired(ctx context.Context, number string) (*entity.EwaybillRecord, error) {
	rec, err := s.loadEwaybill(ctx, number)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.guard(ctx, rec, workflow.TriggerExpire, now); err != nil {
		return nil, err
	}

	previous := rec.Status
	rec.Status = entity.EwaybillStatusExpired
	rec.ExtensionScheduled = false

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repos.Ewaybills.Update(txCtx, rec); err != nil {
			return fmt.Errorf("update e-waybill: %w", err)
		}
		if err := s.repos.Schedules.Delete(txCtx, rec.Number); err != nil {
			return err
		}
		return s.writeLog(txCtx, rec, entity.ActionExpire, previous, "", "", nil, now)
	})
	if err != nil {
		s.logger.Error("Failed to mark e-waybill expired", "error", err, "ewaybill_number", number)
		return nil, err
	}

	s.logger.Info("E-waybill expired", "ewaybill_number", number)
	s.publish(ctx, event.TypeEwaybillExpired, rec, now, map[string]interface{}{
		"valid_upto": rec.ValidUpto,
	})
	return rec, nil
}

func (s *ewaybillServiceImpl) persistUpdate(ctx context.Context, rec *entity.EwaybillRecord, action, reason, remark string, result *port.EwaybillAPIResult, now time.Time) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.repos.Ewaybills.Update(txCtx, rec); err != nil {
			return fmt.Errorf("update e-waybill: %w", err)
		}
		return s.writeLog(txCtx, rec, action, rec.Status, reason, remark, result, now)
	})
	if err != nil {
		s.logger.Error("Failed to persist e-waybill update", "error", err, "ewaybill_number", rec.Number, "action", action)
	}
	return err
}

// guard fires trigger on a fresh lifecycle and explains a refusal
func (s *ewaybillServiceImpl) guard(ctx context.Context, rec *entity.EwaybillRecord, trigger workflow.Trigger, now time.Time) error {
	sm := workflow.NewLifecycle(rec, rec.CompanyGSTIN, now)
	state := sm.State()
	if err := sm.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("%w: %s on %s e-waybill %s: %s", ErrActionNotAllowed, trigger, state, rec.Number, refusalReason(rec, state, trigger, now))
	}
	return nil
}

func refusalReason(rec *entity.EwaybillRecord, state workflow.State, trigger workflow.Trigger, now time.Time) string {
	if state.IsTerminal() {
		return "e-waybill is " + state.String()
	}
	switch trigger {
	case workflow.TriggerCancel:
		return "e-waybill can be cancelled only within 24 hours of generation"
	case workflow.TriggerExtend:
		if !ewaybill.CanExtend(rec, rec.CompanyGSTIN) {
			return "e-waybill with the company's own GSTIN as transporter cannot be extended"
		}
		return "validity can be extended only between 8 hours before and 8 hours after expiry"
	case workflow.TriggerUpdateVehicle, workflow.TriggerUpdateTransporter:
		return "e-waybill is no longer valid"
	case workflow.TriggerExpire:
		return "extension window has not closed yet"
	}
	return "transition not permitted"
}

// scheduleIsDead reports whether a failed scheduled extension can never succeed.
// A refusal before the window opens on a still extendable e-waybill is not final.
func scheduleIsDead(rec *entity.EwaybillRecord, err error, now time.Time) bool {
	switch {
	case errors.Is(err, port.ErrAPIRejected), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidReason):
		return true
	case errors.Is(err, ErrActionNotAllowed):
		return canSchedule(rec, now) != nil
	}
	return false
}

// canSchedule holds while the e-waybill is valid, extendable and its window has not opened
func canSchedule(rec *entity.EwaybillRecord, now time.Time) error {
	if !rec.IsActive() || !ewaybill.IsValid(rec, now) {
		return fmt.Errorf("%w: e-waybill %s is not valid", ErrActionNotAllowed, rec.Number)
	}
	if !ewaybill.CanExtend(rec, rec.CompanyGSTIN) {
		return fmt.Errorf("%w: e-waybill with the company's own GSTIN as transporter cannot be extended", ErrActionNotAllowed)
	}
	opens, ok := ewaybill.ExtensionWindowOpensAt(rec)
	if !ok {
		return fmt.Errorf("%w: e-waybill %s has no validity to extend", ErrActionNotAllowed, rec.Number)
	}
	if now.After(opens) {
		return fmt.Errorf("%w: extension window is already open, extend directly", ErrActionNotAllowed)
	}
	return nil
}

func (s *ewaybillServiceImpl) apiFor(sandbox bool) (port.EwaybillAPI, error) {
	if sandbox {
		return s.sandbox, nil
	}
	if s.api == nil {
		return nil, ErrAPIUnavailable
	}
	return s.api, nil
}

func (s *ewaybillServiceImpl) writeLog(ctx context.Context, rec *entity.EwaybillRecord, action, previous, reason, remark string, result *port.EwaybillAPIResult, at time.Time) error {
	entry := &entity.EwaybillLog{
		EwaybillNumber: rec.Number,
		DocumentType:   rec.DocumentType.String(),
		DocumentName:   rec.DocumentName,
		Action:         action,
		PreviousStatus: previous,
		NewStatus:      rec.Status,
		Reason:         reason,
		Remark:         remark,
		IsSandbox:      rec.IsGeneratedInSandboxMode,
		Timestamp:      at,
	}
	if result != nil {
		entry.RequestID = result.RequestID
	}
	if err := s.repos.Logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("create e-waybill log: %w", err)
	}
	return nil
}

func (s *ewaybillServiceImpl) publish(ctx context.Context, t event.Type, rec *entity.EwaybillRecord, at time.Time, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event.NewEvent(t, rec, at, payload))
}

func (s *ewaybillServiceImpl) loadTransaction(ctx context.Context, docType entity.DocumentType, name string) (*entity.TransactionSnapshot, error) {
	snap, err := s.repos.Transactions.Get(ctx, docType, name)
	if err != nil {
		s.logger.Error("Failed to get transaction", "error", err, "document_type", docType, "name", name)
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, docType, name)
	}
	return snap, nil
}

func (s *ewaybillServiceImpl) loadEwaybill(ctx context.Context, number string) (*entity.EwaybillRecord, error) {
	rec, err := s.repos.Ewaybills.GetByNumber(ctx, number)
	if err != nil {
		s.logger.Error("Failed to get e-waybill", "error", err, "ewaybill_number", number)
		return nil, fmt.Errorf("get e-waybill: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: e-waybill %s", ErrNotFound, number)
	}
	return rec, nil
}
