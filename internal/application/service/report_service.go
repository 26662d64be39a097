package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/shopspring/decimal"
)

// RegisterDir is where rendered registers are archived
const RegisterDir = "registers"

// Register is a rendered e-waybill register
type Register struct {
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
	Content []byte `json:"-"`
}

// ReportService builds the e-waybill register
type ReportService interface {
	BuildRegister(ctx context.Context, from, to time.Time) (*Register, error)
	ListRegisters(ctx context.Context) ([]string, error)
}

type reportServiceImpl struct {
	ewaybillRepo    port.EwaybillRepository
	transactionRepo port.TransactionRepository
	renderer        port.RegisterRenderer
	storage         port.FileStorage
	logger          Logger
}

// NewReportService creates a new ReportService
func NewReportService(
	ewaybillRepo port.EwaybillRepository,
	transactionRepo port.TransactionRepository,
	renderer port.RegisterRenderer,
	storage port.FileStorage,
	logger Logger,
) ReportService {
	return &reportServiceImpl{
		ewaybillRepo:    ewaybillRepo,
		transactionRepo: transactionRepo,
		renderer:        renderer,
		storage:         storage,
		logger:          logger,
	}
}

// BuildRegister renders every e-waybill generated in [from, to) and archives the workbook
func (s *reportServiceImpl) BuildRegister(ctx context.Context, from, to time.Time) (*Register, error) {
	if !from.Before(to) {
		return nil, invalid("report period must end after it starts")
	}

	records, err := s.ewaybillRepo.ListCreatedBetween(ctx, from, to)
	if err != nil {
		s.logger.Error("Failed to list e-waybills", "error", err, "from", from, "to", to)
		return nil, fmt.Errorf("list e-waybills: %w", err)
	}

	rows := make([]port.RegisterRow, 0, len(records))
	for _, rec := range records {
		value := decimal.Zero
		snap, err := s.transactionRepo.Get(ctx, rec.DocumentType, rec.DocumentName)
		if err != nil {
			return nil, fmt.Errorf("get transaction %s: %w", rec.DocumentName, err)
		}
		if snap != nil {
			value = snap.BaseGrandTotal
		}
		rows = append(rows, port.RegisterRow{Record: rec, DocumentValue: value})
	}

	content, err := s.renderer.Write(rows, from, to)
	if err != nil {
		s.logger.Error("Failed to render register", "error", err)
		return nil, fmt.Errorf("render register: %w", err)
	}

	path := fmt.Sprintf("%s/ewaybill-register_%s_%s.xlsx", RegisterDir, from.UTC().Format("20060102"), to.UTC().Format("20060102"))
	if err := s.storage.Save(ctx, path, content); err != nil {
		s.logger.Error("Failed to archive register", "error", err, "path", path)
		return nil, fmt.Errorf("archive register: %w", err)
	}

	s.logger.Info("E-waybill register built", "path", path, "rows", len(rows))
	return &Register{Path: path, Rows: len(rows), Content: content}, nil
}

// ListRegisters returns the archived registers
func (s *reportServiceImpl) ListRegisters(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, RegisterDir)
}
