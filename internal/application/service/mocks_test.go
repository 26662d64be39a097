package service

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/domain/event"
)

type docKey struct {
	docType entity.DocumentType
	name    string
}

// Mock repositories keep copies so a failed flow never leaks mutations into the store

type mockTransactionRepo struct {
	items     map[docKey]*entity.TransactionSnapshot
	getErr    error
	upsertErr error
}

func newMockTransactionRepo(snaps ...*entity.TransactionSnapshot) *mockTransactionRepo {
	m := &mockTransactionRepo{items: map[docKey]*entity.TransactionSnapshot{}}
	for _, s := range snaps {
		cp := *s
		m.items[docKey{s.DocumentType, s.Name}] = &cp
	}
	return m
}

func (m *mockTransactionRepo) Upsert(ctx context.Context, snap *entity.TransactionSnapshot) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	cp := *snap
	m.items[docKey{snap.DocumentType, snap.Name}] = &cp
	return nil
}

func (m *mockTransactionRepo) Get(ctx context.Context, docType entity.DocumentType, name string) (*entity.TransactionSnapshot, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.items[docKey{docType, name}]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockTransactionRepo) SetEwaybillNumber(ctx context.Context, docType entity.DocumentType, name, number string) error {
	if s, ok := m.items[docKey{docType, name}]; ok {
		s.EwaybillNumber = number
	}
	return nil
}

type mockEwaybillRepo struct {
	records   map[string]*entity.EwaybillRecord
	updateErr error
}

func newMockEwaybillRepo(recs ...*entity.EwaybillRecord) *mockEwaybillRepo {
	m := &mockEwaybillRepo{records: map[string]*entity.EwaybillRecord{}}
	for _, r := range recs {
		cp := *r
		m.records[r.Number] = &cp
	}
	return m
}

func (m *mockEwaybillRepo) Create(ctx context.Context, rec *entity.EwaybillRecord) error {
	rec.ID = int64(len(m.records) + 1)
	cp := *rec
	m.records[rec.Number] = &cp
	return nil
}

func (m *mockEwaybillRepo) GetByNumber(ctx context.Context, number string) (*entity.EwaybillRecord, error) {
	r, ok := m.records[number]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockEwaybillRepo) GetActiveByDocument(ctx context.Context, docType entity.DocumentType, name string) (*entity.EwaybillRecord, error) {
	for _, r := range m.records {
		if r.DocumentType == docType && r.DocumentName == name && r.IsActive() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockEwaybillRepo) Update(ctx context.Context, rec *entity.EwaybillRecord) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := *rec
	m.records[rec.Number] = &cp
	return nil
}

func (m *mockEwaybillRepo) ListByStatus(ctx context.Context, status string, limit int) ([]*entity.EwaybillRecord, error) {
	var out []*entity.EwaybillRecord
	for _, r := range m.records {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockEwaybillRepo) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*entity.EwaybillRecord, error) {
	var out []*entity.EwaybillRecord
	for _, r := range m.records {
		if !r.CreatedOn.Before(from) && r.CreatedOn.Before(to) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockLogRepo struct {
	logs []*entity.EwaybillLog
}

func (m *mockLogRepo) Create(ctx context.Context, log *entity.EwaybillLog) error {
	log.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockLogRepo) GetByEwaybillNumber(ctx context.Context, number string) ([]*entity.EwaybillLog, error) {
	var out []*entity.EwaybillLog
	for _, l := range m.logs {
		if l.EwaybillNumber == number {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockLogRepo) actions() []string {
	out := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Action)
	}
	return out
}

type mockScheduleRepo struct {
	items map[string]*entity.ScheduledExtension
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{items: map[string]*entity.ScheduledExtension{}}
}

func (m *mockScheduleRepo) Save(ctx context.Context, ext *entity.ScheduledExtension) error {
	cp := *ext
	m.items[ext.EwaybillNumber] = &cp
	return nil
}

func (m *mockScheduleRepo) Get(ctx context.Context, number string) (*entity.ScheduledExtension, error) {
	ext, ok := m.items[number]
	if !ok {
		return nil, nil
	}
	cp := *ext
	return &cp, nil
}

func (m *mockScheduleRepo) Delete(ctx context.Context, number string) error {
	delete(m.items, number)
	return nil
}

type mockSettingsRepo struct {
	settings *entity.ComplianceSettings
	getFunc  func(ctx context.Context) (*entity.ComplianceSettings, error)
	saveFunc func(ctx context.Context, settings *entity.ComplianceSettings) error
}

func (m *mockSettingsRepo) Get(ctx context.Context) (*entity.ComplianceSettings, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx)
	}
	if m.settings == nil {
		return nil, nil
	}
	cp := *m.settings
	return &cp, nil
}

func (m *mockSettingsRepo) Save(ctx context.Context, settings *entity.ComplianceSettings) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, settings)
	}
	cp := *settings
	m.settings = &cp
	return nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockEwaybillAPI struct {
	generateFunc          func(ctx context.Context, req port.GenerateEwaybillRequest) (*port.EwaybillAPIResult, error)
	cancelFunc            func(ctx context.Context, req port.CancelEwaybillRequest) (*port.EwaybillAPIResult, error)
	extendFunc            func(ctx context.Context, req port.ExtendEwaybillRequest) (*port.EwaybillAPIResult, error)
	updateVehicleFunc     func(ctx context.Context, req port.UpdateVehicleRequest) (*port.EwaybillAPIResult, error)
	updateTransporterFunc func(ctx context.Context, req port.UpdateTransporterRequest) (*port.EwaybillAPIResult, error)

	calls []string
}

func (m *mockEwaybillAPI) Generate(ctx context.Context, req port.GenerateEwaybillRequest) (*port.EwaybillAPIResult, error) {
	m.calls = append(m.calls, "generate")
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return &port.EwaybillAPIResult{Number: "331009218923", RequestID: "req-gen"}, nil
}

func (m *mockEwaybillAPI) Cancel(ctx context.Context, req port.CancelEwaybillRequest) (*port.EwaybillAPIResult, error) {
	m.calls = append(m.calls, "cancel")
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, req)
	}
	return &port.EwaybillAPIResult{Number: req.Number, RequestID: "req-cancel"}, nil
}

func (m *mockEwaybillAPI) Extend(ctx context.Context, req port.ExtendEwaybillRequest) (*port.EwaybillAPIResult, error) {
	m.calls = append(m.calls, "extend")
	if m.extendFunc != nil {
		return m.extendFunc(ctx, req)
	}
	return &port.EwaybillAPIResult{Number: req.Number, RequestID: "req-extend"}, nil
}

func (m *mockEwaybillAPI) UpdateVehicle(ctx context.Context, req port.UpdateVehicleRequest) (*port.EwaybillAPIResult, error) {
	m.calls = append(m.calls, "update_vehicle")
	if m.updateVehicleFunc != nil {
		return m.updateVehicleFunc(ctx, req)
	}
	return &port.EwaybillAPIResult{Number: req.Number, RequestID: "req-vehicle"}, nil
}

func (m *mockEwaybillAPI) UpdateTransporter(ctx context.Context, req port.UpdateTransporterRequest) (*port.EwaybillAPIResult, error) {
	m.calls = append(m.calls, "update_transporter")
	if m.updateTransporterFunc != nil {
		return m.updateTransporterFunc(ctx, req)
	}
	return &port.EwaybillAPIResult{Number: req.Number, RequestID: "req-transporter"}, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) Publish(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockPublisher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockNotifier struct {
	notifyFunc func(ctx context.Context, text string) error
	sent       []string
}

func (m *mockNotifier) Notify(ctx context.Context, text string) error {
	if m.notifyFunc != nil {
		if err := m.notifyFunc(ctx, text); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, text)
	return nil
}
