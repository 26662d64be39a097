package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/clock"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/domain/event"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	companyGSTIN     = "24AAQCA8719H1ZC"
	partyGSTIN       = "29AABCR1718E1ZL"
	transporterGSTIN = "05AAACG2115R1ZN"
	ewbNumber        = "331009218923"
	invoiceName      = "SINV-24-00001"
)

// valid_upto is generatedAt+24h, so the extension window runs from +16h to +32h
var generatedAt = time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC)

func submittedInvoice() *entity.TransactionSnapshot {
	return &entity.TransactionSnapshot{
		DocumentType:        entity.DocTypeSalesInvoice,
		Name:                invoiceName,
		DocStatus:           entity.DocStatusSubmitted,
		CompanyGSTIN:        companyGSTIN,
		PartyGSTIN:          partyGSTIN,
		PartyAddressPresent: true,
		GSTCategory:         "Registered",
		Items:               []entity.LineItem{{ItemCode: "BOLT-M8", HSNCode: "73181500", Qty: 400}},
		BaseGrandTotal:      decimal.RequireFromString("118000.50"),
		PostingDate:         generatedAt,
	}
}

func invoiceWithEwaybill() *entity.TransactionSnapshot {
	snap := submittedInvoice()
	snap.EwaybillNumber = ewbNumber
	return snap
}

func liveSettings() entity.ComplianceSettings {
	return entity.ComplianceSettings{
		EnableEwaybill:       true,
		EnableEInvoice:       true,
		APIEnabled:           true,
		EwaybillThreshold:    decimal.NewFromInt(50000),
		AutoGenerateEwaybill: true,
	}
}

func generatedEwaybill() *entity.EwaybillRecord {
	validUpto := generatedAt.Add(24 * time.Hour)
	return &entity.EwaybillRecord{
		ID:            1,
		Number:        ewbNumber,
		DocumentType:  entity.DocTypeSalesInvoice,
		DocumentName:  invoiceName,
		CompanyGSTIN:  companyGSTIN,
		CreatedOn:     generatedAt,
		ValidUpto:     &validUpto,
		TransporterID: transporterGSTIN,
		VehicleNo:     "GJ01AB1234",
		Distance:      180,
		Status:        entity.EwaybillStatusGenerated,
	}
}

func validExtendRequest() ExtendRequest {
	return ExtendRequest{
		VehicleNo:         "GJ01AB1234",
		FromPlace:         "Vadodara",
		FromPincode:       "390001",
		RemainingDistance: 120,
		ReasonCode:        entity.ExtendReasonAccident,
		Remark:            "vehicle accident near Anand",
	}
}

type testEnv struct {
	transactions *mockTransactionRepo
	ewaybills    *mockEwaybillRepo
	logs         *mockLogRepo
	schedules    *mockScheduleRepo
	settingsRepo *mockSettingsRepo
	api          *mockEwaybillAPI
	sandbox      *mockEwaybillAPI
	events       *mockPublisher
	clock        *clock.FakeClock
	svc          EwaybillService
}

func newTestEnv(now time.Time, snaps []*entity.TransactionSnapshot, recs ...*entity.EwaybillRecord) *testEnv {
	settings := liveSettings()
	env := &testEnv{
		transactions: newMockTransactionRepo(snaps...),
		ewaybills:    newMockEwaybillRepo(recs...),
		logs:         &mockLogRepo{},
		schedules:    newMockScheduleRepo(),
		settingsRepo: &mockSettingsRepo{settings: &settings},
		api:          &mockEwaybillAPI{},
		sandbox:      &mockEwaybillAPI{},
		events:       &mockPublisher{},
		clock:        clock.NewFakeClock(now),
	}
	env.svc = env.build(env.api)
	return env
}

func (e *testEnv) build(api port.EwaybillAPI) EwaybillService {
	return NewEwaybillService(
		EwaybillRepositories{
			Transactions: e.transactions,
			Ewaybills:    e.ewaybills,
			Logs:         e.logs,
			Schedules:    e.schedules,
		},
		&mockTxManager{},
		NewSettingsService(e.settingsRepo, entity.ComplianceSettings{}, &mockLogger{}),
		api,
		e.sandbox,
		e.events,
		e.clock,
		&mockLogger{},
	)
}

func (e *testEnv) stored(number string) *entity.EwaybillRecord {
	return e.ewaybills.records[number]
}

func (e *testEnv) storedInvoice() *entity.TransactionSnapshot {
	return e.transactions.items[docKey{entity.DocTypeSalesInvoice, invoiceName}]
}

func TestEwaybillService_EvaluateSnapshot(t *testing.T) {
	env := newTestEnv(generatedAt, nil)

	d, err := env.svc.EvaluateSnapshot(context.Background(), submittedInvoice())
	require.NoError(t, err)
	assert.True(t, d.Applicable)
	assert.True(t, d.GeneratableUsingAPI)
	assert.True(t, d.AutoGenerate)
	assert.True(t, d.EInvoiceApplicable)

	_, err = env.svc.Evaluate(context.Background(), entity.DocTypeSalesInvoice, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEwaybillService_Generate(t *testing.T) {
	env := newTestEnv(generatedAt, []*entity.TransactionSnapshot{submittedInvoice()})
	validUpto := generatedAt.Add(24 * time.Hour)
	env.api.generateFunc = func(ctx context.Context, req port.GenerateEwaybillRequest) (*port.EwaybillAPIResult, error) {
		assert.Equal(t, invoiceName, req.Snapshot.Name)
		assert.Equal(t, "GJ01AB1234", req.VehicleNo)
		assert.Equal(t, entity.TransportModeRoad, req.ModeOfTransport)
		return &port.EwaybillAPIResult{Number: ewbNumber, Date: generatedAt, ValidUpto: &validUpto, RequestID: "req-1"}, nil
	}

	rec, err := env.svc.Generate(context.Background(), entity.DocTypeSalesInvoice, invoiceName, GenerateRequest{
		TransporterID: transporterGSTIN,
		VehicleNo:     "gj-01 ab 1234",
		Distance:      180,
	})
	require.NoError(t, err)

	assert.Equal(t, ewbNumber, rec.Number)
	assert.Equal(t, entity.EwaybillStatusGenerated, rec.Status)
	assert.True(t, generatedAt.Equal(rec.CreatedOn))
	require.NotNil(t, rec.ValidUpto)
	assert.True(t, validUpto.Equal(*rec.ValidUpto))
	assert.False(t, rec.IsGeneratedInSandboxMode)

	require.NotNil(t, env.stored(ewbNumber))
	assert.Equal(t, ewbNumber, env.storedInvoice().EwaybillNumber)

	require.Len(t, env.logs.logs, 1)
	assert.Equal(t, entity.ActionGenerate, env.logs.logs[0].Action)
	assert.Equal(t, entity.EwaybillStatusNonExistent, env.logs.logs[0].PreviousStatus)
	assert.Equal(t, "req-1", env.logs.logs[0].RequestID)

	assert.Equal(t, []event.Type{event.TypeEwaybillGenerated}, env.events.types())
	assert.Empty(t, env.sandbox.calls)
}

func TestEwaybillService_Generate_Refusals(t *testing.T) {
	tests := []struct {
		name    string
		docName string
		mutate  func(*entity.TransactionSnapshot)
		req     GenerateRequest
		wantErr error
	}{
		{
			name:    "unknown transaction",
			docName: "SINV-24-99999",
			wantErr: ErrNotFound,
		},
		{
			name:    "draft document",
			mutate:  func(s *entity.TransactionSnapshot) { s.DocStatus = entity.DocStatusDraft },
			wantErr: ErrNotSubmitted,
		},
		{
			name:    "already carries an e-waybill",
			mutate:  func(s *entity.TransactionSnapshot) { s.EwaybillNumber = "331009218900" },
			wantErr: ErrAlreadyGenerated,
		},
		{
			name:    "services only",
			mutate:  func(s *entity.TransactionSnapshot) { s.Items = []entity.LineItem{{HSNCode: "998313", Qty: 1}} },
			wantErr: ErrNotApplicable,
		},
		{
			name:    "party address missing",
			mutate:  func(s *entity.TransactionSnapshot) { s.PartyAddressPresent = false },
			wantErr: ErrNotApplicable,
		},
		{
			name:    "malformed vehicle",
			req:     GenerateRequest{VehicleNo: "GJ1"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "transporter with a bad check digit",
			req:     GenerateRequest{TransporterID: "05AAACG2115R1ZX"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "distance beyond portal limit",
			req:     GenerateRequest{Distance: 4001},
			wantErr: ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := submittedInvoice()
			if tt.mutate != nil {
				tt.mutate(snap)
			}
			env := newTestEnv(generatedAt, []*entity.TransactionSnapshot{snap})

			docName := invoiceName
			if tt.docName != "" {
				docName = tt.docName
			}
			_, err := env.svc.Generate(context.Background(), entity.DocTypeSalesInvoice, docName, tt.req)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, env.api.calls)
			assert.Empty(t, env.ewaybills.records)
			assert.Empty(t, env.events.types())
		})
	}
}

func TestEwaybillService_Generate_AlreadyActive(t *testing.T) {
	env := newTestEnv(generatedAt, []*entity.TransactionSnapshot{submittedInvoice()}, generatedEwaybill())

	_, err := env.svc.Generate(context.Background(), entity.DocTypeSalesInvoice, invoiceName, GenerateRequest{})
	assert.ErrorIs(t, err, ErrAlreadyGenerated)
	assert.Empty(t, env.api.calls)
}

func TestEwaybillService_Generate_APIRejection(t *testing.T) {
	env := newTestEnv(generatedAt, []*entity.TransactionSnapshot{submittedInvoice()})
	env.api.generateFunc = func(ctx context.Context, req port.GenerateEwaybillRequest) (*port.EwaybillAPIResult, error) {
		return nil, fmt.Errorf("gsp: %w", port.ErrAPIRejected)
	}

	_, err := env.svc.Generate(context.Background(), entity.DocTypeSalesInvoice, invoiceName, GenerateRequest{})
	assert.ErrorIs(t, err, port.ErrAPIRejected)
	assert.Empty(t, env.ewaybills.records)
	assert.Empty(t, env.logs.logs)
	assert.Empty(t, env.storedInvoice().EwaybillNumber)
	assert.Empty(t, env.events.types())
}

func TestEwaybillService_SandboxRecordsStayInSandbox(t *testing.T) {
	env := newTestEnv(generatedAt, []*entity.TransactionSnapshot{submittedInvoice()})
	env.settingsRepo.settings.SandboxMode = true
	env.sandbox.generateFunc = func(ctx context.Context, req port.GenerateEwaybillRequest) (*port.EwaybillAPIResult, error) {
		return &port.EwaybillAPIResult{Number: "170954820001", Date: generatedAt, Sandbox: true}, nil
	}

	rec, err := env.svc.Generate(context.Background(), entity.DocTypeSalesInvoice, invoiceName, GenerateRequest{})
	require.NoError(t, err)
	assert.True(t, rec.IsGeneratedInSandboxMode)
	assert.Empty(t, env.api.calls)

	// switching to live mode does not move existing sandbox records to the portal
	env.settingsRepo.settings.SandboxMode = false
	env.clock.Advance(time.Hour)
	_, err = env.svc.Cancel(context.Background(), rec.Number, CancelRequest{ReasonCode: entity.CancelReasonDataEntryError})
	require.NoError(t, err)

	assert.Equal(t, []string{"generate", "cancel"}, env.sandbox.calls)
	assert.Empty(t, env.api.calls)
	assert.True(t, env.logs.logs[1].IsSandbox)
}

func TestEwaybillService_Generate_LiveAPINotConfigured(t *testing.T) {
	env := newTestEnv(generatedAt, []*entity.TransactionSnapshot{submittedInvoice()})
	svc := env.build(nil)

	_, err := svc.Generate(context.Background(), entity.DocTypeSalesInvoice, invoiceName, GenerateRequest{})
	assert.ErrorIs(t, err, ErrAPIUnavailable)
}

func TestEwaybillService_AutoGenerate(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*entity.TransactionSnapshot)
		autoGenerate bool
		wantRecord   bool
	}{
		{name: "eligible invoice", autoGenerate: true, wantRecord: true},
		{name: "auto-generation disabled", autoGenerate: false},
		{name: "sales return", autoGenerate: true, mutate: func(s *entity.TransactionSnapshot) { s.IsReturn = true }},
		{name: "below threshold", autoGenerate: true, mutate: func(s *entity.TransactionSnapshot) { s.BaseGrandTotal = decimal.NewFromInt(20000) }},
		{name: "unregistered buyer", autoGenerate: true, mutate: func(s *entity.TransactionSnapshot) { s.GSTCategory = entity.GSTCategoryUnregistered }},
		{name: "already generated", autoGenerate: true, mutate: func(s *entity.TransactionSnapshot) { s.EwaybillNumber = "331009218900" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := submittedInvoice()
			if tt.mutate != nil {
				tt.mutate(snap)
			}
			env := newTestEnv(generatedAt, []*entity.TransactionSnapshot{snap})
			env.settingsRepo.settings.AutoGenerateEwaybill = tt.autoGenerate

			rec, err := env.svc.AutoGenerate(context.Background(), entity.DocTypeSalesInvoice, invoiceName)
			require.NoError(t, err)

			if tt.wantRecord {
				require.NotNil(t, rec)
				assert.Equal(t, []string{"generate"}, env.api.calls)
			} else {
				assert.Nil(t, rec)
				assert.Empty(t, env.api.calls)
			}
		})
	}
}

func TestEwaybillService_SyncTransaction(t *testing.T) {
	t.Run("submitted invoice is auto-generated", func(t *testing.T) {
		env := newTestEnv(generatedAt, nil)

		result, err := env.svc.SyncTransaction(context.Background(), submittedInvoice())
		require.NoError(t, err)
		assert.True(t, result.Decision.AutoGenerate)
		require.NotNil(t, result.Ewaybill)
		assert.Empty(t, result.AutoGenerateError)
		assert.Equal(t, ewbNumber, env.storedInvoice().EwaybillNumber)
	})

	t.Run("stored number survives a sync without it", func(t *testing.T) {
		env := newTestEnv(generatedAt, []*entity.TransactionSnapshot{invoiceWithEwaybill()}, generatedEwaybill())

		result, err := env.svc.SyncTransaction(context.Background(), submittedInvoice())
		require.NoError(t, err)
		assert.False(t, result.Decision.AutoGenerate)
		assert.Nil(t, result.Ewaybill)
		assert.Equal(t, ewbNumber, env.storedInvoice().EwaybillNumber)
		assert.Empty(t, env.api.calls)
	})

	t.Run("auto-generation failure does not fail the sync", func(t *testing.T) {
		env := newTestEnv(generatedAt, nil)
		env.api.generateFunc = func(ctx context.Context, req port.GenerateEwaybillRequest) (*port.EwaybillAPIResult, error) {
			return nil, errors.New("connection reset")
		}

		result, err := env.svc.SyncTransaction(context.Background(), submittedInvoice())
		require.NoError(t, err)
		assert.Nil(t, result.Ewaybill)
		assert.Contains(t, result.AutoGenerateError, "connection reset")
		require.NotNil(t, env.storedInvoice())
	})

	t.Run("unsupported document type", func(t *testing.T) {
		env := newTestEnv(generatedAt, nil)
		snap := submittedInvoice()
		snap.DocumentType = "Journal Entry"

		_, err := env.svc.SyncTransaction(context.Background(), snap)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestEwaybillService_Cancel(t *testing.T) {
	now := generatedAt.Add(2 * time.Hour)
	env := newTestEnv(now, []*entity.TransactionSnapshot{invoiceWithEwaybill()}, generatedEwaybill())
	env.schedules.items[ewbNumber] = &entity.ScheduledExtension{EwaybillNumber: ewbNumber}

	rec, err := env.svc.Cancel(context.Background(), ewbNumber, CancelRequest{
		ReasonCode: entity.CancelReasonDuplicate,
		Remark:     "raised twice",
	})
	require.NoError(t, err)

	assert.Equal(t, entity.EwaybillStatusCancelled, rec.Status)
	require.NotNil(t, rec.CancelledOn)
	assert.True(t, now.Equal(*rec.CancelledOn))
	assert.Equal(t, entity.EwaybillStatusCancelled, env.stored(ewbNumber).Status)
	assert.Empty(t, env.storedInvoice().EwaybillNumber)
	assert.Empty(t, env.schedules.items)
	assert.Equal(t, []string{"cancel"}, env.api.calls)
	assert.Equal(t, []event.Type{event.TypeEwaybillCancelled}, env.events.types())

	history, err := env.svc.History(context.Background(), ewbNumber)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.ActionCancel, history[0].Action)
	assert.Equal(t, entity.CancelReasonDuplicate, history[0].Reason)
	assert.Equal(t, entity.EwaybillStatusGenerated, history[0].PreviousStatus)
	assert.Equal(t, entity.EwaybillStatusCancelled, history[0].NewStatus)
}

func TestEwaybillService_Cancel_Refusals(t *testing.T) {
	cancelled := generatedEwaybill()
	cancelled.Status = entity.EwaybillStatusCancelled

	tests := []struct {
		name    string
		now     time.Time
		rec     *entity.EwaybillRecord
		number  string
		reason  string
		wantErr error
		message string
	}{
		{"past the 24 hour window", generatedAt.Add(25 * time.Hour), generatedEwaybill(), ewbNumber, "1", ErrActionNotAllowed, "24 hours"},
		{"exactly at the deadline", generatedAt.Add(24 * time.Hour), generatedEwaybill(), ewbNumber, "1", ErrActionNotAllowed, "24 hours"},
		{"unknown reason", generatedAt.Add(time.Hour), generatedEwaybill(), ewbNumber, "9", ErrInvalidReason, ""},
		{"unknown number", generatedAt.Add(time.Hour), generatedEwaybill(), "000000000000", "1", ErrNotFound, ""},
		{"already cancelled", generatedAt.Add(time.Hour), cancelled, ewbNumber, "1", ErrActionNotAllowed, "CANCELLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(tt.now, []*entity.TransactionSnapshot{invoiceWithEwaybill()}, tt.rec)

			_, err := env.svc.Cancel(context.Background(), tt.number, CancelRequest{ReasonCode: tt.reason})
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.message != "" {
				assert.ErrorContains(t, err, tt.message)
			}
			assert.Empty(t, env.api.calls)
			assert.Empty(t, env.logs.logs)
		})
	}
}

func TestEwaybillService_Extend(t *testing.T) {
	now := generatedAt.Add(20 * time.Hour)
	notified := generatedAt.Add(17 * time.Hour)
	rec := generatedEwaybill()
	rec.ExtensionScheduled = true
	rec.ExpiryNotifiedAt = &notified

	env := newTestEnv(now, []*entity.TransactionSnapshot{invoiceWithEwaybill()}, rec)
	newValidUpto := generatedAt.Add(48 * time.Hour)
	env.api.extendFunc = func(ctx context.Context, req port.ExtendEwaybillRequest) (*port.EwaybillAPIResult, error) {
		assert.Equal(t, 120, req.RemainingDistance)
		assert.Equal(t, entity.ConsignmentInMovement, req.ConsignmentStatus)
		assert.Equal(t, companyGSTIN, req.CompanyGSTIN)
		return &port.EwaybillAPIResult{Number: req.Number, ValidUpto: &newValidUpto, RequestID: "req-ext"}, nil
	}

	got, err := env.svc.Extend(context.Background(), ewbNumber, validExtendRequest())
	require.NoError(t, err)

	assert.Equal(t, ewbNumber, got.Number)
	require.NotNil(t, got.ValidUpto)
	assert.True(t, newValidUpto.Equal(*got.ValidUpto))
	assert.False(t, got.ExtensionScheduled)
	assert.Nil(t, got.ExpiryNotifiedAt)
	assert.Equal(t, entity.EwaybillStatusGenerated, env.stored(ewbNumber).Status)
	assert.Equal(t, []string{entity.ActionExtend}, env.logs.actions())
	assert.Equal(t, []event.Type{event.TypeEwaybillExtended}, env.events.types())
}

func TestEwaybillService_Extend_Refusals(t *testing.T) {
	selfTransport := generatedEwaybill()
	selfTransport.TransporterID = companyGSTIN

	tests := []struct {
		name    string
		now     time.Time
		rec     *entity.EwaybillRecord
		mutate  func(*ExtendRequest)
		wantErr error
		message string
	}{
		{name: "before the window opens", now: generatedAt.Add(10 * time.Hour), rec: generatedEwaybill(), wantErr: ErrActionNotAllowed, message: "8 hours"},
		{name: "after the window closes", now: generatedAt.Add(33 * time.Hour), rec: generatedEwaybill(), wantErr: ErrActionNotAllowed, message: "8 hours"},
		{name: "company is its own transporter", now: generatedAt.Add(20 * time.Hour), rec: selfTransport, wantErr: ErrActionNotAllowed, message: "own GSTIN"},
		{name: "bad pincode", now: generatedAt.Add(20 * time.Hour), rec: generatedEwaybill(), mutate: func(r *ExtendRequest) { r.FromPincode = "39001" }, wantErr: ErrInvalidRequest},
		{name: "moving without a vehicle", now: generatedAt.Add(20 * time.Hour), rec: generatedEwaybill(), mutate: func(r *ExtendRequest) { r.VehicleNo = "" }, wantErr: ErrInvalidRequest},
		{name: "no remaining distance", now: generatedAt.Add(20 * time.Hour), rec: generatedEwaybill(), mutate: func(r *ExtendRequest) { r.RemainingDistance = 0 }, wantErr: ErrInvalidRequest},
		{name: "cancellation reason code", now: generatedAt.Add(20 * time.Hour), rec: generatedEwaybill(), mutate: func(r *ExtendRequest) { r.ReasonCode = "3" }, wantErr: ErrInvalidReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(tt.now, []*entity.TransactionSnapshot{invoiceWithEwaybill()}, tt.rec)
			req := validExtendRequest()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			_, err := env.svc.Extend(context.Background(), ewbNumber, req)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.message != "" {
				assert.ErrorContains(t, err, tt.message)
			}
			assert.Empty(t, env.api.calls)
		})
	}
}

func TestEwaybillService_ExtendInTransitWithoutVehicle(t *testing.T) {
	env := newTestEnv(generatedAt.Add(20*time.Hour), []*entity.TransactionSnapshot{invoiceWithEwaybill()}, generatedEwaybill())
	req := validExtendRequest()
	req.VehicleNo = ""
	req.ConsignmentStatus = entity.ConsignmentInTransit

	rec, err := env.svc.Extend(context.Background(), ewbNumber, req)
	require.NoError(t, err)
	assert.Equal(t, "GJ01AB1234", rec.VehicleNo)
}

func TestEwaybillService_ScheduleAndRunExtension(t *testing.T) {
	env := newTestEnv(generatedAt.Add(2*time.Hour), []*entity.TransactionSnapshot{invoiceWithEwaybill()}, generatedEwaybill())
	ctx := context.Background()

	rec, err := env.svc.ScheduleExtension(ctx, ewbNumber, validExtendRequest())
	require.NoError(t, err)
	assert.True(t, rec.ExtensionScheduled)
	require.Contains(t, env.schedules.items, ewbNumber)
	assert.True(t, generatedAt.Add(2*time.Hour).Equal(env.schedules.items[ewbNumber].ScheduledAt))
	assert.Empty(t, env.api.calls)

	env.clock.Set(generatedAt.Add(20 * time.Hour))
	rec, err = env.svc.RunScheduledExtension(ctx, ewbNumber)
	require.NoError(t, err)

	assert.False(t, rec.ExtensionScheduled)
	assert.Empty(t, env.schedules.items)
	assert.Equal(t, []string{"extend"}, env.api.calls)
	assert.Equal(t, []string{entity.ActionScheduleExtension, entity.ActionExtend}, env.logs.actions())
	assert.Equal(t, []event.Type{event.TypeExtensionScheduled, event.TypeEwaybillExtended}, env.events.types())
}

func TestEwaybillService_ScheduleExtension_Refusals(t *testing.T) {
	selfTransport := generatedEwaybill()
	selfTransport.TransporterID = companyGSTIN

	tests := []struct {
		name    string
		now     time.Time
		rec     *entity.EwaybillRecord
		message string
	}{
		{"window already open", generatedAt.Add(20 * time.Hour), generatedEwaybill(), "already open"},
		{"company is its own transporter", generatedAt.Add(2 * time.Hour), selfTransport, "own GSTIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(tt.now, nil, tt.rec)

			_, err := env.svc.ScheduleExtension(context.Background(), ewbNumber, validExtendRequest())
			assert.ErrorIs(t, err, ErrActionNotAllowed)
			assert.ErrorContains(t, err, tt.message)
			assert.Empty(t, env.schedules.items)
		})
	}
}

func TestEwaybillService_RunScheduledExtension_Failures(t *testing.T) {
	timeout := errors.New("i/o timeout")
	tests := []struct {
		name         string
		now          time.Time
		mutate       func(rec *entity.EwaybillRecord)
		apiErr       error
		wantErr      error
		wantSchedule bool
	}{
		{
			name:    "portal rejection drops the schedule",
			now:     generatedAt.Add(20 * time.Hour),
			apiErr:  fmt.Errorf("gsp: %w", port.ErrAPIRejected),
			wantErr: port.ErrAPIRejected,
		},
		{
			name:         "transient failure keeps the schedule",
			now:          generatedAt.Add(20 * time.Hour),
			apiErr:       timeout,
			wantErr:      timeout,
			wantSchedule: true,
		},
		{
			name:    "own GSTIN as transporter drops the schedule",
			now:     generatedAt.Add(20 * time.Hour),
			mutate:  func(rec *entity.EwaybillRecord) { rec.TransporterID = companyGSTIN },
			wantErr: ErrActionNotAllowed,
		},
		{
			name:    "cancelled e-waybill drops the schedule",
			now:     generatedAt.Add(20 * time.Hour),
			mutate:  func(rec *entity.EwaybillRecord) { rec.Status = entity.EwaybillStatusCancelled },
			wantErr: ErrActionNotAllowed,
		},
		{
			name:         "window not open yet keeps the schedule",
			now:          generatedAt.Add(2 * time.Hour),
			wantErr:      ErrActionNotAllowed,
			wantSchedule: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := generatedEwaybill()
			rec.ExtensionScheduled = true
			if tt.mutate != nil {
				tt.mutate(rec)
			}
			env := newTestEnv(tt.now, nil, rec)
			ext := validExtendRequest().schedule(ewbNumber)
			env.schedules.items[ewbNumber] = ext
			env.api.extendFunc = func(ctx context.Context, req port.ExtendEwaybillRequest) (*port.EwaybillAPIResult, error) {
				return nil, tt.apiErr
			}

			_, err := env.svc.RunScheduledExtension(context.Background(), ewbNumber)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, []event.Type{event.TypeScheduledExtensionFailed}, env.events.types())

			_, scheduled := env.schedules.items[ewbNumber]
			assert.Equal(t, tt.wantSchedule, scheduled)
			assert.Equal(t, tt.wantSchedule, env.stored(ewbNumber).ExtensionScheduled)
		})
	}
}

func TestEwaybillService_RunScheduledExtension_RefusalStopsRetrying(t *testing.T) {
	env := newTestEnv(generatedAt.Add(2*time.Hour), nil, generatedEwaybill())
	ctx := context.Background()

	_, err := env.svc.ScheduleExtension(ctx, ewbNumber, validExtendRequest())
	require.NoError(t, err)

	// transporter switched to the company on the portal directly
	rec := env.stored(ewbNumber)
	rec.TransporterID = companyGSTIN

	env.clock.Set(generatedAt.Add(20 * time.Hour))
	_, err = env.svc.RunScheduledExtension(ctx, ewbNumber)
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	_, err = env.svc.RunScheduledExtension(ctx, ewbNumber)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, env.schedules.items)
	assert.False(t, env.stored(ewbNumber).ExtensionScheduled)
	assert.Empty(t, env.api.calls)
	assert.Equal(t, []event.Type{event.TypeExtensionScheduled, event.TypeScheduledExtensionFailed}, env.events.types())
}

func TestEwaybillService_RunScheduledExtension_NothingScheduled(t *testing.T) {
	env := newTestEnv(generatedAt.Add(20*time.Hour), nil, generatedEwaybill())

	_, err := env.svc.RunScheduledExtension(context.Background(), ewbNumber)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEwaybillService_UpdateVehicle(t *testing.T) {
	env := newTestEnv(generatedAt.Add(5*time.Hour), nil, generatedEwaybill())
	env.api.updateVehicleFunc = func(ctx context.Context, req port.UpdateVehicleRequest) (*port.EwaybillAPIResult, error) {
		assert.Equal(t, entity.TransportModeRoad, req.ModeOfTransport)
		assert.Equal(t, "GJ01CD9999", req.VehicleNo)
		assert.False(t, req.FirstVehicle)
		return &port.EwaybillAPIResult{Number: req.Number}, nil
	}

	rec, err := env.svc.UpdateVehicle(context.Background(), ewbNumber, VehicleRequest{
		VehicleNo:  "gj01cd9999",
		FromPlace:  "Surat",
		ReasonCode: entity.VehicleReasonBreakDown,
	})
	require.NoError(t, err)
	assert.Equal(t, "GJ01CD9999", rec.VehicleNo)
	assert.Equal(t, "GJ01CD9999", env.stored(ewbNumber).VehicleNo)
	assert.Equal(t, []string{entity.ActionUpdateVehicle}, env.logs.actions())
	assert.Equal(t, []event.Type{event.TypeVehicleUpdated}, env.events.types())
}

func TestEwaybillService_UpdateVehicle_FirstVehicleSetsValidity(t *testing.T) {
	partA := generatedEwaybill()
	partA.ValidUpto = nil
	partA.VehicleNo = ""
	env := newTestEnv(generatedAt.Add(30*time.Hour), nil, partA)
	validUpto := generatedAt.Add(54 * time.Hour)
	env.api.updateVehicleFunc = func(ctx context.Context, req port.UpdateVehicleRequest) (*port.EwaybillAPIResult, error) {
		assert.True(t, req.FirstVehicle)
		assert.Equal(t, 180, req.Distance)
		return &port.EwaybillAPIResult{Number: req.Number, ValidUpto: &validUpto}, nil
	}

	rec, err := env.svc.UpdateVehicle(context.Background(), ewbNumber, VehicleRequest{
		VehicleNo:  "GJ01CD9999",
		FromPlace:  "Surat",
		ReasonCode: entity.VehicleReasonFirstTime,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.ValidUpto)
	assert.True(t, validUpto.Equal(*rec.ValidUpto))
}

func TestEwaybillService_UpdateVehicle_Refusals(t *testing.T) {
	env := newTestEnv(generatedAt.Add(25*time.Hour), nil, generatedEwaybill())

	_, err := env.svc.UpdateVehicle(context.Background(), ewbNumber, VehicleRequest{
		VehicleNo: "GJ01CD9999", FromPlace: "Surat", ReasonCode: entity.VehicleReasonBreakDown,
	})
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	assert.ErrorContains(t, err, "no longer valid")

	_, err = env.svc.UpdateVehicle(context.Background(), ewbNumber, VehicleRequest{
		VehicleNo: "GJ01CD9999", FromPlace: "Surat", ReasonCode: "7",
	})
	assert.ErrorIs(t, err, ErrInvalidReason)

	_, err = env.svc.UpdateVehicle(context.Background(), ewbNumber, VehicleRequest{
		VehicleNo: "GJ01CD9999", FromPlace: "Surat", ModeOfTransport: "9", ReasonCode: entity.VehicleReasonOthers,
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, env.api.calls)
}

func TestEwaybillService_UpdateTransporter(t *testing.T) {
	env := newTestEnv(generatedAt.Add(5*time.Hour), nil, generatedEwaybill())

	_, err := env.svc.UpdateTransporter(context.Background(), ewbNumber, TransporterRequest{TransporterID: "27AAPFU0939F1ZX"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, env.api.calls)

	rec, err := env.svc.UpdateTransporter(context.Background(), ewbNumber, TransporterRequest{
		TransporterID:   " 27aapfu0939f1zv ",
		TransporterName: "Fast Freight",
	})
	require.NoError(t, err)
	assert.Equal(t, "27AAPFU0939F1ZV", rec.TransporterID)
	assert.Equal(t, "Fast Freight", env.stored(ewbNumber).TransporterName)
	assert.Equal(t, []event.Type{event.TypeTransporterUpdated}, env.events.types())
}

func TestEwaybillService_UpdateTransporter_OwnGSTINDropsSchedule(t *testing.T) {
	env := newTestEnv(generatedAt.Add(2*time.Hour), nil, generatedEwaybill())
	ctx := context.Background()

	_, err := env.svc.ScheduleExtension(ctx, ewbNumber, validExtendRequest())
	require.NoError(t, err)
	require.Contains(t, env.schedules.items, ewbNumber)

	env.clock.Set(generatedAt.Add(3 * time.Hour))
	rec, err := env.svc.UpdateTransporter(ctx, ewbNumber, TransporterRequest{TransporterID: companyGSTIN})
	require.NoError(t, err)
	assert.False(t, rec.ExtensionScheduled)
	assert.False(t, env.stored(ewbNumber).ExtensionScheduled)
	assert.Empty(t, env.schedules.items)
	assert.Equal(t, []string{entity.ActionScheduleExtension, entity.ActionUpdateTransporter}, env.logs.actions())

	env.clock.Set(generatedAt.Add(20 * time.Hour))
	_, err = env.svc.RunScheduledExtension(ctx, ewbNumber)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []event.Type{event.TypeExtensionScheduled, event.TypeTransporterUpdated}, env.events.types())
}

func TestEwaybillService_UpdateTransporter_KeepsScheduleForOtherTransporter(t *testing.T) {
	env := newTestEnv(generatedAt.Add(2*time.Hour), nil, generatedEwaybill())
	ctx := context.Background()

	_, err := env.svc.ScheduleExtension(ctx, ewbNumber, validExtendRequest())
	require.NoError(t, err)

	rec, err := env.svc.UpdateTransporter(ctx, ewbNumber, TransporterRequest{TransporterID: "27AAPFU0939F1ZV"})
	require.NoError(t, err)
	assert.True(t, rec.ExtensionScheduled)
	assert.Contains(t, env.schedules.items, ewbNumber)
}

func TestEwaybillService_NotifyExtensionWindow(t *testing.T) {
	env := newTestEnv(generatedAt.Add(10*time.Hour), nil, generatedEwaybill())
	ctx := context.Background()

	require.NoError(t, env.svc.NotifyExtensionWindow(ctx, ewbNumber))
	assert.Empty(t, env.events.types())
	assert.Nil(t, env.stored(ewbNumber).ExpiryNotifiedAt)

	env.clock.Set(generatedAt.Add(20 * time.Hour))
	require.NoError(t, env.svc.NotifyExtensionWindow(ctx, ewbNumber))
	require.NoError(t, env.svc.NotifyExtensionWindow(ctx, ewbNumber))

	assert.Equal(t, []event.Type{event.TypeExtensionWindowOpened}, env.events.types())
	require.NotNil(t, env.stored(ewbNumber).ExpiryNotifiedAt)
	assert.True(t, generatedAt.Add(20*time.Hour).Equal(*env.stored(ewbNumber).ExpiryNotifiedAt))

	closes, ok := env.events.events[0].GetPayloadTime("window_closes_at")
	require.True(t, ok)
	assert.True(t, generatedAt.Add(32*time.Hour).Equal(closes))
}

func TestEwaybillService_MarkExpired(t *testing.T) {
	env := newTestEnv(generatedAt.Add(30*time.Hour), nil, generatedEwaybill())
	env.schedules.items[ewbNumber] = &entity.ScheduledExtension{EwaybillNumber: ewbNumber}
	ctx := context.Background()

	_, err := env.svc.MarkExpired(ctx, ewbNumber)
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	assert.ErrorContains(t, err, "not closed")

	env.clock.Set(generatedAt.Add(33 * time.Hour))
	rec, err := env.svc.MarkExpired(ctx, ewbNumber)
	require.NoError(t, err)
	assert.Equal(t, entity.EwaybillStatusExpired, rec.Status)
	assert.Empty(t, env.schedules.items)
	assert.Equal(t, []string{entity.ActionExpire}, env.logs.actions())
	assert.Equal(t, []event.Type{event.TypeEwaybillExpired}, env.events.types())

	_, err = env.svc.MarkExpired(ctx, ewbNumber)
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	assert.ErrorContains(t, err, "EXPIRED")
}

func TestEwaybillService_AvailableActions(t *testing.T) {
	draft := submittedInvoice()
	draft.DocStatus = entity.DocStatusDraft

	tests := []struct {
		name string
		now  time.Time
		snap *entity.TransactionSnapshot
		rec  *entity.EwaybillRecord
		want []string
	}{
		{"submitted without e-waybill", generatedAt, submittedInvoice(), nil, []string{entity.ActionGenerate}},
		{"draft", generatedAt, draft, nil, []string{}},
		{"fresh e-waybill", generatedAt.Add(time.Hour), invoiceWithEwaybill(), generatedEwaybill(),
			[]string{entity.ActionCancel, entity.ActionUpdateTransporter, entity.ActionUpdateVehicle, entity.ActionScheduleExtension}},
		{"inside extension window", generatedAt.Add(20 * time.Hour), invoiceWithEwaybill(), generatedEwaybill(),
			[]string{entity.ActionCancel, entity.ActionExtend, entity.ActionUpdateTransporter, entity.ActionUpdateVehicle}},
		{"lapsed but extendable", generatedAt.Add(26 * time.Hour), invoiceWithEwaybill(), generatedEwaybill(),
			[]string{entity.ActionExtend}},
		{"window closed", generatedAt.Add(40 * time.Hour), invoiceWithEwaybill(), generatedEwaybill(), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var recs []*entity.EwaybillRecord
			if tt.rec != nil {
				recs = append(recs, tt.rec)
			}
			env := newTestEnv(tt.now, []*entity.TransactionSnapshot{tt.snap}, recs...)

			got, err := env.svc.AvailableActions(context.Background(), entity.DocTypeSalesInvoice, invoiceName)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
