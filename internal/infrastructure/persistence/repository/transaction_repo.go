package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/garyjia/gst-compliance/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// TransactionRepository implements port.TransactionRepository
type TransactionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, logger *zap.Logger) port.TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or replaces the snapshot keyed by (document_type, name)
func (r *TransactionRepository) Upsert(ctx context.Context, snap *entity.TransactionSnapshot) error {
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	query := `
		INSERT INTO transactions (
			document_type, name, company, docstatus, company_gstin, party_gstin,
			party_address_present, gst_category, is_opening, is_return, is_debit_note,
			items, base_grand_total, ewaybill_number, irn, posting_date, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(document_type, name) DO UPDATE SET
			company = excluded.company,
			docstatus = excluded.docstatus,
			company_gstin = excluded.company_gstin,
			party_gstin = excluded.party_gstin,
			party_address_present = excluded.party_address_present,
			gst_category = excluded.gst_category,
			is_opening = excluded.is_opening,
			is_return = excluded.is_return,
			is_debit_note = excluded.is_debit_note,
			items = excluded.items,
			base_grand_total = excluded.base_grand_total,
			ewaybill_number = excluded.ewaybill_number,
			irn = excluded.irn,
			posting_date = excluded.posting_date,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		string(snap.DocumentType),
		snap.Name,
		snap.Company,
		int(snap.DocStatus),
		snap.CompanyGSTIN,
		snap.PartyGSTIN,
		snap.PartyAddressPresent,
		snap.GSTCategory,
		snap.IsOpening,
		snap.IsReturn,
		snap.IsDebitNote,
		string(items),
		snap.BaseGrandTotal,
		snap.EwaybillNumber,
		snap.IRN,
		nullTime(snap.PostingDate),
	)
	if err != nil {
		r.logger.Error("Failed to upsert transaction",
			zap.String("document_type", string(snap.DocumentType)),
			zap.String("name", snap.Name),
			zap.Error(err))
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return nil
}

// Get retrieves a snapshot by document type and name
func (r *TransactionRepository) Get(ctx context.Context, docType entity.DocumentType, name string) (*entity.TransactionSnapshot, error) {
	query := `
		SELECT document_type, name, company, docstatus, company_gstin, party_gstin,
			party_address_present, gst_category, is_opening, is_return, is_debit_note,
			items, base_grand_total, ewaybill_number, irn, posting_date, updated_at
		FROM transactions
		WHERE document_type = ? AND name = ?
	`

	var snap entity.TransactionSnapshot
	var docTypeStr, items string
	var docStatus int
	var postingDate sql.NullTime

	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, string(docType), name).Scan(
		&docTypeStr,
		&snap.Name,
		&snap.Company,
		&docStatus,
		&snap.CompanyGSTIN,
		&snap.PartyGSTIN,
		&snap.PartyAddressPresent,
		&snap.GSTCategory,
		&snap.IsOpening,
		&snap.IsReturn,
		&snap.IsDebitNote,
		&items,
		&snap.BaseGrandTotal,
		&snap.EwaybillNumber,
		&snap.IRN,
		&postingDate,
		&snap.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get transaction",
			zap.String("document_type", string(docType)),
			zap.String("name", name),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	snap.DocumentType = entity.DocumentType(docTypeStr)
	snap.DocStatus = entity.DocStatus(docStatus)
	if postingDate.Valid {
		snap.PostingDate = postingDate.Time
	}
	if err := json.Unmarshal([]byte(items), &snap.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of %s %s: %w", docType, name, err)
	}

	return &snap, nil
}

// SetEwaybillNumber links (or with an empty number, unlinks) the e-Waybill on the transaction
func (r *TransactionRepository) SetEwaybillNumber(ctx context.Context, docType entity.DocumentType, name, number string) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE transactions SET ewaybill_number = ?, updated_at = CURRENT_TIMESTAMP WHERE document_type = ? AND name = ?`,
		number, string(docType), name,
	)
	if err != nil {
		r.logger.Error("Failed to set e-waybill number", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("failed to set e-waybill number: %w", err)
	}
	return requireOneRow(result, "transaction")
}
