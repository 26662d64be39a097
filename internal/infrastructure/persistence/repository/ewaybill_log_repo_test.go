package repository

import (
	"context"
	"testing"
	"time"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEwaybillLogRepository_CreateAndList(t *testing.T) {
	repo := NewEwaybillLogRepository(setupTestDB(t), zap.NewNop())
	ctx := context.Background()
	at := time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC)

	entries := []*entity.EwaybillLog{
		{
			EwaybillNumber: "331009218923",
			DocumentType:   string(entity.DocTypeSalesInvoice),
			DocumentName:   "SINV-24-00001",
			Action:         entity.ActionGenerate,
			PreviousStatus: entity.EwaybillStatusNonExistent,
			NewStatus:      entity.EwaybillStatusGenerated,
			RequestID:      "req-1",
			Timestamp:      at,
		},
		{
			EwaybillNumber: "331009218923",
			DocumentType:   string(entity.DocTypeSalesInvoice),
			DocumentName:   "SINV-24-00001",
			Action:         entity.ActionCancel,
			PreviousStatus: entity.EwaybillStatusGenerated,
			NewStatus:      entity.EwaybillStatusCancelled,
			Reason:         entity.CancelReasonDuplicate,
			IsSandbox:      true,
			Timestamp:      at.Add(time.Hour),
		},
	}
	for _, e := range entries {
		require.NoError(t, repo.Create(ctx, e))
		assert.NotZero(t, e.ID)
	}

	logs, err := repo.GetByEwaybillNumber(ctx, "331009218923")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, entity.ActionGenerate, logs[0].Action)
	assert.Equal(t, entity.ActionCancel, logs[1].Action)
	assert.True(t, logs[1].IsSandbox)
	assert.True(t, at.Add(time.Hour).Equal(logs[1].Timestamp))

	none, err := repo.GetByEwaybillNumber(ctx, "000")
	require.NoError(t, err)
	assert.Empty(t, none)
}
