package port

import (
	"context"
	"time"

	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// FileStorage stores generated report files under a base directory
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	List(ctx context.Context, dir string) ([]string, error)
	GetFullPath(relativePath string) string
}

// RegisterRow pairs an e-Waybill with the value of its source document
type RegisterRow struct {
	Record        *entity.EwaybillRecord
	DocumentValue decimal.Decimal
}

// RegisterRenderer renders the e-Waybill register for the period [from, to)
type RegisterRenderer interface {
	Write(rows []RegisterRow, from, to time.Time) ([]byte, error)
}
