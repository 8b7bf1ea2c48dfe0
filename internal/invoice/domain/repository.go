package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payables/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// NumberTaken reports whether another invoice (excluding excludeID when non-zero) uses number.
	NumberTaken(ctx context.Context, db *gorm.DB, number string, excludeID snowflake.ID) (bool, error)
	// UpdateIfPending replaces the writable fields when the stored row is still
	// pending and unchanged since loadedAt. It returns the number of rows written.
	UpdateIfPending(ctx context.Context, db *gorm.DB, invoice *Invoice, loadedAt time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, page pagination.Page) ([]*Invoice, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}
