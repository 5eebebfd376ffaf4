package option

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

// ApplyPagination limits the statement to one page of id-ordered rows. One
// extra row is fetched so callers can tell whether another page exists.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = pagination.DefaultPageSize
		}
		if size > pagination.MaxPageSize {
			size = pagination.MaxPageSize
		}

		if token := strings.TrimSpace(page.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil {
				if id, err := snowflake.ParseString(cursor.ID); err == nil && id != 0 {
					db = db.Where("id < ?", id)
				}
			}
		}
		return db.Limit(size + 1)
	})
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// WithSortBy orders by column. Unknown directions fall back to descending.
func WithSortBy(column string, direction SortDirection) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column = strings.TrimSpace(column)
		if column == "" {
			return db
		}
		if direction != SortAsc {
			direction = SortDesc
		}
		return db.Order(column + " " + string(direction))
	})
}

// Apply runs every option in order.
func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		db = opt.Apply(db)
	}
	return db
}
