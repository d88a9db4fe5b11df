package option

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/rentflow/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

// PageSize clamps a requested page size to [1, MaxPageSize], using
// fallback when nothing was requested.
func PageSize(requested, fallback int) int {
	size := requested
	if size <= 0 {
		size = fallback
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size
}

// QueryOption customizes a repository query.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

func WithLimit(limit int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithSortBy(field string, desc bool) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field = strings.TrimSpace(field)
		if field == "" {
			return db
		}
		direction := "ASC"
		if desc {
			direction = "DESC"
		}
		return db.Order(fmt.Sprintf("%s %s", field, direction))
	})
}

func WithWhere(query string, args ...any) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(query, args...)
	})
}

// WithCursor pages through ids in descending order.
func WithCursor(lastID int64) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if lastID <= 0 {
			return db
		}
		return db.Where("id < ?", lastID)
	})
}

// ApplyPagination decodes the page token and limits the query to one row
// past the page size so callers can detect a following page. Results must
// be ordered by id descending.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := PageSize(page.PageSize, DefaultPageSize)
		if token := strings.TrimSpace(page.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil {
				if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
					db = db.Where("id < ?", id)
				}
			}
		}
		return db.Limit(size + 1)
	})
}
