package results

import (
	"context"
	"fmt"
	"math"

	"github.com/duckserve/duckserve/internal/compose"
	"github.com/duckserve/duckserve/internal/engine"
)

const columnsQuery = `SELECT column_name, data_type FROM information_schema.columns WHERE table_catalog = ? AND table_schema = 'main' AND table_name = ? ORDER BY ordinal_position`

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Page struct {
	Data       [][]any  `json:"data"`
	Columns    []Column `json:"columns"`
	TotalCount int64    `json:"totalCount"`
	PageIndex  int      `json:"pageIndex"`
	PageSize   int      `json:"pageSize"`
}

// Paginator reads windows of a materialized table or view. Row order is the
// engine's scan order and is only stable when the relation defines one.
type Paginator struct {
	engine  engine.Engine
	catalog string
}

func NewPaginator(eng engine.Engine, catalog string) *Paginator {
	return &Paginator{engine: eng, catalog: catalog}
}

func (p *Paginator) Page(ctx context.Context, id string, pageIndex, pageSize int) (Page, error) {
	if pageIndex < 0 {
		return Page{}, fmt.Errorf("page index must be >= 0")
	}
	if pageSize <= 0 {
		return Page{}, fmt.Errorf("page size must be > 0")
	}
	if int64(pageIndex) > math.MaxInt64/int64(pageSize) {
		return Page{}, fmt.Errorf("page index %d out of range", pageIndex)
	}
	offset := int64(pageIndex) * int64(pageSize)

	page := Page{PageIndex: pageIndex, PageSize: pageSize}
	err := p.engine.WithSession(ctx, p.catalog, func(s engine.Session) error {
		columns, err := s.Query(ctx, columnsQuery, p.catalog, id)
		if err != nil {
			return fmt.Errorf("read columns: %w", err)
		}
		page.Columns = make([]Column, 0, len(columns.Rows))
		for _, row := range columns.Rows {
			page.Columns = append(page.Columns, Column{Name: asString(row[0]), Type: asString(row[1])})
		}

		window, err := s.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", compose.QuoteIdent(id), pageSize, offset))
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		page.Data = window.Rows

		count, err := s.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", compose.QuoteIdent(id)))
		if err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		if len(count.Rows) != 1 || len(count.Rows[0]) != 1 {
			return fmt.Errorf("count rows: unexpected result shape")
		}
		total, err := asInt64(count.Rows[0][0])
		if err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		page.TotalCount = total
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	if page.Data == nil {
		page.Data = [][]any{}
	}
	return page, nil
}

func asString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}

func asInt64(value any) (int64, error) {
	switch typed := value.(type) {
	case int64:
		return typed, nil
	case int32:
		return int64(typed), nil
	case int:
		return int64(typed), nil
	case uint64:
		if typed > math.MaxInt64 {
			return 0, fmt.Errorf("count %d overflows int64", typed)
		}
		return int64(typed), nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", value)
	}
}
