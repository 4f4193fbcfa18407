package db

import (
	"fmt"
	"strings"

	sqlbuilder "github.com/huandu/go-sqlbuilder"

	"contentfeed/feed"
	"contentfeed/models"
	"contentfeed/query"
)

var createdAtColumns = []string{"created_seconds", "created_nanos", "id"}

// fieldExpr maps a document field onto a SQL expression. Payload fields are
// read with the ->> operator so no JSON path literal ends up in the query.
func fieldExpr(field string) string {
	if field == query.ID {
		return "id"
	}
	parts := strings.Split(field, ".")
	var sb strings.Builder
	sb.WriteString("data")
	for i, part := range parts {
		if i == len(parts)-1 {
			sb.WriteString(" ->> '")
		} else {
			sb.WriteString(" -> '")
		}
		sb.WriteString(part)
		sb.WriteString("'")
	}
	return sb.String()
}

// sqlValue converts filter values into something SQLite compares the same way
// as the JSON extracted value. JSON booleans come back as 0 and 1.
func sqlValue(v any) any {
	switch v := v.(type) {
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func applyFilter(sb *sqlbuilder.SelectBuilder, f query.Filter) {
	expr := fieldExpr(f.Field)

	if f.Value == nil {
		switch f.Op {
		case query.Equal:
			sb.Where(sb.IsNull(expr))
		case query.NotEqual:
			sb.Where(sb.IsNotNull(expr))
		default:
			// ordering against NULL matches nothing
			sb.Where("1 = 0")
		}
		return
	}

	value := sqlValue(f.Value)
	switch f.Op {
	case query.Equal:
		sb.Where(sb.Equal(expr, value))
	case query.NotEqual:
		sb.Where(sb.NotEqual(expr, value))
	case query.LessThan:
		sb.Where(sb.LessThan(expr, value))
	case query.LessEqual:
		sb.Where(sb.LessEqualThan(expr, value))
	case query.GreaterThan:
		sb.Where(sb.GreaterThan(expr, value))
	case query.GreaterEqual:
		sb.Where(sb.GreaterEqualThan(expr, value))
	}
}

// sortColumns returns the ordering tuple for a sort key, always ending in id
// so that ordering and startAfter are total.
func sortColumns(orderBy string) []string {
	switch orderBy {
	case "", query.CreatedAt:
		return createdAtColumns
	case query.ID:
		return []string{"id"}
	default:
		return []string{fieldExpr(orderBy), "id"}
	}
}

// cursorValues reads the cursor's position in the ordering
func cursorValues(orderBy string, cursor models.Record) ([]any, error) {
	switch orderBy {
	case "", query.CreatedAt:
		if _, err := feed.NormalizeRecord(cursor); err != nil {
			return nil, fmt.Errorf("cursor: %w", err)
		}
		return []any{*cursor.CreatedAt.Seconds, *cursor.CreatedAt.Nanoseconds, cursor.ID}, nil
	case query.ID:
		return []any{cursor.ID}, nil
	default:
		return []any{sqlValue(lookupField(cursor.Data, orderBy)), cursor.ID}, nil
	}
}

func lookupField(data map[string]any, field string) any {
	var current any = data
	for _, part := range strings.Split(field, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

// buildQuery translates q into a select over one collection
func buildQuery(collection string, q query.Query, cursor *models.Record) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "created_seconds", "created_nanos", "data").From("documents")
	sb.Where(sb.Equal("collection", collection))

	for _, f := range q.Filters {
		applyFilter(sb, f)
	}

	columns := sortColumns(q.OrderBy)
	dir := "ASC"
	cmp := ">"
	if q.Descending() {
		dir = "DESC"
		cmp = "<"
	}

	if cursor != nil {
		values, err := cursorValues(q.OrderBy, *cursor)
		if err != nil {
			return "", nil, err
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = sb.Args.Add(v)
		}
		sb.Where(fmt.Sprintf("(%s) %s (%s)",
			strings.Join(columns, ", "), cmp, strings.Join(placeholders, ", ")))
	}

	order := make([]string, len(columns))
	for i, c := range columns {
		order[i] = c + " " + dir
	}
	sb.OrderBy(order...)

	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}

	sql, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	return sql, args, nil
}
