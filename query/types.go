package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidQuery is returned for unknown operators, fields or directions
var ErrInvalidQuery = errors.New("invalid query")

// CreatedAt is the sort key backed by the record's creation timestamp
const CreatedAt = "createdAt"

// ID addresses the document id instead of a payload field
const ID = "id"

// Op is a comparison operator usable in a filter
type Op string

const (
	Equal        Op = "=="
	NotEqual     Op = "!="
	LessThan     Op = "<"
	LessEqual    Op = "<="
	GreaterThan  Op = ">"
	GreaterEqual Op = ">="
)

// Direction of the ordering
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Filter restricts a query to documents whose field compares true to Value
type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// String encodes the filter as "field,op,jsonValue"
func (f Filter) String() string {
	raw, err := json.Marshal(f.Value)
	if err != nil {
		raw = []byte("null")
	}
	return fmt.Sprintf("%s,%s,%s", f.Field, f.Op, raw)
}

// ParseFilter decodes the "field,op,jsonValue" form produced by Filter.String
func ParseFilter(s string) (Filter, error) {
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 {
		return Filter{}, fmt.Errorf("%w: filter %q must be field,op,value", ErrInvalidQuery, s)
	}
	var value any
	if err := json.Unmarshal([]byte(parts[2]), &value); err != nil {
		return Filter{}, fmt.Errorf("%w: filter value %q: %v", ErrInvalidQuery, parts[2], err)
	}
	f := Filter{Field: parts[0], Op: Op(parts[1]), Value: value}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func (f Filter) Validate() error {
	if err := ValidateField(f.Field); err != nil {
		return err
	}
	switch f.Op {
	case Equal, NotEqual, LessThan, LessEqual, GreaterThan, GreaterEqual:
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
	}
	if f.Field == CreatedAt {
		return fmt.Errorf("%w: filtering on %s is not supported", ErrInvalidQuery, CreatedAt)
	}
	switch f.Value.(type) {
	case nil, bool, string, float64, float32, int, int64, int32:
	default:
		return fmt.Errorf("%w: unsupported value type %T for field %s", ErrInvalidQuery, f.Value, f.Field)
	}
	return nil
}

// ValidateField accepts dotted identifiers only, field names end up in SQL
func ValidateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("%w: field %q", ErrInvalidQuery, field)
	}
	return nil
}

// ParseDirection accepts asc/desc in any case, empty means desc
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc":
		return Desc, nil
	case "asc":
		return Asc, nil
	default:
		return "", fmt.Errorf("%w: direction %q", ErrInvalidQuery, s)
	}
}

// Query is a filtered, ordered and limited read of one collection.
// A zero Limit means no limit.
type Query struct {
	Filters   []Filter  `json:"filters,omitempty"`
	OrderBy   string    `json:"orderBy,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// New returns a query ordered by creation time, most recent first
func New() Query {
	return Query{OrderBy: CreatedAt, Direction: Desc}
}

// Where returns a copy of q with an extra filter
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = field
	q.Direction = dir
	return q
}

func (q Query) WithLimit(limit int) Query {
	q.Limit = limit
	return q
}

func (q Query) Validate() error {
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if q.OrderBy != "" {
		if err := ValidateField(q.OrderBy); err != nil {
			return err
		}
	}
	if q.Direction != Asc && q.Direction != Desc && q.Direction != "" {
		return fmt.Errorf("%w: direction %q", ErrInvalidQuery, q.Direction)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// Descending reports whether the ordering is most-recent/largest first
func (q Query) Descending() bool {
	return q.Direction != Asc
}
