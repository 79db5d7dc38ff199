package backend

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter is an equality condition on one column.
type Filter struct {
	Column string
	Value  interface{}
}

// Order is a single column ordering directive.
type Order struct {
	Column string
	Desc   bool
}

// String returns the SQL fragment for this order, e.g. "created_at DESC".
func (o Order) String() string {
	if o.Desc {
		return o.Column + " DESC"
	}
	return o.Column + " ASC"
}

// Query narrows and orders a Select. The zero Query selects everything in
// the table's default order.
type Query struct {
	Filters []Filter
	Order   []Order
}

// Where returns a copy of q with an added equality filter.
func (q Query) Where(column string, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Value: value})
	return q
}

// OrderBy returns a copy of q with an added order directive.
func (q Query) OrderBy(column string, desc bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: column, Desc: desc})
	return q
}

// NewestFirst orders by creation time, newest first, with the id as tie-break.
func NewestFirst() Query {
	return Query{}.OrderBy("created_at", true).OrderBy("id", true)
}

var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateIdentifier ensures a column name is a plain SQL identifier.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("identifier too long (max 64 chars): %q", name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	return nil
}

// ParseOrder parses an order string like "created_at DESC, title" into
// validated Order values. Direction defaults to ASC.
func ParseOrder(order string) ([]Order, error) {
	order = strings.TrimSpace(order)
	if order == "" {
		return nil, nil
	}

	var out []Order
	for _, part := range strings.Split(order, ",") {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) > 2 {
			return nil, fmt.Errorf("invalid order clause %q: expected 'column [ASC|DESC]'", strings.TrimSpace(part))
		}
		if err := ValidateIdentifier(tokens[0]); err != nil {
			return nil, fmt.Errorf("invalid order column: %w", err)
		}
		o := Order{Column: tokens[0]}
		if len(tokens) == 2 {
			switch strings.ToUpper(tokens[1]) {
			case "ASC":
			case "DESC":
				o.Desc = true
			default:
				return nil, fmt.Errorf("invalid order direction %q: must be ASC or DESC", tokens[1])
			}
		}
		out = append(out, o)
	}
	return out, nil
}
