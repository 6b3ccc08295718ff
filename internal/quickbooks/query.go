package quickbooks

import (
	"fmt"
	"regexp"
	"strings"
)

var idPattern = regexp.MustCompile(`^[0-9]{1,20}$`)

// ValidID reports whether id looks like a QuickBooks entity id (digits only).
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Quote renders s as a QuickBooks query string literal. Backslashes and
// single quotes are escaped with a backslash.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// Query builds a QuickBooks query statement.
type Query struct {
	entity  string
	where   []string
	orderBy string
	start   int
	max     int
}

// Select starts a "SELECT * FROM entity" statement.
func Select(entity string) *Query {
	return &Query{entity: entity}
}

// Where adds "field op value" with value quoted. Conditions are joined with AND.
func (q *Query) Where(field, op, value string) *Query {
	q.where = append(q.where, fmt.Sprintf("%s %s %s", field, op, Quote(value)))
	return q
}

// WhereRaw adds a condition verbatim; callers must not pass user input.
func (q *Query) WhereRaw(cond string) *Query {
	q.where = append(q.where, cond)
	return q
}

func (q *Query) OrderBy(clause string) *Query {
	q.orderBy = clause
	return q
}

// Page sets STARTPOSITION (1-based) and MAXRESULTS.
func (q *Query) Page(start, max int) *Query {
	q.start, q.max = start, max
	return q
}

func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(q.entity)
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	if q.orderBy != "" {
		b.WriteString(" ORDERBY ")
		b.WriteString(q.orderBy)
	}
	if q.start > 0 {
		fmt.Fprintf(&b, " STARTPOSITION %d", q.start)
	}
	if q.max > 0 {
		fmt.Fprintf(&b, " MAXRESULTS %d", q.max)
	}
	return b.String()
}
