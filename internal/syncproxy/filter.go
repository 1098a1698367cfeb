package syncproxy

import (
	"strconv"
	"strings"
)

// OwnershipFilter builds the row-level predicate restricting a shape to the
// caller's threads. The ids are server-resolved integers; no client input
// reaches the predicate. An empty set yields the literal always-false
// predicate, never an unfiltered shape.
func OwnershipFilter(column string, ids []int64) string {
	if len(ids) == 0 {
		return "FALSE"
	}

	var b strings.Builder
	b.WriteString(column)
	b.WriteString(" IN (")
	for i, id := range ids {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteString(")")
	return b.String()
}
