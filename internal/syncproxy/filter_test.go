package syncproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnershipFilterEmptySetMatchesNothing(t *testing.T) {
	// A user with zero threads must get an always-false predicate,
	// never an unfiltered shape.
	assert.Equal(t, "FALSE", OwnershipFilter("thread_id", nil))
	assert.Equal(t, "FALSE", OwnershipFilter("thread_id", []int64{}))
}

func TestOwnershipFilterFormatsIDs(t *testing.T) {
	assert.Equal(t, "id IN (7)", OwnershipFilter("id", []int64{7}))
	assert.Equal(t, "thread_id IN (1,2,3)", OwnershipFilter("thread_id", []int64{1, 2, 3}))
}

func TestOwnershipFilterDisjointUsers(t *testing.T) {
	// Filters for users with disjoint thread sets share no id literal.
	a := OwnershipFilter("thread_id", []int64{1, 2})
	b := OwnershipFilter("thread_id", []int64{3, 4})
	assert.Equal(t, "thread_id IN (1,2)", a)
	assert.Equal(t, "thread_id IN (3,4)", b)
	assert.NotContains(t, a, "3")
	assert.NotContains(t, b, "1")
}
