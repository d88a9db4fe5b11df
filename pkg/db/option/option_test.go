package option

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, PageSize(0, 0))
	assert.Equal(t, 10, PageSize(0, 10))
	assert.Equal(t, 25, PageSize(25, 10))
	assert.Equal(t, MaxPageSize, PageSize(300, 10))
	assert.Equal(t, MaxPageSize, PageSize(-1, 1000))
}
