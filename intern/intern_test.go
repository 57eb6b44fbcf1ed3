package intern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternDedup(t *testing.T) {
	tb := New()
	assert.EqualValues(t, 0, tb.Intern("index.js"))
	assert.EqualValues(t, 1, tb.Intern("test.js"))
	assert.EqualValues(t, 0, tb.Intern("index.js"))
	assert.Equal(t, 2, tb.Len())
	assert.Equal(t, []string{"index.js", "test.js"}, tb.Strings())
}

func TestAtOutOfRange(t *testing.T) {
	tb := New()
	tb.Intern("a")
	_, ok := tb.At(5)
	assert.False(t, ok)
	s, ok := tb.At(0)
	assert.True(t, ok)
	assert.Equal(t, "a", s)
}

func TestContentsLazyResize(t *testing.T) {
	var c Contents
	assert.Equal(t, "", c.Get(0))
	c.Set(2, "hello")
	assert.Equal(t, "", c.Get(0))
	assert.Equal(t, "", c.Get(1))
	assert.Equal(t, "hello", c.Get(2))
	assert.Equal(t, []int32{0, 1}, c.Missing(3))
}

func TestContentsSetIdempotent(t *testing.T) {
	var c Contents
	c.Set(0, "a")
	c.Set(0, "b")
	assert.Equal(t, "b", c.Get(0))
}
