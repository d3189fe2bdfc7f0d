package orderedset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwapDelete(t *testing.T) {
	s := New[string]()
	for _, v := range []string{"a", "b", "c", "d"} {
		assert.True(t, s.Add(v))
	}
	assert.False(t, s.Add("b"))

	assert.True(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "d", "c"}, s.Values())
	assert.Equal(t, "d", s.At(1))

	assert.True(t, s.Remove("c"))
	assert.False(t, s.Remove("c"))
	assert.Equal(t, []string{"a", "d"}, s.Values())
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Contains("b"))

	assert.True(t, s.Add("b"))
	assert.Equal(t, []string{"a", "d", "b"}, s.Values())

	c := s.Clone()
	c.Remove("a")
	assert.Equal(t, []string{"a", "d", "b"}, s.Values())
	i, ok := c.IndexOf("b")
	assert.True(t, ok)
	assert.Equal(t, 0, i)
}
