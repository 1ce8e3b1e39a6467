package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounter_CountIsPositiveAndCached(t *testing.T) {
	c := newTokenCounter()
	n1 := c.count("hello world, this is a test", "gpt-4")
	assert.Greater(t, n1, 0)

	n2 := c.count("hello world, this is a test", "gpt-4")
	assert.Equal(t, n1, n2)
}

func TestNormalizeModelName(t *testing.T) {
	assert.Equal(t, "gpt-4", normalizeModelName("gpt-4o"))
	assert.Equal(t, "gpt-3.5-turbo", normalizeModelName("gpt-3.5-turbo-0125"))
	assert.Equal(t, "gpt-4", normalizeModelName("llama3"))
}
