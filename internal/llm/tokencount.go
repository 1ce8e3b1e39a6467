package llm

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// tokenCounter estimates token counts for the local backend, which (unlike
// the cloud provider) never returns usage accounting of its own. Encodings
// are cached per normalized model name, falling back to cl100k_base for
// anything tiktoken doesn't recognize directly.
type tokenCounter struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	return &tokenCounter{cache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *tokenCounter) count(text, model string) int {
	enc := c.encodingFor(model)
	if enc == nil {
		// Fall back to a word-count estimate if no encoding is available at
		// all (tiktoken could not load the cl100k_base encoding data).
		return len(strings.Fields(text))
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *tokenCounter) encodingFor(model string) *tiktoken.Tiktoken {
	key := normalizeModelName(model)

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[key]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(key)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil
		}
	}
	c.cache[key] = enc
	return enc
}

func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.Contains(model, "gpt-4"):
		return "gpt-4"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}
