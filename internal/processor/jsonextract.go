package processor

import "strings"

// extractFirstJSONValue finds the first balanced {...} or [...] span in s,
// tolerating a model that wraps its JSON in prose or a code fence. Returns
// false when no balanced span is found.
func extractFirstJSONValue(s string) (string, bool) {
	openObj, openArr := strings.Index(s, "{"), strings.Index(s, "[")
	start := openObj
	openCh, closeCh := byte('{'), byte('}')
	if start == -1 || (openArr != -1 && openArr < start) {
		start = openArr
		openCh, closeCh = '[', ']'
	}
	if start == -1 {
		return "", false
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
