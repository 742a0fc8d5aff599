package pipeline

import "strings"

// chunkText splits text into fixed-size windows of at most size runes,
// overlapping by overlap runes. Window boundaries back off to the nearest
// whitespace so words are not cut mid-rune. Returns nil for blank input.
func chunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var out []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		// Back off to the last whitespace inside the window, if any is
		// reasonably close, so chunks end on word boundaries.
		cut := end
		for i := end; i > start+size/2; i-- {
			if isSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			out = append(out, chunk)
		}
		step = cut - start - overlap
		if step < 1 {
			step = 1
		}
	}
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
