// Package ingest loads documents into the vector index: split into
// overlapping chunks, embed each chunk, upsert in batches.
package ingest

// SplitText cuts text into rune-safe chunks of at most size runes,
// with each chunk repeating the last overlap runes of its predecessor
// so a code or sentence on a boundary is retrievable from either side.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
