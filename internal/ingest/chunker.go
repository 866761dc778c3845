package ingest

import "strings"

// defaultChunkSize caps chunk length in runes. Roughly a page of text,
// small enough to embed well.
const defaultChunkSize = 1200

// SplitChunks breaks text into paragraph-aligned chunks of at most maxLen
// runes. Paragraphs are packed greedily; a single paragraph longer than
// maxLen is hard-split. If maxLen <= 0 the default is used.
func SplitChunks(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = defaultChunkSize
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		runes := []rune(para)
		if len(runes) > maxLen {
			flush()
			for len(runes) > maxLen {
				chunks = append(chunks, string(runes[:maxLen]))
				runes = runes[maxLen:]
			}
			if len(runes) > 0 {
				chunks = append(chunks, string(runes))
			}
			continue
		}

		if currentLen > 0 && currentLen+2+len(runes) > maxLen {
			flush()
		}
		if currentLen > 0 {
			current.WriteString("\n\n")
			currentLen += 2
		}
		current.WriteString(para)
		currentLen += len(runes)
	}
	flush()

	return chunks
}
