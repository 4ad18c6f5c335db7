package knowledge

import "strings"

// DefaultChunkSize is the target chunk length in characters. Sentences are
// packed into a chunk until adding the next one would exceed this.
const DefaultChunkSize = 300

// SplitText breaks text into sentence-aligned chunks of at most maxLen
// characters. A single sentence longer than maxLen becomes its own chunk
// rather than being split mid-sentence. Empty input yields no chunks.
func SplitText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	for _, s := range sentences {
		if cur.Len() > 0 && cur.Len()+1+len(s) > maxLen {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// splitSentences splits on terminal punctuation followed by whitespace,
// keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		cur.WriteRune(r)
		if isTerminal(r) && (i+1 == len(runes) || isSpace(runes[i+1])) {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
