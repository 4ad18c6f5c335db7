package knowledge

import (
	"strings"
	"testing"
)

func TestSplitTextPacksSentences(t *testing.T) {
	text := "First sentence here. Second sentence follows! Third one asks? Fourth closes."
	chunks := SplitText(text, 50)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	for _, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk exceeds limit (%d chars): %q", len(c), c)
		}
	}
	rejoined := strings.Join(chunks, " ")
	if rejoined != text {
		t.Errorf("chunks lost content:\n got %q\nwant %q", rejoined, text)
	}
}

func TestSplitTextLongSentence(t *testing.T) {
	long := strings.Repeat("word ", 30) + "end."
	chunks := SplitText(long, 50)
	if len(chunks) != 1 {
		t.Errorf("oversized sentence split mid-sentence: %v", chunks)
	}
}

func TestSplitTextEmpty(t *testing.T) {
	if chunks := SplitText("   \n  ", 100); chunks != nil {
		t.Errorf("expected no chunks, got %v", chunks)
	}
}

func TestSplitTextNoTerminator(t *testing.T) {
	chunks := SplitText("a fragment without punctuation", 100)
	if len(chunks) != 1 || chunks[0] != "a fragment without punctuation" {
		t.Errorf("unterminated text not kept whole: %v", chunks)
	}
}
