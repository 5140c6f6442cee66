// Package segment detects sentence boundaries inside incrementally
// accumulated text using a priority-tiered forward scan.
//
// Tiers are evaluated top-down and each has its own minimum accumulated
// length (in runes) before it may fire. Within a tier the earliest
// qualifying match wins — a forward scan, not a search for the last
// punctuation mark. This avoids both premature splits on rhetorical
// punctuation and merged, overlong bubbles on unpunctuated runs.
//
// Detect is a pure function over the current bubble's text only; it never
// sees prior bubbles and never trims, so the returned offset partitions the
// input exactly.
package segment

import "unicode/utf8"

// Policy holds the per-tier minimum accumulated rune counts. The floors are
// fixed policy constants of the pipeline; they are configurable so tests and
// deployments can tune them, but they are never varied per call.
type Policy struct {
	// ListFloor gates numbered-list line breaks (newline followed by digits
	// and a delimiter).
	ListFloor int
	// ParagraphFloor gates paragraph breaks (double newline).
	ParagraphFloor int
	// StopFloor gates sentence-final stop punctuation (。．and "." followed
	// by whitespace).
	StopFloor int
	// PauseFloor gates semicolons and ellipses.
	PauseFloor int
	// EmphasisFloor gates exclamation and question marks. Deliberately high:
	// repeated short exclamations must stay in one bubble.
	EmphasisFloor int
	// NewlineFloor gates bare newlines.
	NewlineFloor int
	// CommaFloor gates comma-class punctuation, the fallback for long
	// unpunctuated runs.
	CommaFloor int
}

// DefaultPolicy returns the standard tier floors.
func DefaultPolicy() Policy {
	return Policy{
		ListFloor:      8,
		ParagraphFloor: 8,
		StopFloor:      20,
		PauseFloor:     30,
		EmphasisFloor:  80,
		NewlineFloor:   20,
		CommaFloor:     80,
	}
}

// Detect returns the byte offset just past the highest-priority boundary in
// text, or ok=false if no tier fires yet. Splitting text at the offset
// yields the finalized sentence prefix and the remainder that seeds the next
// bubble. The offset may equal len(text) when the boundary character is the
// final rune.
func (p Policy) Detect(text string) (offset int, ok bool) {
	total := utf8.RuneCountInString(text)

	tiers := []struct {
		floor int
		scan  func(string) int
	}{
		{p.ListFloor, scanNumberedList},
		{p.ParagraphFloor, scanParagraph},
		{p.StopFloor, scanStop},
		{p.PauseFloor, scanPause},
		{p.EmphasisFloor, scanEmphasis},
		{p.NewlineFloor, scanNewline},
		{p.CommaFloor, scanComma},
	}
	for _, t := range tiers {
		if total < t.floor {
			continue
		}
		if off := t.scan(text); off >= 0 {
			return off, true
		}
	}
	return 0, false
}

// scanNumberedList finds a newline followed by one or more ASCII digits and
// a list delimiter. The split lands after the newline so the item number
// opens the next bubble.
func scanNumberedList(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' {
			continue
		}
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == i+1 || j >= len(s) {
			// No digits, or the delimiter has not arrived yet.
			continue
		}
		switch r, _ := utf8.DecodeRuneInString(s[j:]); r {
		case '.', ')', '、', '．':
			return i + 1
		}
	}
	return -1
}

// scanParagraph finds a double newline; the split lands after the second.
func scanParagraph(s string) int {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '\n' && s[i+1] == '\n' {
			return i + 2
		}
	}
	return -1
}

// scanStop finds sentence-final stop punctuation. Full-width stops fire
// unconditionally; an ASCII period needs a following whitespace byte so
// decimals, abbreviations, and a period still mid-arrival do not split.
func scanStop(s string) int {
	for i, r := range s {
		switch r {
		case '。', '．':
			return i + utf8.RuneLen(r)
		case '.':
			if i+1 < len(s) {
				switch s[i+1] {
				case ' ', '\n', '\r', '\t':
					return i + 1
				}
			}
		}
	}
	return -1
}

// scanPause finds semicolons and ellipses. Consecutive ellipsis runes are
// consumed as one boundary so "……" is never cut in half.
func scanPause(s string) int {
	for i, r := range s {
		switch r {
		case ';', '；':
			return i + utf8.RuneLen(r)
		case '…':
			end := i + utf8.RuneLen(r)
			for end < len(s) {
				nr, sz := utf8.DecodeRuneInString(s[end:])
				if nr != '…' {
					break
				}
				end += sz
			}
			return end
		}
	}
	return -1
}

// scanEmphasis finds exclamation and question marks, consuming a run of
// consecutive marks ("?!", "！！") as one boundary.
func scanEmphasis(s string) int {
	for i, r := range s {
		if !isEmphasis(r) {
			continue
		}
		end := i + utf8.RuneLen(r)
		for end < len(s) {
			nr, sz := utf8.DecodeRuneInString(s[end:])
			if !isEmphasis(nr) {
				break
			}
			end += sz
		}
		return end
	}
	return -1
}

func isEmphasis(r rune) bool {
	return r == '!' || r == '！' || r == '?' || r == '？'
}

// scanNewline finds the first bare newline; the split lands after it.
func scanNewline(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return i + 1
		}
	}
	return -1
}

// scanComma finds comma-class punctuation; the split lands after the mark.
func scanComma(s string) int {
	for i, r := range s {
		switch r {
		case ',', '，', '、':
			return i + utf8.RuneLen(r)
		}
	}
	return -1
}
