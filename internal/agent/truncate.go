package agent

import "strings"

// DefaultWordCap is the output-length cap applied to human-facing text.
const DefaultWordCap = 250

// TruncationMarker is appended when output is cut at the word cap.
const TruncationMarker = "… [output truncated]"

// Truncate enforces the word cap on human-facing output. If text exceeds
// cap words, the first cap-10 words are kept and an explicit marker appended.
// Text at or under the cap is returned unchanged.
func Truncate(text string, cap int) string {
	if cap <= 10 {
		cap = DefaultWordCap
	}
	words := strings.Fields(text)
	if len(words) <= cap {
		return text
	}
	kept := words[:cap-10]
	return strings.Join(kept, " ") + " " + TruncationMarker
}
