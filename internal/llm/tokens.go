package llm

import "unicode/utf8"

// EstimateTokens approximates the token count of text without a
// provider round-trip. English prose and code both average close to
// four characters per token across the models we target, so the
// estimate is rune count divided by four, rounded up, with a floor of
// one for non-empty input.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	est := (n + 3) / 4
	if est < 1 {
		est = 1
	}
	return est
}
