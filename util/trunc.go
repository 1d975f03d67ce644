package util

// TruncateRightWithSuffix keeps the first n runes of text and appends suffix only if truncation happens.
func TruncateRightWithSuffix(text string, n int, suffix string) string {
	if n <= 0 {
		return suffix
	}

	i := 0
	for j := range text {
		if i == n {
			return text[:j] + suffix
		}
		i++
	}

	return text
}
