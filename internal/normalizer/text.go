package normalizer

import "djeworker/pkg/utils"

// Full text limits applied before storage.
const (
	DefaultMaxTextLength = 1000000
	TruncationMarker     = "... (truncado)"
)

var textHelper = utils.NewStringHelper()

// CollapseWhitespace turns line breaks and repeated whitespace into single spaces.
func CollapseWhitespace(text string) string {
	return textHelper.NormalizeWhitespace(text)
}

// CapText limits text to maxLen characters, appending TruncationMarker on overflow.
func CapText(text string, maxLen int) (string, bool) {
	return textHelper.TruncateRunes(text, maxLen, TruncationMarker)
}
