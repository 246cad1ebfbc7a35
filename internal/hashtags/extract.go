// Package hashtags extracts hashtags from user text and ranks trending tags
// with an hourly-bucketed, exponentially decayed score.
package hashtags

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const MaxTagLength = 50

// A tag starts at '#' not preceded by a word character.
var tagPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])#([\p{L}\p{N}_]+)`)

// Extract returns the lower-cased hashtags in text, deduplicated in order of
// first appearance. Tags longer than MaxTagLength are ignored.
func Extract(text string) []string {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if utf8.RuneCountInString(tag) > MaxTagLength {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
