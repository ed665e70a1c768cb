// Package intent classifies raw user input into a generation request.
package intent

import (
	"strings"
	"unicode"

	"mediachat/pkg/mediatypes"
)

// category associates a generation type with the command phrases that
// select it. Triggers are matched case-insensitively as prefixes.
type category struct {
	genType  mediatypes.GenerationType
	triggers []string
}

// categories are checked in order; the first match wins.
var categories = []category{
	{genType: mediatypes.GenerationImage, triggers: []string{"generate image", "/image"}},
	{genType: mediatypes.GenerationVideo, triggers: []string{"generate video", "/video"}},
}

// Classify maps input to a GenerationIntent. It never fails: input that
// matches no command is a text request whose prompt is the input itself,
// including the empty string.
func Classify(input string) mediatypes.GenerationIntent {
	for _, cat := range categories {
		trigger, ok := longestTrigger(input, cat.triggers)
		if !ok {
			continue
		}
		return mediatypes.GenerationIntent{
			Type:   cat.genType,
			Prompt: stripTrigger(input, trigger),
		}
	}

	return mediatypes.GenerationIntent{Type: mediatypes.GenerationText, Prompt: input}
}

// longestTrigger returns the longest trigger that prefixes input.
func longestTrigger(input string, triggers []string) (string, bool) {
	best := ""
	for _, trigger := range triggers {
		if hasPrefixFold(input, trigger) && len(trigger) > len(best) {
			best = trigger
		}
	}
	return best, best != ""
}

// stripTrigger removes trigger and an optional following "of" word, then
// trims surrounding whitespace.
func stripTrigger(input, trigger string) string {
	rest := input[len(trigger):]

	trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
	if len(trimmed) < len(rest) || rest == "" {
		// "of" only counts as a word of its own: "generate image office" keeps "office".
		if hasPrefixFold(trimmed, "of") {
			after := trimmed[len("of"):]
			if after == "" || startsWithSpace(after) {
				trimmed = after
			}
		}
	}

	return strings.TrimSpace(trimmed)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}
