package postprocess

import (
	"regexp"
	"strings"
)

// Phrases captioning models emit that carry no information.
var captionBoilerplate = []string{
	"arafed ",
	"araffe ",
	"arafe ",
	"there is ",
	"there are ",
	"a picture of ",
	"an image of ",
	"a close up of ",
}

var (
	genderedNoun  = regexp.MustCompile(`\b(?:wo)?man\b`)
	repeatedSpace = regexp.MustCompile(`\s+`)
)

// CleanCaption strips known boilerplate from a generated caption and
// replaces "man" and "woman" with "person".
func CleanCaption(s string) string {
	out := strings.ToLower(strings.TrimSpace(s))
	for _, p := range captionBoilerplate {
		out = strings.ReplaceAll(out, p, "")
	}
	out = genderedNoun.ReplaceAllString(out, "person")
	out = repeatedSpace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
