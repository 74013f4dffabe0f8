package minimact

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

var (
	minifier     *minify.M
	minifierOnce sync.Once
)

// getMinifier returns a configured HTML minifier (singleton).
func getMinifier() *minify.M {
	minifierOnce.Do(func() {
		minifier = minify.New()
		minifier.AddFunc("text/html", html.Minify)
	})
	return minifier
}

var (
	exprToken         = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	interTagSpace     = regexp.MustCompile(`>\s+<`)
	collapseSpace     = regexp.MustCompile(`\s+`)
	exprGuardTemplate = "❦%d❦" // placeholder unlikely to occur in markup
)

// normalizeSource prepares a component source for extraction: collapses
// insignificant whitespace so structural paths do not depend on source
// formatting. Expression tokens are guarded with placeholders before the
// HTML minifier runs and restored afterwards, since the minifier has no
// knowledge of the expression syntax.
func normalizeSource(src string) string {
	var guarded []string
	protected := exprToken.ReplaceAllStringFunc(src, func(tok string) string {
		guarded = append(guarded, tok)
		return fmt.Sprintf(exprGuardTemplate, len(guarded)-1)
	})

	minified, err := getMinifier().String("text/html", protected)
	if err != nil {
		// Fall back to conservative whitespace collapsing on minifier error.
		minified = strings.TrimSpace(collapseSpace.ReplaceAllString(protected, " "))
		minified = interTagSpace.ReplaceAllString(minified, "><")
	}

	for i, tok := range guarded {
		minified = strings.Replace(minified, fmt.Sprintf(exprGuardTemplate, i), tok, 1)
	}
	return minified
}
