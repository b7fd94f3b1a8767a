package relaxjson

import (
	"fmt"
	"regexp"
	"strings"
)

// Fragment is the substring of a raw blob believed to hold the data-bearing
// expression.
type Fragment struct {
	Text    string
	Anchor  string
	Wrapper bool
}

type anchor struct {
	name    string
	pattern *regexp.Regexp
}

var (
	returnAnchor      = regexp.MustCompile(`(?s)return\s*(\{.*\});`)
	declarationAnchor = regexp.MustCompile(`(?s)(?:^|[\s;])(?:const|let|var)\s+[A-Za-z_$][\w$]*\s*=\s*(\{.*\}|\[.*\])\s*;`)
)

// DefaultIdentifiers are the page-global names probed when no others are
// configured.
var DefaultIdentifiers = []string{"__NUXT__", "__INITIAL_STATE__"}

func buildAnchors(identifiers []string) []anchor {
	var bare, windowed []anchor
	for _, ident := range identifiers {
		ident = strings.TrimSpace(ident)
		if ident == "" {
			continue
		}
		quoted := regexp.QuoteMeta(ident)
		bare = append(bare, anchor{
			name:    ident,
			pattern: regexp.MustCompile(`(?s)(?:^|[^\w$.])` + quoted + `\s*=\s*(.*?);\s*</script>`),
		})
		windowed = append(windowed, anchor{
			name:    "window." + ident,
			pattern: regexp.MustCompile(`(?s)window\.` + quoted + `\s*=\s*(.*?);\s*</script>`),
		})
	}
	return append(bare, windowed...)
}

// Locate finds the data-bearing fragment inside raw. Global assignments
// closed by a script tag win, then the namespaced spelling, then raw text
// that already is a literal or function wrapper, then a returned object, then
// a plain declaration.
func (p *Parser) Locate(raw string) (Fragment, error) {
	for _, a := range p.anchors {
		if match := a.pattern.FindStringSubmatch(raw); len(match) == 2 {
			return newFragment(match[1], a.name), nil
		}
	}

	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	if isFunctionWrapper(trimmed) || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return newFragment(trimmed, "literal"), nil
	}

	if match := returnAnchor.FindStringSubmatch(raw); len(match) == 2 {
		return newFragment(match[1], "return"), nil
	}
	if match := declarationAnchor.FindStringSubmatch(raw); len(match) == 2 {
		return newFragment(match[1], "declaration"), nil
	}

	return Fragment{}, fmt.Errorf("%w (looked for %s)", ErrAnchorNotFound, p.anchorNames())
}

func (p *Parser) anchorNames() string {
	names := make([]string, 0, len(p.anchors)+2)
	for _, a := range p.anchors {
		names = append(names, a.name)
	}
	names = append(names, "return", "declaration")
	return strings.Join(names, ", ")
}

func newFragment(text, anchorName string) Fragment {
	text = strings.TrimSpace(text)
	return Fragment{Text: text, Anchor: anchorName, Wrapper: isFunctionWrapper(text)}
}

func isFunctionWrapper(text string) bool {
	text = strings.TrimLeft(strings.TrimSpace(text), "(!")
	return strings.HasPrefix(text, "function")
}
