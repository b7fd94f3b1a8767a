package relaxjson

import (
	"regexp"
	"strings"
)

// stringLiteral is appended to every rewrite as a last alternative so a
// match that starts on an opening quote consumes the whole literal and is
// copied through untouched.
const stringLiteral = `(?P<str>"(?:[^"\\]|\\.)*")`

var (
	bigIntLiteral   = outsideStrings(`\b(?P<digits>\d+)n\b`)
	undefinedToken  = outsideStrings(`\bundefined\b`)
	voidZero        = outsideStrings(`\bvoid\s+0\b`)
	setConstructor  = outsideStrings(`\bnew\s+Set\([^()]*\)`)
	bareKey         = outsideStrings(`(?P<lead>[{,]\s*)(?P<key>[A-Za-z_$][\w$]*)(?P<gap>\s*):`)
	doubleQuotedKey = outsideStrings(`"{1,2}(?P<key>[A-Za-z_$][\w$]*)"{1,2}(?P<gap>\s*):`)
	trailingComma   = outsideStrings(`,(?:\s*,)*(?P<close>\s*[}\]])`)
)

func outsideStrings(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern + `|` + stringLiteral)
}

// Normalize rewrites JavaScript literal syntax into strict JSON. Text inside
// double-quoted strings is never rewritten. The steps run in a fixed order
// and each is applied until it no longer changes the text, so
// Normalize(Normalize(s)) == Normalize(s). Stray key quotes are collapsed
// first so the later rewrites see balanced string literals.
func Normalize(s string) string {
	s = replaceStable(doubleQuotedKey, s, `"${key}"${gap}:`)
	s = normalizeLiterals(s)
	s = replaceStable(bareKey, s, `${lead}"${key}"${gap}:`)
	s = replaceStable(trailingComma, s, `${close}`)
	return s
}

// normalizeLiterals covers the value-level rewrites: BigInt suffixes,
// undefined, void 0 and Set constructors. Set members are dropped.
func normalizeLiterals(s string) string {
	s = replaceStable(bigIntLiteral, s, `"${digits}"`)
	s = replaceStable(undefinedToken, s, "null")
	s = replaceStable(voidZero, s, "null")
	s = replaceStable(setConstructor, s, "[]")
	return s
}

// replaceStable repeats a rewrite until the text stops changing. Every
// rewrite removes the construct it matched, so the loop ends once no
// construct is left.
func replaceStable(re *regexp.Regexp, s, repl string) string {
	for {
		next := replaceOutsideStrings(re, s, repl)
		if next == s {
			return s
		}
		s = next
	}
}

func replaceOutsideStrings(re *regexp.Regexp, s, repl string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	str := re.SubexpIndex("str")
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		if m[2*str] >= 0 {
			b.WriteString(s[m[0]:m[1]])
		} else {
			b.Write(re.ExpandString(nil, repl, s, m))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
