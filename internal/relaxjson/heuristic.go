package relaxjson

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
)

var (
	productsSpan  = regexp.MustCompile(`"products"\s*:\s*(\[[^\[\]]*\])`)
	shallowObject = regexp.MustCompile(`\{(?:[^{}]|\{[^{}]*\})*\}`)
)

const (
	// DefaultMinObjectSize is the serialized size an object must exceed to
	// be accepted by the shallow-object scan.
	DefaultMinObjectSize = 100

	debugPrefixLength = 5000
)

// ArtifactWriter persists debug artifacts and reports where they went.
type ArtifactWriter interface {
	WriteDebug(content []byte) (string, error)
}

// recoverHeuristically pulls usable data out of a fragment that failed strict
// parsing. The first shallow object over the size cutoff wins, which is a
// heuristic: a document may hold several candidates.
func (p *Parser) recoverHeuristically(original, normalized string, parseErr error) (any, error) {
	location := p.writeDebug(original, normalized)

	if match := productsSpan.FindStringSubmatch(normalized); len(match) == 2 {
		var products []any
		if err := json.Unmarshal([]byte(match[1]), &products); err == nil {
			return map[string]any{"products": products}, nil
		}
	}

	for _, candidate := range shallowObject.FindAllString(normalized, -1) {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
			continue
		}
		encoded, err := json.Marshal(decoded)
		if err != nil {
			continue
		}
		if len(encoded) > p.minObjectSize {
			return decoded, nil
		}
	}

	return nil, &MalformedDataError{ArtifactLocation: location, Err: parseErr}
}

func (p *Parser) writeDebug(original, normalized string) string {
	if p.artifacts == nil {
		log.Printf("Warning: no debug artifact writer configured")
		return ""
	}
	location, err := p.artifacts.WriteDebug(debugDocument(original, normalized))
	if err != nil {
		log.Printf("Warning: failed to write debug artifact: %v", err)
		return ""
	}
	log.Printf("Strict parse failed, debug data saved to %s", location)
	return location
}

func debugDocument(original, normalized string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "=== ORIGINAL (first %d chars) ===\n", debugPrefixLength)
	b.WriteString(prefix(original, debugPrefixLength))
	fmt.Fprintf(&b, "\n\n=== NORMALIZED (first %d chars) ===\n", debugPrefixLength)
	b.WriteString(prefix(normalized, debugPrefixLength))
	b.WriteString("\n")
	return []byte(b.String())
}

func prefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
