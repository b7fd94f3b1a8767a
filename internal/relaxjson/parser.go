// Package relaxjson recovers JSON data from JavaScript embedded in web pages:
// page-global state assignments, IIFE return values and object literals that
// use JavaScript-only syntax.
package relaxjson

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Options configures a Parser. Zero values select the defaults.
type Options struct {
	Identifiers   []string
	MinObjectSize int
	Artifacts     ArtifactWriter
}

// Strategy turns a located fragment into a recovered structure, or returns
// errNotApplicable to hand over to the next strategy.
type Strategy func(Fragment) (any, error)

type namedStrategy struct {
	name string
	run  Strategy
}

type Parser struct {
	anchors       []anchor
	minObjectSize int
	artifacts     ArtifactWriter
	strategies    []namedStrategy
}

func New(opts Options) *Parser {
	identifiers := opts.Identifiers
	if len(identifiers) == 0 {
		identifiers = DefaultIdentifiers
	}
	minSize := opts.MinObjectSize
	if minSize <= 0 {
		minSize = DefaultMinObjectSize
	}
	artifacts := opts.Artifacts
	if artifacts == nil {
		artifacts = FileWriter{Path: "debug_extracted_data.txt"}
	}

	p := &Parser{
		anchors:       buildAnchors(identifiers),
		minObjectSize: minSize,
		artifacts:     artifacts,
	}
	p.bindStrategies()
	return p
}

// WithArtifacts returns a copy of p that writes debug artifacts to w.
func (p *Parser) WithArtifacts(w ArtifactWriter) *Parser {
	c := &Parser{
		anchors:       p.anchors,
		minObjectSize: p.minObjectSize,
		artifacts:     w,
	}
	c.bindStrategies()
	return c
}

func (p *Parser) bindStrategies() {
	p.strategies = []namedStrategy{
		{name: "direct", run: p.parseDirect},
		{name: "reconstruct", run: p.parseWrapper},
		{name: "heuristic", run: p.parseHeuristic},
	}
}

// Parse locates the embedded data in raw and recovers it.
func (p *Parser) Parse(raw string) (any, error) {
	fragment, err := p.Locate(raw)
	if err != nil {
		return nil, err
	}
	return p.Recover(fragment)
}

// Recover runs the strategy chain over a fragment until one succeeds.
func (p *Parser) Recover(fragment Fragment) (any, error) {
	var lastErr error
	for _, strategy := range p.strategies {
		result, err := strategy.run(fragment)
		if errors.Is(err, errNotApplicable) {
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = &MalformedDataError{}
	}
	return nil, lastErr
}

func (p *Parser) parseDirect(fragment Fragment) (any, error) {
	if fragment.Wrapper {
		return nil, errNotApplicable
	}
	var decoded any
	if err := json.Unmarshal([]byte(Normalize(fragment.Text)), &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func (p *Parser) parseWrapper(fragment Fragment) (any, error) {
	if !fragment.Wrapper {
		return nil, errNotApplicable
	}
	return reconstructAssignments(fragment.Text), nil
}

func (p *Parser) parseHeuristic(fragment Fragment) (any, error) {
	if fragment.Wrapper {
		return nil, errNotApplicable
	}
	normalized := Normalize(fragment.Text)
	var decoded any
	parseErr := json.Unmarshal([]byte(normalized), &decoded)
	if parseErr == nil {
		return decoded, nil
	}
	return p.recoverHeuristically(fragment.Text, normalized, parseErr)
}

// FileWriter writes debug artifacts to a single file path.
type FileWriter struct {
	Path string
}

func (w FileWriter) WriteDebug(content []byte) (string, error) {
	if dir := filepath.Dir(w.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(w.Path, content, 0o600); err != nil {
		return "", err
	}
	return w.Path, nil
}
