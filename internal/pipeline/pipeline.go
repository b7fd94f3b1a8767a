// Package pipeline runs one fetch, parse, report and save cycle.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/matthewgall/shelfscrape/internal/artifacts"
	"github.com/matthewgall/shelfscrape/internal/fetcher"
	"github.com/matthewgall/shelfscrape/internal/models"
	"github.com/matthewgall/shelfscrape/internal/relaxjson"
	"github.com/matthewgall/shelfscrape/internal/report"
)

const (
	DefaultOutputKey = "product_data.json"
	DefaultDebugKey  = "debug_extracted_data.txt"

	runsPrefix = "runs"
)

// runSeq keeps run prefixes unique when two runs share a timestamp.
var runSeq atomic.Uint64

// Recorder stores run history. *db.DB satisfies it.
type Recorder interface {
	InsertExtraction(ctx context.Context, e *models.Extraction) error
}

// Fetcher retrieves raw page text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Forgetter is implemented by fetchers that cache pages. A page that fails
// to parse is forgotten so the next run fetches it again.
type Forgetter interface {
	Forget(ctx context.Context, url string) error
}

type Options struct {
	Parser    *relaxjson.Parser
	Fetcher   Fetcher
	Store     artifacts.Storage
	History   Recorder
	OutputKey string
	// DebugKey is where the parser writes its debug artifact. With fixed
	// keys each run first removes the one an earlier run left behind.
	DebugKey string
	// RunKeys gives every run its own output and debug keys under runs/
	// instead of overwriting the fixed ones.
	RunKeys bool
}

type Pipeline struct {
	parser    *relaxjson.Parser
	fetcher   Fetcher
	store     artifacts.Storage
	history   Recorder
	outputKey string
	debugKey  string
	runKeys   bool
}

// keySet holds the storage keys of one run.
type keySet struct {
	output string
	debug  string
}

// Result is a successful run.
type Result struct {
	Source         string        `json:"source"`
	Structure      any           `json:"data"`
	Report         report.Report `json:"report"`
	OutputLocation string        `json:"output_location,omitempty"`
	ExtractionID   int64         `json:"extraction_id,omitempty"`
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		parser:    opts.Parser,
		fetcher:   opts.Fetcher,
		store:     opts.Store,
		history:   opts.History,
		outputKey: opts.OutputKey,
		debugKey:  opts.DebugKey,
		runKeys:   opts.RunKeys,
	}
	if p.parser == nil {
		p.parser = relaxjson.New(relaxjson.Options{})
	}
	if p.fetcher == nil {
		p.fetcher = fetcher.New(fetcher.Options{})
	}
	if p.store == nil {
		p.store = artifacts.NewLocal(".")
	}
	if p.outputKey == "" {
		p.outputKey = DefaultOutputKey
	}
	if p.debugKey == "" {
		p.debugKey = DefaultDebugKey
	}
	return p
}

// WithRunKeys returns a pipeline sharing p's components that stores each
// run under its own keys. The API server uses it so concurrent requests
// never overwrite each other's files.
func (p *Pipeline) WithRunKeys() *Pipeline {
	return &Pipeline{
		parser:    p.parser,
		fetcher:   p.fetcher,
		store:     p.store,
		history:   p.history,
		outputKey: p.outputKey,
		debugKey:  p.debugKey,
		runKeys:   true,
	}
}

// ExtractFile processes a saved page from disk.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) (*Result, error) {
	raw, err := fetcher.ReadFile(path)
	if err != nil {
		p.record(ctx, path, nil, "", err)
		return nil, err
	}
	return p.run(ctx, path, raw)
}

// ExtractURL fetches a live page and processes it.
func (p *Pipeline) ExtractURL(ctx context.Context, url string) (*Result, error) {
	raw, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		p.record(ctx, url, nil, "", err)
		return nil, err
	}
	result, err := p.run(ctx, url, raw)
	if err != nil && isParseFailure(err) {
		p.forget(ctx, url)
	}
	return result, err
}

// Parse recovers and reports raw text without saving output or recording
// history. A heuristic recovery still writes the parser's debug artifact.
func (p *Pipeline) Parse(raw string) (*Result, error) {
	return p.parse(raw, p.keysFor(raw))
}

func (p *Pipeline) parse(raw string, keys keySet) (*Result, error) {
	parser := p.parser
	if p.runKeys {
		parser = parser.WithArtifacts(artifacts.DebugWriter{Store: p.store, Key: keys.debug})
	}
	structure, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &Result{Structure: structure, Report: report.Build(structure)}, nil
}

func (p *Pipeline) run(ctx context.Context, source, raw string) (*Result, error) {
	keys := p.keysFor(raw)
	if !p.runKeys {
		if err := p.store.Delete(ctx, keys.debug); err != nil {
			log.Printf("Warning: failed to remove stale debug artifact %s: %v", p.store.Location(keys.debug), err)
		}
	}

	result, err := p.parse(raw, keys)
	if err != nil {
		p.record(ctx, source, nil, "", err)
		return nil, err
	}
	result.Source = source

	encoded, err := encodeOutput(result.Structure)
	if err == nil {
		result.OutputLocation, err = p.save(ctx, keys.output, encoded)
	}
	if err != nil {
		p.record(ctx, source, result, "", err)
		return nil, err
	}

	result.ExtractionID = p.record(ctx, source, result, result.OutputLocation, nil)
	return result, nil
}

// Save writes the structure as indented JSON, keeping non-ASCII text as is.
// With run keys every call gets a fresh key.
func (p *Pipeline) Save(ctx context.Context, structure any) (string, error) {
	encoded, err := encodeOutput(structure)
	if err != nil {
		return "", err
	}
	return p.save(ctx, p.keysFor(string(encoded)).output, encoded)
}

func (p *Pipeline) save(ctx context.Context, key string, encoded []byte) (string, error) {
	if err := p.store.Save(ctx, key, bytes.NewReader(encoded)); err != nil {
		return "", fmt.Errorf("saving output: %w", err)
	}
	return p.store.Location(key), nil
}

func encodeOutput(structure any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(structure); err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}
	return buf.Bytes(), nil
}

// keysFor returns the fixed keys, or with run keys a fresh prefix of the
// form runs/<utc time>-<seq>-<content hash>/ holding both files.
func (p *Pipeline) keysFor(content string) keySet {
	if !p.runKeys {
		return keySet{output: p.outputKey, debug: p.debugKey}
	}
	sum := sha256.Sum256([]byte(content))
	prefix := path.Join(runsPrefix, fmt.Sprintf("%s-%d-%s",
		time.Now().UTC().Format("20060102T150405.000000000"),
		runSeq.Add(1),
		hex.EncodeToString(sum[:4]),
	))
	return keySet{
		output: path.Join(prefix, path.Base(filepath.ToSlash(p.outputKey))),
		debug:  path.Join(prefix, path.Base(filepath.ToSlash(p.debugKey))),
	}
}

func (p *Pipeline) forget(ctx context.Context, url string) {
	forgetter, ok := p.fetcher.(Forgetter)
	if !ok {
		return
	}
	if err := forgetter.Forget(ctx, url); err != nil {
		log.Printf("Warning: failed to drop cached page %s: %v", url, err)
	}
}

func isParseFailure(err error) bool {
	return errors.Is(err, relaxjson.ErrAnchorNotFound) || errors.Is(err, relaxjson.ErrMalformedData)
}

func (p *Pipeline) record(ctx context.Context, source string, result *Result, output string, runErr error) int64 {
	if p.history == nil {
		return 0
	}

	extraction := &models.Extraction{Source: source, Status: statusFor(runErr)}
	if result != nil {
		extraction.ProductCount = len(result.Report.Products)
		extraction.TopLevelKeys = result.Report.TopLevelKeys
	}
	if output != "" {
		extraction.OutputLocation = &output
	}
	if runErr != nil {
		message := runErr.Error()
		extraction.ErrorMessage = &message
		var malformed *relaxjson.MalformedDataError
		if errors.As(runErr, &malformed) && malformed.ArtifactLocation != "" {
			location := malformed.ArtifactLocation
			extraction.ArtifactLocation = &location
		}
	}

	if err := p.history.InsertExtraction(ctx, extraction); err != nil {
		log.Printf("Warning: failed to record extraction for %s: %v", source, err)
		return 0
	}
	return extraction.ID
}

func statusFor(err error) models.ExtractionStatus {
	switch {
	case err == nil:
		return models.StatusSucceeded
	case errors.Is(err, models.ErrResourceNotFound), errors.Is(err, relaxjson.ErrAnchorNotFound):
		return models.StatusNotFound
	case errors.Is(err, relaxjson.ErrMalformedData):
		return models.StatusMalformed
	default:
		return models.StatusFailed
	}
}
