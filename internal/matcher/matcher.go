// Package matcher picks the search result that best matches a product name,
// using a chat model when one is configured and edit distance otherwise.
package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/matthewgall/shelfscrape/internal/search"
	"github.com/matthewgall/shelfscrape/internal/templates"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = "gpt-4o"

	SourceLLM   = "llm"
	SourceLocal = "local"
)

var ErrNoResults = errors.New("no search results to match")

// Decision is the outcome of a match. Raw holds the model's text verbatim;
// the remaining fields are filled when that text parses.
type Decision struct {
	Index       int            `json:"index"`
	Score       float64        `json:"score"`
	Explanation string         `json:"explanation"`
	Source      string         `json:"source"`
	Parsed      bool           `json:"parsed"`
	Raw         string         `json:"raw"`
	Result      *search.Result `json:"result,omitempty"`
}

type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	Site      string
	Templates *templates.Set
}

type Matcher struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	site    string
	prompts *templates.Set
}

func New(opts Options) *Matcher {
	m := &Matcher{
		model:   opts.Model,
		timeout: opts.Timeout,
		site:    siteHost(opts.Site),
		prompts: opts.Templates,
	}
	if m.model == "" {
		m.model = DefaultModel
	}
	if m.timeout <= 0 {
		m.timeout = 60 * time.Second
	}
	if m.prompts == nil {
		m.prompts = templates.MustLoad()
	}
	if strings.TrimSpace(opts.APIKey) != "" {
		cfg := openai.DefaultConfig(opts.APIKey)
		if baseURL := strings.TrimRight(opts.BaseURL, "/"); baseURL != "" {
			cfg.BaseURL = baseURL
		}
		m.client = openai.NewClientWithConfig(cfg)
	}
	return m
}

// UsesModel reports whether matches go through the chat model.
func (m *Matcher) UsesModel() bool {
	return m.client != nil
}

func (m *Matcher) Match(ctx context.Context, product string, results []search.Result) (*Decision, error) {
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	if m.client == nil {
		return matchLocally(product, results), nil
	}

	instructions, err := m.prompts.String(templates.Prompt, map[string]string{
		"Product": product,
		"Site":    m.site,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}
	input, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encoding results: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructions},
			{Role: openai.ChatMessageRoleUser, Content: string(input)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	decision := parseDecision(resp.Choices[0].Message.Content, results)
	decision.Source = SourceLLM
	return decision, nil
}

type modelAnswer struct {
	Index       *int    `json:"index"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// parseDecision reads the model's JSON answer. Unparseable text still yields
// a decision carrying the raw output.
func parseDecision(raw string, results []search.Result) *Decision {
	decision := &Decision{Index: -1, Raw: raw}

	var answer modelAnswer
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &answer); err != nil || answer.Index == nil {
		return decision
	}
	decision.Index = *answer.Index
	decision.Score = answer.Score
	decision.Explanation = answer.Explanation
	decision.Parsed = true
	if decision.Index >= 0 && decision.Index < len(results) {
		decision.Result = &results[decision.Index]
	}
	return decision
}

// StripCodeFence removes a surrounding markdown code block.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		text = text[newline+1:]
	}
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimSuffix(text, "```"))
}

func matchLocally(product string, results []search.Result) *Decision {
	target := normalizeTitle(product)
	best, bestScore := 0, -1.0
	for i, result := range results {
		if score := similarity(target, normalizeTitle(result.Title)); score > bestScore {
			best, bestScore = i, score
		}
	}

	decision := &Decision{
		Index:       best,
		Score:       bestScore,
		Explanation: fmt.Sprintf("closest title by edit distance to %q", product),
		Source:      SourceLocal,
		Parsed:      true,
		Result:      &results[best],
	}
	if raw, err := json.Marshal(map[string]any{
		"index":       decision.Index,
		"score":       decision.Score,
		"explanation": decision.Explanation,
	}); err == nil {
		decision.Raw = string(raw)
	}
	return decision
}

func similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func siteHost(site string) string {
	parsed, err := url.Parse(strings.TrimSpace(site))
	if err != nil || parsed.Host == "" {
		return strings.TrimSpace(site)
	}
	return parsed.Host
}
