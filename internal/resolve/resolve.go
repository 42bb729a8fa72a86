// Package resolve maps free-text event titles onto employees or holiday
// scopes using a chat-completions model. The model is an unreliable
// oracle: any schema violation in its reply discards the whole mapping
// for the run rather than failing it.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// Resolver maps unique event titles onto targets given the flat list of
// employee names.
type Resolver interface {
	Resolve(ctx context.Context, titles, employees []string) (model.Mapping, error)
}

const systemPrompt = `You classify calendar event titles for a team attendance report.
Given an employee list and a list of event titles, decide which employee(s) each title belongs to.
Reply with a single valid JSON object and nothing else.
Keys are the event titles exactly as given. Values are lists of employee names taken from the employee list.
Holiday handling:
- A title for a US holiday maps to ["_HOLIDAY_US"].
- A title for a France holiday maps to ["_HOLIDAY_FRANCE"].
- A title for a company-wide holiday maps to ["_HOLIDAY_COMPANY"].
- A holiday recognized in both countries maps to ["_HOLIDAY_COMPANY"].
- Use known national holiday calendars to decide where a holiday is celebrated; make a best-effort guess when unclear.
A title that matches no employee and no holiday maps to [].
Do not include any text or markdown formatting outside the JSON object.`

// Config holds the chat-completions settings for a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client is the chat-completions backed Resolver.
type Client struct {
	api       openai.Client
	model     string
	maxTokens int64
}

// NewClient builds a resolver. The API key is required; without one the
// caller should run with an empty mapping instead.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("resolve: api key is empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return &Client{
		api:       openai.NewClient(opts...),
		model:     modelName,
		maxTokens: 4096,
	}, nil
}

// Resolve sends one request covering every title. A transport error is
// returned to the caller; a malformed reply degrades to an empty
// mapping with a log line, which downstream reports as all-unmatched.
func (c *Client) Resolve(ctx context.Context, titles, employees []string) (model.Mapping, error) {
	if len(titles) == 0 {
		return model.Mapping{}, nil
	}

	appLog.Info("resolving event titles", "titles", len(titles), "employees", len(employees))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPayload(titles, employees)),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("resolve: completion returned no choices")
	}

	mapping, err := ParseMapping(resp.Choices[0].Message.Content)
	if err != nil {
		appLog.Error("resolver reply malformed; discarding mapping", err)
		return model.Mapping{}, nil
	}

	appLog.Info("resolved event titles", "mapped", len(mapping))
	return mapping, nil
}

func userPayload(titles, employees []string) string {
	emp, _ := json.Marshal(employees)
	tls, _ := json.Marshal(titles)
	return fmt.Sprintf("Employees: %s\nEvent titles: %s", emp, tls)
}

// ParseMapping parses a model reply into the typed mapping. The reply
// must be a JSON object from title to a list of string tokens; code
// fences around it are tolerated. Anything else fails the whole parse,
// never a partial result.
func ParseMapping(raw string) (model.Mapping, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, errors.New("empty reply")
	}

	var wire map[string][]string
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}

	out := model.Mapping{}
	for title, tokens := range wire {
		targets := make([]model.Target, 0, len(tokens))
		for _, tok := range tokens {
			if scope, ok := model.ScopeFromToken(tok); ok {
				targets = append(targets, model.ScopeTarget(scope))
				continue
			}
			targets = append(targets, model.EmployeeTarget(tok))
		}
		out[title] = targets
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
