// Package extract turns one filing record into a validated new-product fact
// using a generative model.
package extract

import (
	"context"
	"errors"
	"fmt"

	"filing_signals/pkg/core/llm"
	"filing_signals/pkg/core/logging"
	"filing_signals/pkg/core/models"
	"filing_signals/pkg/core/prompt"

	"github.com/sirupsen/logrus"
)

// DefaultMaxTextChars bounds the filing text embedded in the prompt.
const DefaultMaxTextChars = 24000

// ErrIncomplete is the error carried by schema_incomplete outcomes.
var ErrIncomplete = errors.New("extraction result has empty fields")

// Options configures an Extractor.
type Options struct {
	Model        string
	Prompt       *prompt.PromptTemplate // nil selects the built-in extraction prompt
	MaxTextChars int
	Log          logrus.FieldLogger
}

// Extractor runs one model call per filing record. It is safe for
// concurrent use when its Provider is.
type Extractor struct {
	provider llm.Provider
	model    string
	prompt   *prompt.PromptTemplate
	maxChars int
	log      logrus.FieldLogger
}

// New creates an Extractor.
func New(provider llm.Provider, opts Options) (*Extractor, error) {
	pt := opts.Prompt
	if pt == nil {
		var err error
		pt, err = prompt.NewRegistry().GetPrompt(prompt.ExtractionPromptID)
		if err != nil {
			return nil, err
		}
	}
	model := opts.Model
	if model == "" {
		model = llm.DefaultModel
	}
	maxChars := opts.MaxTextChars
	if maxChars <= 0 {
		maxChars = DefaultMaxTextChars
	}
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Extractor{
		provider: provider,
		model:    model,
		prompt:   pt,
		maxChars: maxChars,
		log:      log.WithField("component", "extractor"),
	}, nil
}

// Extract asks the model for the record's new-product fact. It never returns
// an error or panics; failures are reported through the Outcome.
func (e *Extractor) Extract(ctx context.Context, rec models.FilingRecord) (out models.Outcome) {
	out.Ticker = rec.Ticker
	defer func() {
		if r := recover(); r != nil {
			out = models.Outcome{
				Ticker:  rec.Ticker,
				Failure: models.FailureParse,
				Err:     fmt.Errorf("extraction panicked: %v", r),
			}
		}
	}()

	messages, err := e.Messages(rec)
	if err != nil {
		out.Failure = models.FailureParse
		out.Err = err
		return out
	}

	resp, err := e.provider.Chat(ctx, e.model, messages)
	if err != nil {
		out.Failure = models.FailureNetwork
		out.Err = err
		return out
	}
	if resp == nil {
		out.Failure = models.FailureNetwork
		out.Err = errors.New("empty model response")
		return out
	}

	res, err := ParseResponse(resp.Message.Content)
	if err != nil {
		e.log.WithField("ticker", rec.Ticker).WithError(err).Debug("unparseable model output")
		out.Failure = models.FailureParse
		out.Err = err
		return out
	}

	valid, ok := Validate(res)
	if !ok {
		out.Failure = models.FailureSchemaIncomplete
		out.Err = ErrIncomplete
		return out
	}
	out.Result = &valid
	return out
}

// Messages renders the chat exchange for rec.
func (e *Extractor) Messages(rec models.FilingRecord) ([]llm.Message, error) {
	user, err := prompt.RenderUserPrompt(e.prompt, prompt.ExtractionVars{
		Ticker:     rec.Ticker,
		FilingTime: rec.FilingTime,
		Text:       Truncate(rec.Text, e.maxChars),
	})
	if err != nil {
		return nil, err
	}
	var messages []llm.Message
	if e.prompt.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: e.prompt.SystemPrompt})
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: user}), nil
}

// Validate is the single schema check: the result is accepted, trimmed,
// only when all five fields are non-empty.
func Validate(res models.ExtractionResult) (models.ExtractionResult, bool) {
	trimmed := res.Trimmed()
	return trimmed, trimmed.Complete()
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
