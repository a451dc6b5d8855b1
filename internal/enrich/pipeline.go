package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jaehyunp/algolog/internal/openai"
	"github.com/jaehyunp/algolog/internal/queue"
	"github.com/jaehyunp/algolog/internal/repository"
	"github.com/jaehyunp/algolog/pkg/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task type names as registered on the queue.
const (
	TaskKeywords = "post.keywords"
	TaskReview   = "post.review"
)

// ErrRecordGone means the record was deleted between job submission
// and completion. Terminal: there is nothing left to update.
var ErrRecordGone = errors.New("record gone before enrichment completed")

// Store is the slice of the record store the pipeline needs.
type Store interface {
	Update(ctx context.Context, id uuid.UUID, patch map[string]any) (*model.Post, error)
}

// ChatClient is the enrichment client surface the pipeline calls.
type ChatClient interface {
	Chat(ctx context.Context, req openai.ChatRequest) (string, error)
}

// KeywordsPayload is the record snapshot a keyword job runs from. The
// prompt is built from this snapshot, not a fresh read, so edits made
// after submission are not reflected in the run.
type KeywordsPayload struct {
	PostID      uuid.UUID `json:"post_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Approach    *string   `json:"approach,omitempty"`
}

// ReviewPayload is the snapshot for a second-pass job. Variant picks
// the output contract: plain advice strings or a structured review.
type ReviewPayload struct {
	PostID       uuid.UUID            `json:"post_id"`
	Variant      model.SuggestionKind `json:"variant"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Approach     *string              `json:"approach,omitempty"`
	CodeSnippets *string              `json:"code_snippets,omitempty"`
}

// Pipeline orchestrates one enrichment run: build prompt, call the
// model, parse the contract, merge the result into the record.
//
// Two jobs for the same record may complete out of order; the last
// completion wins for the fields it writes. That weak consistency is
// accepted and intentional, matching the dispatcher's lack of ordering.
type Pipeline struct {
	Store  Store
	Client ChatClient
	Logger *zap.Logger
}

func NewPipeline(store Store, client ChatClient, logger *zap.Logger) *Pipeline {
	return &Pipeline{Store: store, Client: client, Logger: logger}
}

// Register binds the pipeline's task handlers onto a queue worker.
func (p *Pipeline) Register(w *queue.Worker) {
	w.Register(TaskKeywords, p.HandleKeywords)
	w.Register(TaskReview, p.HandleReview)
}

// HandleKeywords runs the keyword-extraction pass.
func (p *Pipeline) HandleKeywords(ctx context.Context, t *queue.Task) error {
	var payload KeywordsPayload
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("bad keywords payload: %w", err))
	}

	prompt := BuildKeywordPrompt(payload.Title, payload.Description, payload.Approach)

	raw, err := p.generate(ctx, t, payload.PostID, prompt)
	if err != nil {
		return err
	}

	set, err := ParseKeywords(raw)
	if err != nil {
		return p.failParse(ctx, payload.PostID, raw, err)
	}
	if !InKeywordBounds(set) {
		p.Logger.Sugar().Warnw("keyword count out of band, merging anyway",
			"post_id", payload.PostID, "total", set.Total())
	}

	return p.merge(ctx, t, payload.PostID, map[string]any{
		"keywords":      set,
		"enrich_status": model.EnrichStatusDone,
		"enrich_error":  nil,
	})
}

// HandleReview runs the second pass: advice or code review depending
// on the payload variant.
func (p *Pipeline) HandleReview(ctx context.Context, t *queue.Task) error {
	var payload ReviewPayload
	if err := json.Unmarshal(t.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("bad review payload: %w", err))
	}

	var prompt Prompt
	switch payload.Variant {
	case model.SuggestionKindAdvice:
		prompt = BuildAdvicePrompt(payload.Title, payload.Description, payload.Approach, payload.CodeSnippets)
	case model.SuggestionKindCodeReview:
		prompt = BuildCodeReviewPrompt(payload.Title, payload.Description, payload.Approach, payload.CodeSnippets)
	default:
		return queue.Permanent(fmt.Errorf("unknown review variant %q", payload.Variant))
	}

	raw, err := p.generate(ctx, t, payload.PostID, prompt)
	if err != nil {
		return err
	}

	var suggestion *model.Suggestion
	switch payload.Variant {
	case model.SuggestionKindAdvice:
		suggestion, err = ParseAdvice(raw)
		if err == nil && !InAdviceBounds(suggestion) {
			p.Logger.Sugar().Warnw("advice count out of band, merging anyway",
				"post_id", payload.PostID, "count", len(suggestion.Advice))
		}
	case model.SuggestionKindCodeReview:
		suggestion, err = ParseCodeReview(raw)
	}
	if err != nil {
		return p.failParse(ctx, payload.PostID, raw, err)
	}

	return p.merge(ctx, t, payload.PostID, map[string]any{
		"suggestion":    suggestion,
		"enrich_status": model.EnrichStatusDone,
		"enrich_error":  nil,
	})
}

// generate marks the record as processing and calls the model. On an
// upstream failure the record is only marked failed once the retry
// policy is exhausted or the rejection is permanent; in between, its
// status stays processing and the job goes back to the queue.
func (p *Pipeline) generate(ctx context.Context, t *queue.Task, postID uuid.UUID, prompt Prompt) (string, error) {
	if _, err := p.Store.Update(ctx, postID, map[string]any{
		"enrich_status": model.EnrichStatusProcessing,
	}); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", queue.Permanent(ErrRecordGone)
		}
		return "", fmt.Errorf("mark processing: %w", err)
	}

	raw, err := p.Client.Chat(ctx, openai.ChatRequest{
		Messages: []map[string]string{
			{"role": "system", "content": prompt.System},
			{"role": "user", "content": prompt.User},
		},
		Temperature:    0.0,
		ResponseFormat: openai.JSONMode(),
	})
	if err == nil {
		return raw, nil
	}

	var ue *openai.UpstreamError
	if errors.As(err, &ue) && ue.Retryable() && !t.FinalAttempt() {
		return "", fmt.Errorf("model call failed: %w", err)
	}

	p.markFailed(ctx, postID, err.Error())
	return "", queue.Permanent(fmt.Errorf("model call failed: %w", err))
}

// failParse records a contract violation. Raw output goes to the log,
// never into the record; the merge is all-or-nothing.
func (p *Pipeline) failParse(ctx context.Context, postID uuid.UUID, raw string, err error) error {
	p.Logger.Sugar().Errorw("enrichment parse failed",
		"post_id", postID, "err", err, "raw", raw)
	p.markFailed(ctx, postID, err.Error())
	return queue.Permanent(err)
}

// merge applies the enrichment patch. The patch holds only the fields
// this run produced plus status; title, description, owner and
// created_at are never in it. Idempotent: re-running the same job
// converges to the same stored fields. When two jobs target one
// record, whichever completes last wins; there is no version guard.
func (p *Pipeline) merge(ctx context.Context, t *queue.Task, postID uuid.UUID, patch map[string]any) error {
	if _, err := p.Store.Update(ctx, postID, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return queue.Permanent(ErrRecordGone)
		}
		if t.FinalAttempt() {
			return queue.Permanent(fmt.Errorf("merge enrichment: %w", err))
		}
		return fmt.Errorf("merge enrichment: %w", err)
	}
	p.Logger.Sugar().Infow("enrichment merged", "post_id", postID, "job_id", t.ID)
	return nil
}

func (p *Pipeline) markFailed(ctx context.Context, postID uuid.UUID, reason string) {
	if _, err := p.Store.Update(ctx, postID, map[string]any{
		"enrich_status": model.EnrichStatusFailed,
		"enrich_error":  reason,
	}); err != nil && !errors.Is(err, repository.ErrNotFound) {
		p.Logger.Sugar().Warnw("could not mark enrichment failed", "post_id", postID, "err", err)
	}
}
