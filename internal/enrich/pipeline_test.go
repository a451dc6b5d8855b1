package enrich

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jaehyunp/algolog/internal/openai"
	"github.com/jaehyunp/algolog/internal/queue"
	"github.com/jaehyunp/algolog/internal/repository"
	"github.com/jaehyunp/algolog/pkg/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- fakes ---

type fakeStore struct {
	posts   map[uuid.UUID]*model.Post
	patches []map[string]any
}

func newFakeStore(posts ...*model.Post) *fakeStore {
	s := &fakeStore{posts: make(map[uuid.UUID]*model.Post)}
	for _, p := range posts {
		s.posts[p.PostID] = p
	}
	return s
}

// Update mimics the repository's field-level merge: only named fields
// change, everything else is untouched.
func (s *fakeStore) Update(_ context.Context, id uuid.UUID, patch map[string]any) (*model.Post, error) {
	p, ok := s.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.patches = append(s.patches, patch)
	for col, val := range patch {
		switch col {
		case "keywords":
			p.Keywords = val.(*model.KeywordSet)
		case "suggestion":
			p.Suggestion = val.(*model.Suggestion)
		case "enrich_status":
			p.EnrichStatus = val.(model.EnrichStatus)
		case "enrich_error":
			if val == nil {
				p.EnrichError = nil
			} else {
				msg := val.(string)
				p.EnrichError = &msg
			}
		}
	}
	p.UpdatedAt = time.Now()
	return p, nil
}

type fakeClient struct {
	chatFn func(ctx context.Context, req openai.ChatRequest) (string, error)
	calls  int
}

func (c *fakeClient) Chat(ctx context.Context, req openai.ChatRequest) (string, error) {
	c.calls++
	if c.chatFn != nil {
		return c.chatFn(ctx, req)
	}
	return "{}", nil
}

// --- helpers ---

func newPost(owner string) *model.Post {
	return &model.Post{
		PostID:       uuid.New(),
		Owner:        owner,
		Title:        "Two Sum",
		Description:  "find pair summing to target",
		EnrichStatus: model.EnrichStatusPending,
		CreatedAt:    time.Now(),
	}
}

func keywordsTask(t *testing.T, p *model.Post) *queue.Task {
	t.Helper()
	payload, err := json.Marshal(KeywordsPayload{
		PostID:      p.PostID,
		Title:       p.Title,
		Description: p.Description,
	})
	require.NoError(t, err)
	return &queue.Task{ID: uuid.NewString(), Name: TaskKeywords, Payload: payload, MaxAttempts: 3}
}

func reviewTask(t *testing.T, p *model.Post, variant model.SuggestionKind) *queue.Task {
	t.Helper()
	payload, err := json.Marshal(ReviewPayload{
		PostID:      p.PostID,
		Variant:     variant,
		Title:       p.Title,
		Description: p.Description,
	})
	require.NoError(t, err)
	return &queue.Task{ID: uuid.NewString(), Name: TaskReview, Payload: payload, MaxAttempts: 3}
}

const validKeywordJSON = `{
	"data_structures": [{"keyword": "해시맵", "explanation": "값을 O(1)에 찾는다."}],
	"algorithms": [{"keyword": "한 번 순회", "explanation": "배열을 한 번만 돈다."}],
	"concepts": [{"keyword": "보수", "explanation": "target-x를 키로 쓴다."}]
}`

// --- tests ---

func TestHandleKeywordsSuccess(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	client := &fakeClient{chatFn: func(_ context.Context, req openai.ChatRequest) (string, error) {
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		return validKeywordJSON, nil
	}}
	p := NewPipeline(store, client, zap.NewNop())

	err := p.HandleKeywords(context.Background(), keywordsTask(t, post))
	require.NoError(t, err)

	require.NotNil(t, post.Keywords)
	assert.Equal(t, 3, post.Keywords.Total())
	assert.Equal(t, model.EnrichStatusDone, post.EnrichStatus)
	assert.Nil(t, post.EnrichError)

	// enrichment patches must never touch identity or user fields
	for _, patch := range store.patches {
		for _, forbidden := range []string{"title", "description", "owner_email", "created_at"} {
			assert.NotContains(t, patch, forbidden)
		}
	}
}

func TestHandleKeywordsIdempotentMerge(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	client := &fakeClient{chatFn: func(context.Context, openai.ChatRequest) (string, error) {
		return validKeywordJSON, nil
	}}
	p := NewPipeline(store, client, zap.NewNop())
	task := keywordsTask(t, post)

	require.NoError(t, p.HandleKeywords(context.Background(), task))
	first := *post.Keywords

	// broker redelivery: same job runs again
	require.NoError(t, p.HandleKeywords(context.Background(), task))
	assert.Equal(t, first, *post.Keywords)
	assert.Equal(t, model.EnrichStatusDone, post.EnrichStatus)
}

func TestHandleKeywordsParseFailure(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	client := &fakeClient{chatFn: func(context.Context, openai.ChatRequest) (string, error) {
		return "I could not produce JSON, sorry!", nil
	}}
	p := NewPipeline(store, client, zap.NewNop())

	err := p.HandleKeywords(context.Background(), keywordsTask(t, post))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err), "parse failures must not be retried")

	// no partial merge of malformed data
	assert.Nil(t, post.Keywords)
	assert.Equal(t, model.EnrichStatusFailed, post.EnrichStatus)
	require.NotNil(t, post.EnrichError)
}

func TestHandleKeywordsUpstreamRetry(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	client := &fakeClient{chatFn: func(context.Context, openai.ChatRequest) (string, error) {
		return "", &openai.UpstreamError{Status: 503, Body: "overloaded"}
	}}
	p := NewPipeline(store, client, zap.NewNop())

	task := keywordsTask(t, post)
	err := p.HandleKeywords(context.Background(), task)
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err), "transient upstream failures are retryable")
	// record stays processing while the queue retries
	assert.Equal(t, model.EnrichStatusProcessing, post.EnrichStatus)

	// last allowed attempt: give up and mark the record
	task.Attempts = task.MaxAttempts - 1
	err = p.HandleKeywords(context.Background(), task)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Equal(t, model.EnrichStatusFailed, post.EnrichStatus)
}

func TestHandleKeywordsPermanentUpstreamRejection(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	client := &fakeClient{chatFn: func(context.Context, openai.ChatRequest) (string, error) {
		return "", &openai.UpstreamError{Status: 401, Body: "bad key"}
	}}
	p := NewPipeline(store, client, zap.NewNop())

	err := p.HandleKeywords(context.Background(), keywordsTask(t, post))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err), "auth rejections are not retryable")
	assert.Equal(t, model.EnrichStatusFailed, post.EnrichStatus)
	assert.Equal(t, 1, client.calls)
}

func TestHandleKeywordsRecordGone(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore() // record deleted between submission and pickup
	client := &fakeClient{}
	p := NewPipeline(store, client, zap.NewNop())

	err := p.HandleKeywords(context.Background(), keywordsTask(t, post))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, ErrRecordGone)
	assert.Equal(t, 0, client.calls, "no model call for a vanished record")
}

func TestHandleReviewAdviceVariant(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	client := &fakeClient{chatFn: func(context.Context, openai.ChatRequest) (string, error) {
		return `{"advice": ["해시맵을 먼저 떠올리자", "정수 오버플로를 확인하자"]}`, nil
	}}
	p := NewPipeline(store, client, zap.NewNop())

	err := p.HandleReview(context.Background(), reviewTask(t, post, model.SuggestionKindAdvice))
	require.NoError(t, err)

	require.NotNil(t, post.Suggestion)
	assert.Equal(t, model.SuggestionKindAdvice, post.Suggestion.Kind)
	assert.Len(t, post.Suggestion.Advice, 2)
	assert.Equal(t, model.EnrichStatusDone, post.EnrichStatus)
}

func TestHandleReviewCodeReviewVariant(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	client := &fakeClient{chatFn: func(context.Context, openai.ChatRequest) (string, error) {
		return `{"code_review": {"summary": "요약", "approach": "접근"}, "study_plan": []}`, nil
	}}
	p := NewPipeline(store, client, zap.NewNop())

	err := p.HandleReview(context.Background(), reviewTask(t, post, model.SuggestionKindCodeReview))
	require.NoError(t, err)

	require.NotNil(t, post.Suggestion)
	assert.Equal(t, model.SuggestionKindCodeReview, post.Suggestion.Kind)
	require.NotNil(t, post.Suggestion.CodeReview)
	assert.Equal(t, "요약", post.Suggestion.CodeReview.Summary)
}

func TestHandleReviewAdviceObjectsRejected(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	client := &fakeClient{chatFn: func(context.Context, openai.ChatRequest) (string, error) {
		return `{"advice": [{"keyword":"x","explanation":"y"}]}`, nil
	}}
	p := NewPipeline(store, client, zap.NewNop())

	err := p.HandleReview(context.Background(), reviewTask(t, post, model.SuggestionKindAdvice))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Nil(t, post.Suggestion)
	assert.Equal(t, model.EnrichStatusFailed, post.EnrichStatus)
}

func TestHandleReviewUnknownVariant(t *testing.T) {
	post := newPost("a@x.com")
	store := newFakeStore(post)
	p := NewPipeline(store, &fakeClient{}, zap.NewNop())

	err := p.HandleReview(context.Background(), reviewTask(t, post, model.SuggestionKind("review_v3")))
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestHandleKeywordsBadPayload(t *testing.T) {
	p := NewPipeline(newFakeStore(), &fakeClient{}, zap.NewNop())
	err := p.HandleKeywords(context.Background(), &queue.Task{
		ID: uuid.NewString(), Name: TaskKeywords, Payload: json.RawMessage(`"not an object"`), MaxAttempts: 3,
	})
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}
