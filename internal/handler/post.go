package handler

import (
	"errors"

	"github.com/jaehyunp/algolog/internal/enrich"
	"github.com/jaehyunp/algolog/internal/queue"
	"github.com/jaehyunp/algolog/internal/repository"
	"github.com/jaehyunp/algolog/pkg/model"
	"github.com/jaehyunp/algolog/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// listPageSize is the fixed page size for the problem list.
const listPageSize = 5

// CreatePost persists a draft record and enqueues the keyword
// enrichment job. It returns as soon as the job is accepted; the model
// call happens on a worker.
func (h *Handler) CreatePost(c *gin.Context) {
	claims := h.GetClaimsFromContext(c)
	if claims == nil {
		response.Forbidden(c, "missing identity")
		return
	}

	var req model.CreatePostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	postID, err := h.Posts.Create(ctx, &model.Post{
		Owner:        claims.Email,
		Title:        req.Title,
		Description:  req.Description,
		Approach:     req.Approach,
		CodeSnippets: req.CodeSnippets,
	})
	if err != nil {
		h.Logger.Sugar().Errorw("failed to create post", "err", err)
		response.InternalError(c, "failed to create post")
		return
	}

	jobID, err := h.Queue.Submit(ctx, enrich.TaskKeywords, enrich.KeywordsPayload{
		PostID:      postID,
		Title:       req.Title,
		Description: req.Description,
		Approach:    req.Approach,
	})
	if err != nil {
		// The draft exists; it just never leaves pending. Re-submitting
		// the same content is safe.
		h.Logger.Sugar().Errorw("failed to enqueue keywords job", "post_id", postID, "err", err)
		response.InternalError(c, "failed to schedule enrichment")
		return
	}

	response.Created(c, gin.H{"post_id": postID, "job_id": jobID})
}

// PatchPost merges user edits into a record and enqueues the
// second-pass review job using the freshly merged record as its
// snapshot.
func (h *Handler) PatchPost(c *gin.Context) {
	claims := h.GetClaimsFromContext(c)
	if claims == nil {
		response.Forbidden(c, "missing identity")
		return
	}

	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id format")
		return
	}

	var req model.PatchPostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	post, err := h.Posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		h.Logger.Sugar().Errorw("failed to get post", "post_id", postID, "err", err)
		response.InternalError(c, "internal error")
		return
	}
	if post.Owner != claims.Email {
		response.NotFound(c, "post not found")
		return
	}

	patch := make(map[string]any)
	if req.Title != nil {
		patch["title"] = *req.Title
	}
	if req.Description != nil {
		patch["description"] = *req.Description
	}
	if req.Approach != nil {
		patch["approach"] = *req.Approach
	}
	if req.CodeSnippets != nil {
		patch["code_snippets"] = *req.CodeSnippets
	}
	if len(patch) == 0 {
		response.BadRequest(c, "no updatable fields in request")
		return
	}

	merged, err := h.Posts.Update(ctx, postID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		h.Logger.Sugar().Errorw("failed to update post", "post_id", postID, "err", err)
		response.InternalError(c, "failed to update post")
		return
	}

	jobID, err := h.Queue.Submit(ctx, enrich.TaskReview, enrich.ReviewPayload{
		PostID:       merged.PostID,
		Variant:      model.SuggestionKindCodeReview,
		Title:        merged.Title,
		Description:  merged.Description,
		Approach:     merged.Approach,
		CodeSnippets: merged.CodeSnippets,
	})
	if err != nil {
		h.Logger.Sugar().Errorw("failed to enqueue review job", "post_id", postID, "err", err)
		response.InternalError(c, "failed to schedule enrichment")
		return
	}

	response.OK(c, gin.H{"post": merged, "job_id": jobID})
}

// GetPost returns one record with its enrichment fields, plus a
// keyword -> explanation lookup flattened across the three categories.
// Gracefully partial while enrichment is still pending.
func (h *Handler) GetPost(c *gin.Context) {
	claims := h.GetClaimsFromContext(c)
	if claims == nil {
		response.Forbidden(c, "missing identity")
		return
	}

	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id format")
		return
	}

	post, err := h.Posts.GetByID(c.Request.Context(), postID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		h.Logger.Sugar().Errorw("failed to get post", "post_id", postID, "err", err)
		response.InternalError(c, "internal error")
		return
	}
	if post.Owner != claims.Email {
		response.NotFound(c, "post not found")
		return
	}

	keywordSolution := map[string]string{}
	if post.Keywords != nil {
		keywordSolution = post.Keywords.Flatten()
	}

	response.OK(c, gin.H{"post": post, "keyword_solution": keywordSolution})
}

// ListPosts returns one page of the caller's records. The owner scope
// comes from the verified claims, never from the request.
func (h *Handler) ListPosts(c *gin.Context) {
	claims := h.GetClaimsFromContext(c)
	if claims == nil {
		response.Forbidden(c, "missing identity")
		return
	}

	var q model.ListPostsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	field := model.SearchField(q.Field)
	if !field.Valid() {
		response.BadRequest(c, "field must be one of: title, description, any")
		return
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	search := ""
	if q.Q != nil {
		search = *q.Q
	}

	items, hasNext, err := h.Posts.List(c.Request.Context(), claims.Email, search, field, page, listPageSize)
	if err != nil {
		h.Logger.Sugar().Errorw("failed to list posts", "owner", claims.Email, "err", err)
		response.InternalError(c, "internal error")
		return
	}

	response.OKWithMeta(c, items, &response.Meta{
		Page:     page,
		PageSize: listPageSize,
		HasNext:  hasNext,
	})
}

// GetJobStatus exposes the dispatcher's status lookup so clients can
// poll an enrichment job directly instead of re-fetching the record.
func (h *Handler) GetJobStatus(c *gin.Context) {
	claims := h.GetClaimsFromContext(c)
	if claims == nil {
		response.Forbidden(c, "missing identity")
		return
	}

	status, err := h.Queue.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			response.NotFound(c, "job not found")
			return
		}
		h.Logger.Sugar().Errorw("failed to get job status", "job_id", c.Param("id"), "err", err)
		response.InternalError(c, "internal error")
		return
	}

	response.OK(c, status)
}
