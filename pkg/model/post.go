package model

import (
	"time"

	"github.com/google/uuid"
)

type EnrichStatus string

const (
	EnrichStatusPending    EnrichStatus = "pending"
	EnrichStatusProcessing EnrichStatus = "processing"
	EnrichStatusDone       EnrichStatus = "done"
	EnrichStatusFailed     EnrichStatus = "failed"
)

// KeywordItem is one keyword with its short explanation.
type KeywordItem struct {
	Keyword     string `json:"keyword"`
	Explanation string `json:"explanation"`
}

// KeywordSet holds the three keyword categories the keyword-extraction
// pass produces. Absent on a post until the first enrichment completes.
type KeywordSet struct {
	DataStructures []KeywordItem `json:"data_structures"`
	Algorithms     []KeywordItem `json:"algorithms"`
	Concepts       []KeywordItem `json:"concepts"`
}

// Total counts items across all three categories.
func (k *KeywordSet) Total() int {
	return len(k.DataStructures) + len(k.Algorithms) + len(k.Concepts)
}

// Flatten builds a keyword -> explanation lookup across all categories.
func (k *KeywordSet) Flatten() map[string]string {
	out := make(map[string]string, k.Total())
	for _, group := range [][]KeywordItem{k.DataStructures, k.Algorithms, k.Concepts} {
		for _, item := range group {
			out[item.Keyword] = item.Explanation
		}
	}
	return out
}

type SuggestionKind string

const (
	SuggestionKindAdvice     SuggestionKind = "advice"
	SuggestionKindCodeReview SuggestionKind = "code_review"
)

type CodeReview struct {
	Summary            string   `json:"summary"`
	Approach           string   `json:"approach"`
	TimeComplexity     string   `json:"time_complexity"`
	SpaceComplexity    string   `json:"space_complexity"`
	EdgeCasesMissing   []string `json:"edge_cases_missing"`
	TestCasesSuggested []string `json:"test_cases_suggested"`
	CodeSuggestions    []string `json:"code_suggestions"`
}

type StudyTopic struct {
	Topic       string   `json:"topic"`
	Why         string   `json:"why"`
	WhatToFocus []string `json:"what_to_focus"`
}

// Suggestion is the second-pass enrichment result. Exactly one variant
// is populated per enrichment run: Kind tells which.
type Suggestion struct {
	Kind       SuggestionKind `json:"kind"`
	Advice     []string       `json:"advice,omitempty"`
	CodeReview *CodeReview    `json:"code_review,omitempty"`
	StudyPlan  []StudyTopic   `json:"study_plan,omitempty"`
}

type Post struct {
	PostID       uuid.UUID    `json:"post_id"`
	Owner        string       `json:"owner"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Approach     *string      `json:"approach"`
	CodeSnippets *string      `json:"code_snippets"`
	Keywords     *KeywordSet  `json:"keywords"`
	Suggestion   *Suggestion  `json:"suggestion"`
	EnrichStatus EnrichStatus `json:"enrich_status"`
	EnrichError  *string      `json:"enrich_error"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type CreatePostReq struct {
	Title        string  `json:"title" binding:"required"`
	Description  string  `json:"description" binding:"required"`
	Approach     *string `json:"approach"`
	CodeSnippets *string `json:"code_snippets"`
}

type PatchPostReq struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	Approach     *string `json:"approach,omitempty"`
	CodeSnippets *string `json:"code_snippets,omitempty"`
}

// SearchField selects which column(s) a list query matches q against.
type SearchField string

const (
	SearchFieldTitle       SearchField = "title"
	SearchFieldDescription SearchField = "description"
	// SearchFieldAny matches if any searchable field contains q.
	SearchFieldAny SearchField = "any"
)

func (f SearchField) Valid() bool {
	switch f {
	case SearchFieldTitle, SearchFieldDescription, SearchFieldAny:
		return true
	}
	return false
}

type ListPostsQuery struct {
	Page  int     `form:"page,default=1"`
	Q     *string `form:"q"`
	Field string  `form:"field,default=title"`
}

// PostListItem is the listing projection: enough for the list page,
// never the suggestion payload.
type PostListItem struct {
	PostID       uuid.UUID    `json:"post_id"`
	Owner        string       `json:"owner"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Keywords     *KeywordSet  `json:"keywords"`
	EnrichStatus EnrichStatus `json:"enrich_status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
