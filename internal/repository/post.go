package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jaehyunp/algolog/pkg/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostRepository is the concrete store for problem records.
type PostRepository struct {
	db *pgxpool.Pool
}

// postColumns is the allowlist for partial updates. Identity and
// creation fields are deliberately absent: owner_email, post_id and
// created_at can never be patched.
var postColumns = map[string]bool{
	"title":         true,
	"description":   true,
	"approach":      true,
	"code_snippets": true,
	"keywords":      true,
	"suggestion":    true,
	"enrich_status": true,
	"enrich_error":  true,
}

// jsonColumns are marshalled before being bound, the same way the
// payload columns are stored as jsonb.
var jsonColumns = map[string]bool{
	"keywords":   true,
	"suggestion": true,
}

// Create inserts a post draft and returns its new id. Timestamps are
// assigned by the database; enrich_status starts as pending.
func (r *PostRepository) Create(ctx context.Context, p *model.Post) (uuid.UUID, error) {
	id := uuid.New()
	const q = `
INSERT INTO posts (post_id, owner_email, title, description, approach, code_snippets, enrich_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
`
	_, err := r.db.Exec(ctx, q,
		id, p.Owner, p.Title, p.Description, p.Approach, p.CodeSnippets, model.EnrichStatusPending,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert post: %w", err)
	}
	return id, nil
}

const postSelectColumns = `
post_id, owner_email, title, description, approach, code_snippets,
keywords, suggestion, enrich_status, enrich_error, created_at, updated_at`

// GetByID fetches a post by id.
func (r *PostRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	q := `SELECT ` + postSelectColumns + ` FROM posts WHERE post_id = $1`
	p, err := scanPost(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// Update merges the given column/value pairs into an existing post and
// returns the post-merge row. Field-level merge: columns not named in
// the patch are untouched, so an enrichment write and a user edit of
// disjoint fields never clobber each other. updated_at is refreshed on
// every call.
func (r *PostRepository) Update(ctx context.Context, id uuid.UUID, patch map[string]any) (*model.Post, error) {
	sets := ""
	args := []any{}
	argID := 1

	for col, val := range patch {
		if !postColumns[col] {
			continue
		}
		if jsonColumns[col] && val != nil {
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("marshal %s: %w", col, err)
			}
			val = b
		}
		if argID > 1 {
			sets += ", "
		}
		sets += fmt.Sprintf("%s = $%d", col, argID)
		args = append(args, val)
		argID++
	}
	if sets == "" {
		return r.GetByID(ctx, id)
	}

	q := fmt.Sprintf(
		`UPDATE posts SET %s, updated_at = now() WHERE post_id = $%d RETURNING %s`,
		sets, argID, postSelectColumns,
	)
	args = append(args, id)

	p, err := scanPost(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update post: %w", err)
	}
	return p, nil
}

// List returns one page of a user's posts, newest first, with an
// optional case-insensitive substring match. It fetches pageSize+1
// rows so hasNext needs no count query, and projects only list
// fields: the suggestion payload never travels with a listing.
func (r *PostRepository) List(ctx context.Context, owner, q string, field model.SearchField, page, pageSize int) ([]model.PostListItem, bool, error) {
	query, args := buildListQuery(owner, q, field, pageSize+1, (page-1)*pageSize)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	out := make([]model.PostListItem, 0, pageSize)
	for rows.Next() {
		var item model.PostListItem
		var keywordBytes []byte
		if err := rows.Scan(
			&item.PostID, &item.Owner, &item.Title, &item.Description,
			&keywordBytes, &item.EnrichStatus, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, false, fmt.Errorf("scan post row: %w", err)
		}
		if len(keywordBytes) > 0 {
			var set model.KeywordSet
			if err := json.Unmarshal(keywordBytes, &set); err != nil {
				return nil, false, fmt.Errorf("unmarshal keywords: %w", err)
			}
			item.Keywords = &set
		}
		out = append(out, item)
	}
	if rows.Err() != nil {
		return nil, false, fmt.Errorf("rows error: %w", rows.Err())
	}

	out, hasNext := trimPage(out, pageSize)
	return out, hasNext, nil
}

// trimPage turns an over-fetched result (up to pageSize+1 rows) into
// the page itself plus the has-next flag the extra row encodes.
func trimPage(items []model.PostListItem, pageSize int) ([]model.PostListItem, bool) {
	if len(items) > pageSize {
		return items[:pageSize], true
	}
	return items, false
}

// buildListQuery assembles the scoped list query. The owner predicate
// is part of the SQL itself, so a cross-owner read is structurally
// impossible whatever the filter arguments are.
func buildListQuery(owner, q string, field model.SearchField, limit, offset int) (string, []any) {
	query := `
SELECT post_id, owner_email, title, description, keywords, enrich_status, created_at, updated_at
FROM posts
WHERE owner_email = $1`
	args := []any{owner}

	if q != "" {
		pattern := "%" + escapeLike(q) + "%"
		args = append(args, pattern)
		switch field {
		case model.SearchFieldDescription:
			query += fmt.Sprintf(" AND description ILIKE $%d", len(args))
		case model.SearchFieldAny:
			query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
		default:
			query += fmt.Sprintf(" AND title ILIKE $%d", len(args))
		}
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)
	return query, args
}

// escapeLike neutralizes LIKE metacharacters so a search for "100%"
// matches the literal text instead of turning into a wildcard.
var escapeLike = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*model.Post, error) {
	var p model.Post
	var keywordBytes, suggestionBytes []byte
	if err := row.Scan(
		&p.PostID, &p.Owner, &p.Title, &p.Description, &p.Approach, &p.CodeSnippets,
		&keywordBytes, &suggestionBytes, &p.EnrichStatus, &p.EnrichError, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(keywordBytes) > 0 {
		var set model.KeywordSet
		if err := json.Unmarshal(keywordBytes, &set); err != nil {
			return nil, fmt.Errorf("unmarshal keywords: %w", err)
		}
		p.Keywords = &set
	}
	if len(suggestionBytes) > 0 {
		var s model.Suggestion
		if err := json.Unmarshal(suggestionBytes, &s); err != nil {
			return nil, fmt.Errorf("unmarshal suggestion: %w", err)
		}
		p.Suggestion = &s
	}
	return &p, nil
}
