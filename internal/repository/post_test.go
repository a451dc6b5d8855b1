package repository

import (
	"strings"
	"testing"

	"github.com/jaehyunp/algolog/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildListQuery(t *testing.T) {
	t.Run("owner scope always bound first", func(t *testing.T) {
		query, args := buildListQuery("a@x.com", "", model.SearchFieldTitle, 6, 0)
		assert.Contains(t, query, "WHERE owner_email = $1")
		require.Len(t, args, 3)
		assert.Equal(t, "a@x.com", args[0])
		assert.Equal(t, 6, args[1])
		assert.Equal(t, 0, args[2])
	})

	t.Run("title search", func(t *testing.T) {
		query, args := buildListQuery("a@x.com", "search", model.SearchFieldTitle, 6, 0)
		assert.Contains(t, query, "title ILIKE $2")
		assert.NotContains(t, query, "description ILIKE")
		assert.Equal(t, "%search%", args[1])
	})

	t.Run("description search", func(t *testing.T) {
		query, _ := buildListQuery("a@x.com", "graph", model.SearchFieldDescription, 6, 0)
		assert.Contains(t, query, "description ILIKE $2")
		assert.NotContains(t, query, "title ILIKE")
	})

	t.Run("any matches either field", func(t *testing.T) {
		query, _ := buildListQuery("a@x.com", "dp", model.SearchFieldAny, 6, 0)
		assert.Contains(t, query, "(title ILIKE $2 OR description ILIKE $2)")
	})

	t.Run("no q means no match clause", func(t *testing.T) {
		query, _ := buildListQuery("a@x.com", "", model.SearchFieldAny, 6, 0)
		assert.NotContains(t, query, "ILIKE")
	})

	t.Run("newest first with page offset", func(t *testing.T) {
		query, args := buildListQuery("a@x.com", "", model.SearchFieldTitle, 6, 10)
		assert.Contains(t, query, "ORDER BY created_at DESC")
		assert.Equal(t, 10, args[len(args)-1])
	})

	t.Run("wildcard characters match literally", func(t *testing.T) {
		_, args := buildListQuery("a@x.com", "100%", model.SearchFieldTitle, 6, 0)
		assert.Equal(t, `%100\%%`, args[1])

		_, args = buildListQuery("a@x.com", `a_b\c`, model.SearchFieldTitle, 6, 0)
		assert.Equal(t, `%a\_b\\c%`, args[1])
	})

	t.Run("projection excludes suggestion payload", func(t *testing.T) {
		query, _ := buildListQuery("a@x.com", "", model.SearchFieldTitle, 6, 0)
		selectClause := query[:strings.Index(query, "FROM")]
		assert.NotContains(t, selectClause, "suggestion")
		assert.NotContains(t, selectClause, "approach")
		assert.NotContains(t, selectClause, "code_snippets")
	})
}

// Seven records for one owner at page size 5: page 1 holds 5 with more
// to come, page 2 holds the remaining 2.
func TestTrimPage(t *testing.T) {
	records := make([]model.PostListItem, 7)

	// page 1 over-fetches pageSize+1 rows
	fetched := records[:6]
	page, hasNext := trimPage(fetched, 5)
	assert.Len(t, page, 5)
	assert.True(t, hasNext)

	// page 2 finds only the remaining 2
	fetched = records[5:]
	page, hasNext = trimPage(fetched, 5)
	assert.Len(t, page, 2)
	assert.False(t, hasNext)

	// exactly one full page, nothing after it
	page, hasNext = trimPage(records[:5], 5)
	assert.Len(t, page, 5)
	assert.False(t, hasNext)

	// empty page
	page, hasNext = trimPage(nil, 5)
	assert.Empty(t, page)
	assert.False(t, hasNext)
}

func TestPostColumnAllowlist(t *testing.T) {
	// identity and creation fields must never be patchable
	for _, col := range []string{"post_id", "owner_email", "created_at", "updated_at"} {
		assert.False(t, postColumns[col], "column %q must not be patchable", col)
	}
	for _, col := range []string{"keywords", "suggestion", "enrich_status", "enrich_error", "title"} {
		assert.True(t, postColumns[col], "column %q should be patchable", col)
	}
}
