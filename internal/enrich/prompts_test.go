package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKeywordPrompt(t *testing.T) {
	p1 := BuildKeywordPrompt("Two Sum", "find pair summing to target", nil)
	p2 := BuildKeywordPrompt("Two Sum", "find pair summing to target", nil)
	assert.Equal(t, p1, p2, "builder must be deterministic")

	assert.Contains(t, p1.User, "Two Sum")
	assert.Contains(t, p1.User, "find pair summing to target")
	assert.Contains(t, p1.User, "3~8 items total")
	for _, key := range []string{"data_structures", "algorithms", "concepts"} {
		assert.Contains(t, p1.User, key)
	}
	assert.NotContains(t, p1.User, "Approach:")

	approach := "hash map lookup"
	withApproach := BuildKeywordPrompt("Two Sum", "desc", &approach)
	assert.Contains(t, withApproach.User, "Approach: hash map lookup")
}

func TestBuildAdvicePrompt(t *testing.T) {
	code := "def solve(): pass"
	p := BuildAdvicePrompt("Two Sum", "desc", nil, &code)

	// the cardinality bound and the plain-string rule must be in the
	// instructions, since the client cannot enforce them pre-parse
	assert.Contains(t, p.User, "2~5 items")
	assert.Contains(t, p.User, "plain string, never an object")
	assert.Contains(t, p.User, "def solve(): pass")
}

func TestBuildCodeReviewPrompt(t *testing.T) {
	approach := "sort then scan"
	code := "for i in range(n): ..."
	p := BuildCodeReviewPrompt("Three Sum", "triplets summing to zero", &approach, &code)

	for _, key := range []string{"code_review", "study_plan", "time_complexity", "edge_cases_missing", "what_to_focus"} {
		assert.Contains(t, p.User, key)
	}
	assert.Contains(t, p.User, "sort then scan")
	assert.Contains(t, p.User, "for i in range(n): ...")
	assert.Contains(t, p.System, "code reviewer")
}
