package enrich

import (
	"fmt"
	"strings"
)

// Prompt is a system/user instruction pair for the text-generation
// service. Builders are pure: same record snapshot, same prompt.
type Prompt struct {
	System string
	User   string
}

const keywordSystemMsg = "You are an expert algorithm problem analyst."

const keywordPromptTemplate = `You are an expert algorithm problem analyst.
Given a problem Title and Description, extract only the essential keywords required to solve it, and give a crisp Korean explanation for each keyword.
OUTPUT RULES:
- Return STRICTLY valid JSON with these 3 arrays:
{
  "data_structures": [{"keyword": "...", "explanation": "..."}],
  "algorithms": [{"keyword": "...", "explanation": "..."}],
  "concepts": [{"keyword": "...", "explanation": "..."}]
}

- 3~8 items total; avoid duplicates and synonyms.
- Explanations must be ≤ 2 sentences, Korean, practical (왜 필요한지/언제 쓰는지)

Title: %s
Description: %s
`

// BuildKeywordPrompt produces the keyword-extraction request for a
// record snapshot. The approach, when present, is appended so the
// model sees how the user actually attacked the problem.
func BuildKeywordPrompt(title, description string, approach *string) Prompt {
	user := fmt.Sprintf(keywordPromptTemplate, title, description)
	if approach != nil && strings.TrimSpace(*approach) != "" {
		user += fmt.Sprintf("Approach: %s\n", *approach)
	}
	return Prompt{System: keywordSystemMsg, User: user}
}

const reviewSystemMsg = "You are an expert algorithm problem analyst and senior code reviewer."

const reviewPromptTemplate = `You are an expert algorithm problem analyst and senior code reviewer.

Your tasks:
1) Analyze the provided code snippets for approach, complexity, correctness, edge cases, and maintainability.
2) Propose what to study next (prioritized), with short justifications and concrete topic names.
3) Criticize the given code snippets, comment what is good and bad, put those into code_suggestions and make a study plan based on it.

Rules:
- Return STRICT, VALID JSON only (no extra text).
- All field values (summary, explanation, why, etc.) must be written in Korean.
- Use this schema:
{
  "code_review": {
    "summary": "...",
    "approach": "...",
    "time_complexity": "예: O(N log N)",
    "space_complexity": "예: O(N)",
    "edge_cases_missing": ["..."],
    "test_cases_suggested": ["입력/출력 예시 ..."],
    "code_suggestions": ["..."]
  },
  "study_plan": [
    {"topic": "...", "why": "...", "what_to_focus": ["...", "..."]}
  ]
}

Title: %s
Description: %s
Approach: %s

Code Snippets:
%s
`

// BuildCodeReviewPrompt produces the structured code-review request.
func BuildCodeReviewPrompt(title, description string, approach, codeSnippets *string) Prompt {
	return Prompt{
		System: reviewSystemMsg,
		User:   fmt.Sprintf(reviewPromptTemplate, title, description, deref(approach), deref(codeSnippets)),
	}
}

const advicePromptTemplate = `You are an expert algorithm problem analyst.
Given a solved practice problem, give the user short, concrete advice on what to improve next.

Rules:
- Return STRICT, VALID JSON only (no extra text):
{
  "advice": ["...", "..."]
}
- 2~5 items. Each item MUST be a plain string, never an object.
- Each item is one short actionable sentence, written in Korean.

Title: %s
Description: %s
Approach: %s

Code Snippets:
%s
`

// BuildAdvicePrompt produces the plain-advice variant of the second
// pass. The "plain string, never an object" rule is stated in the
// instructions because the model has been seen returning
// {keyword, explanation} objects where strings were asked for.
func BuildAdvicePrompt(title, description string, approach, codeSnippets *string) Prompt {
	return Prompt{
		System: reviewSystemMsg,
		User:   fmt.Sprintf(advicePromptTemplate, title, description, deref(approach), deref(codeSnippets)),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
