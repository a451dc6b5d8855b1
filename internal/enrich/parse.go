package enrich

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jaehyunp/algolog/pkg/model"
)

// ParseError means the model's output violated the JSON contract.
// Deterministic: retrying the same prompt will not help, so the queue
// must not reschedule it. Raw keeps the offending text for diagnosis.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("enrichment response violates contract: %s", e.Reason)
}

func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Keyword items are capped per the prompt contract; violations outside
// the band are tolerated as long as something usable came back.
const (
	minKeywordItems = 3
	maxKeywordItems = 8
	minAdviceItems  = 2
	maxAdviceItems  = 5
)

// ParseKeywords verifies the keyword-extraction contract: valid JSON,
// all three category keys present, each an array of keyword items.
// The 3–8 total bound is soft: anything non-empty is accepted, an
// empty result is a contract failure.
func ParseKeywords(raw string) (*model.KeywordSet, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("not a JSON object: %v", err), Raw: raw}
	}

	var set model.KeywordSet
	for _, key := range []string{"data_structures", "algorithms", "concepts"} {
		rawList, ok := top[key]
		if !ok {
			return nil, &ParseError{Reason: fmt.Sprintf("missing required key %q", key), Raw: raw}
		}
		var items []model.KeywordItem
		if err := json.Unmarshal(rawList, &items); err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("key %q is not an array of keyword items: %v", key, err), Raw: raw}
		}
		for _, item := range items {
			if item.Keyword == "" {
				return nil, &ParseError{Reason: fmt.Sprintf("key %q contains an item without a keyword", key), Raw: raw}
			}
		}
		switch key {
		case "data_structures":
			set.DataStructures = items
		case "algorithms":
			set.Algorithms = items
		case "concepts":
			set.Concepts = items
		}
	}

	if set.Total() == 0 {
		return nil, &ParseError{Reason: "no keyword items in any category", Raw: raw}
	}
	return &set, nil
}

// InKeywordBounds reports whether the set honors the 3–8 item band the
// prompt asks for. Out-of-band sets are still merged; callers log it.
func InKeywordBounds(set *model.KeywordSet) bool {
	n := set.Total()
	return n >= minKeywordItems && n <= maxKeywordItems
}

// ParseAdvice verifies the plain-advice contract: an "advice" key
// holding an array of plain strings. The model sometimes emits
// {keyword, explanation} objects where strings were required; any
// non-string element fails the whole response, so no partial result
// ever reaches the record.
func ParseAdvice(raw string) (*model.Suggestion, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("not a JSON object: %v", err), Raw: raw}
	}

	rawList, ok := top["advice"]
	if !ok {
		return nil, &ParseError{Reason: `missing required key "advice"`, Raw: raw}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(rawList, &elems); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf(`key "advice" is not an array: %v`, err), Raw: raw}
	}

	advice := make([]string, 0, len(elems))
	for i, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("advice[%d] is not a plain string", i), Raw: raw}
		}
		advice = append(advice, s)
	}

	if len(advice) == 0 {
		return nil, &ParseError{Reason: "advice array is empty", Raw: raw}
	}

	return &model.Suggestion{Kind: model.SuggestionKindAdvice, Advice: advice}, nil
}

// InAdviceBounds reports whether the advice count is in the 2–5 band.
func InAdviceBounds(s *model.Suggestion) bool {
	return len(s.Advice) >= minAdviceItems && len(s.Advice) <= maxAdviceItems
}

// ParseCodeReview verifies the structured review contract: a
// "code_review" object plus a "study_plan" list.
func ParseCodeReview(raw string) (*model.Suggestion, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("not a JSON object: %v", err), Raw: raw}
	}

	rawReview, ok := top["code_review"]
	if !ok {
		return nil, &ParseError{Reason: `missing required key "code_review"`, Raw: raw}
	}

	var review model.CodeReview
	if err := json.Unmarshal(rawReview, &review); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf(`key "code_review" is not a review object: %v`, err), Raw: raw}
	}
	if review.Summary == "" && review.Approach == "" {
		return nil, &ParseError{Reason: "code_review has neither summary nor approach", Raw: raw}
	}

	var plan []model.StudyTopic
	if rawPlan, ok := top["study_plan"]; ok {
		if err := json.Unmarshal(rawPlan, &plan); err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf(`key "study_plan" is not a topic list: %v`, err), Raw: raw}
		}
	}

	return &model.Suggestion{
		Kind:       model.SuggestionKindCodeReview,
		CodeReview: &review,
		StudyPlan:  plan,
	}, nil
}
