// Package scoring turns a question set, a sparse answer list and elapsed time
// into a final result. All functions are pure; persistence and state belong
// to the session engine.
package scoring

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/learnly/prepexam-backend/internal/model"
)

// DefaultDomain is the bucket for questions without a domain tag.
const DefaultDomain = "General"

// DomainScore is the per-topic slice of the result.
type DomainScore struct {
	Domain  string `json:"domain"`
	Correct int    `json:"correct"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
}

// Result is the outcome of a completed exam session.
type Result struct {
	Percent          int           `json:"percent"`
	CorrectCount     int           `json:"correct_count"`
	TotalQuestions   int           `json:"total_questions"`
	TimeSpentSeconds int           `json:"time_spent_seconds"`
	Domains          []DomainScore `json:"domains"`
}

// Score computes the final percentage and per-domain breakdown.
// answers is index-aligned with questions; a nil entry never counts as
// correct, so an expired timer with unanswered questions still scores.
func Score(questions []model.Question, answers []*string) Result {
	res := Result{TotalQuestions: len(questions)}
	if len(questions) == 0 {
		return res
	}

	byDomain := make(map[string]*DomainScore)

	for i, q := range questions {
		domain := DefaultDomain
		if q.Domain != nil && *q.Domain != "" {
			domain = *q.Domain
		}
		ds, ok := byDomain[domain]
		if !ok {
			ds = &DomainScore{Domain: domain}
			byDomain[domain] = ds
		}
		ds.Total++

		if i < len(answers) && answerMatches(answers[i], q.CorrectOption) {
			res.CorrectCount++
			ds.Correct++
		}
	}

	res.Percent = roundPercent(res.CorrectCount, res.TotalQuestions)

	domains := make([]DomainScore, 0, len(byDomain))
	for _, ds := range byDomain {
		ds.Percent = roundPercent(ds.Correct, ds.Total)
		domains = append(domains, *ds)
	}
	sort.Slice(domains, func(a, b int) bool { return domains[a].Domain < domains[b].Domain })
	res.Domains = domains

	return res
}

// TimeSpent derives elapsed seconds from the clock, floored at zero.
func TimeSpent(allottedSeconds, remainingSeconds int) int {
	spent := allottedSeconds - remainingSeconds
	if spent < 0 {
		return 0
	}
	return spent
}

// answerMatches compares a stored option token against the correct option
// index. Tokens arrive as strings from the wire, so the comparison is
// numeric when the token parses and falls back to string equality.
func answerMatches(answer *string, correct int) bool {
	if answer == nil {
		return false
	}
	token := strings.TrimSpace(*answer)
	if token == "" {
		return false
	}
	if n, err := strconv.Atoi(token); err == nil {
		return n == correct
	}
	return token == strconv.Itoa(correct)
}

func roundPercent(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}
