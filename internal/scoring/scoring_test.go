package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/learnly/prepexam-backend/internal/model"
)

func strPtr(s string) *string { return &s }

func makeQuestions(correct []int, domains []string) []model.Question {
	qs := make([]model.Question, len(correct))
	for i := range correct {
		qs[i] = model.Question{
			ID:            uuid.New(),
			QuestionText:  "q",
			Options:       []string{"a", "b", "c", "d"},
			CorrectOption: correct[i],
			OrderNum:      i,
		}
		if domains != nil && domains[i] != "" {
			d := domains[i]
			qs[i].Domain = &d
		}
	}
	return qs
}

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		correct     []int
		answers     []*string
		wantPercent int
		wantCorrect int
	}{
		{
			name:        "two of three correct rounds to 67",
			correct:     []int{1, 2, 0},
			answers:     []*string{strPtr("1"), strPtr("3"), strPtr("0")},
			wantPercent: 67,
			wantCorrect: 2,
		},
		{
			name:        "all correct",
			correct:     []int{0, 0},
			answers:     []*string{strPtr("0"), strPtr("0")},
			wantPercent: 100,
			wantCorrect: 2,
		},
		{
			name:        "absent answers never count",
			correct:     []int{0, 1, 2},
			answers:     []*string{nil, strPtr("1"), nil},
			wantPercent: 33,
			wantCorrect: 1,
		},
		{
			name:        "short answer list treated as unanswered",
			correct:     []int{0, 1, 2, 3},
			answers:     []*string{strPtr("0")},
			wantPercent: 25,
			wantCorrect: 1,
		},
		{
			name:        "whitespace tokens are normalized",
			correct:     []int{2},
			answers:     []*string{strPtr(" 2 ")},
			wantPercent: 100,
			wantCorrect: 1,
		},
		{
			name:        "no questions scores zero",
			correct:     nil,
			answers:     nil,
			wantPercent: 0,
			wantCorrect: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(makeQuestions(tt.correct, nil), tt.answers)
			if res.Percent != tt.wantPercent {
				t.Errorf("Percent = %d, want %d", res.Percent, tt.wantPercent)
			}
			if res.CorrectCount != tt.wantCorrect {
				t.Errorf("CorrectCount = %d, want %d", res.CorrectCount, tt.wantCorrect)
			}
			if res.TotalQuestions != len(tt.correct) {
				t.Errorf("TotalQuestions = %d, want %d", res.TotalQuestions, len(tt.correct))
			}
		})
	}
}

func TestScoreDomainBreakdown(t *testing.T) {
	questions := makeQuestions(
		[]int{0, 1, 2, 3},
		[]string{"Algebra", "Algebra", "", "Geometry"},
	)
	answers := []*string{strPtr("0"), strPtr("2"), strPtr("2"), strPtr("3")}

	res := Score(questions, answers)

	if res.CorrectCount != 3 {
		t.Fatalf("CorrectCount = %d, want 3", res.CorrectCount)
	}

	want := map[string]DomainScore{
		"Algebra":  {Domain: "Algebra", Correct: 1, Total: 2, Percent: 50},
		"General":  {Domain: "General", Correct: 1, Total: 1, Percent: 100},
		"Geometry": {Domain: "Geometry", Correct: 1, Total: 1, Percent: 100},
	}
	if len(res.Domains) != len(want) {
		t.Fatalf("got %d domains, want %d", len(res.Domains), len(want))
	}

	sum := 0
	for _, ds := range res.Domains {
		w, ok := want[ds.Domain]
		if !ok {
			t.Fatalf("unexpected domain %q", ds.Domain)
		}
		if ds != w {
			t.Errorf("domain %q = %+v, want %+v", ds.Domain, ds, w)
		}
		sum += ds.Correct
	}
	// Per-domain corrects must add up to the overall correct count.
	if sum != res.CorrectCount {
		t.Errorf("domain correct sum = %d, want %d", sum, res.CorrectCount)
	}
}

func TestTimeSpent(t *testing.T) {
	tests := []struct {
		name      string
		allotted  int
		remaining int
		want      int
	}{
		{"normal", 3600, 3000, 600},
		{"expired", 3600, 0, 3600},
		{"never negative", 60, 120, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeSpent(tt.allotted, tt.remaining); got != tt.want {
				t.Errorf("TimeSpent(%d, %d) = %d, want %d", tt.allotted, tt.remaining, got, tt.want)
			}
		})
	}
}
