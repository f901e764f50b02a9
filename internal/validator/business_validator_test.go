package validator

import (
	"testing"

	"github.com/avtotestprime/avtotest-service/internal/models"
)

func TestValidate_QuestionCreate(t *testing.T) {
	v := New()

	tests := []struct {
		name     string
		req      *QuestionCreateRequest
		wantRule string
	}{
		{
			name: "ok",
			req: &QuestionCreateRequest{
				Text:          "Which sign means stop?",
				Variants:      []VariantInput{{Letter: "A", Text: "Red octagon"}, {Letter: "B", Text: "Blue circle"}},
				CorrectAnswer: "A",
			},
		},
		{
			name: "missing text",
			req: &QuestionCreateRequest{
				Variants:      []VariantInput{{Letter: "A", Text: "x"}},
				CorrectAnswer: "A",
			},
			wantRule: "required",
		},
		{
			name: "correct answer outside variants",
			req: &QuestionCreateRequest{
				Text:          "q",
				Variants:      []VariantInput{{Letter: "A", Text: "x"}, {Letter: "B", Text: "y"}},
				CorrectAnswer: "C",
			},
			wantRule: "correct_in_variants",
		},
		{
			name: "letter outside alphabet",
			req: &QuestionCreateRequest{
				Text:          "q",
				Variants:      []VariantInput{{Letter: "K", Text: "x"}},
				CorrectAnswer: "A",
			},
			wantRule: "variant_letter",
		},
		{
			name: "duplicate letters",
			req: &QuestionCreateRequest{
				Text:          "q",
				Variants:      []VariantInput{{Letter: "A", Text: "x"}, {Letter: "A", Text: "y"}},
				CorrectAnswer: "A",
			},
			wantRule: "unique_letters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			if tt.wantRule == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			errs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("Validate() error = %v, want ValidationErrors", err)
			}
			found := false
			for _, e := range errs {
				if e.Rule == tt.wantRule {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() rules = %+v, want %s", errs, tt.wantRule)
			}
		})
	}
}

func TestValidate_Username(t *testing.T) {
	v := New()

	tests := []struct {
		username string
		wantErr  bool
	}{
		{"driver_01", false},
		{"ali.valiyev@mail", false},
		{"Алишер", false},
		{"has space", true},
		{"semi;colon", true},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			err := v.Validate(&UserCreateRequest{Username: tt.username, Password: "secret"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.username, err, tt.wantErr)
			}
		})
	}
}

func TestValidateQuestion_AfterMerge(t *testing.T) {
	bv := NewBusinessValidator()

	q := &models.Question{Text: "q", CorrectAnswer: "D"}
	if err := q.SetVariants([]models.Variant{{Letter: "A", Text: "x"}, {Letter: "B", Text: "y"}}); err != nil {
		t.Fatal(err)
	}

	errs := bv.ValidateQuestion(q)
	if len(errs) != 1 || errs[0].Rule != "correct_in_variants" {
		t.Fatalf("ValidateQuestion() = %+v, want one correct_in_variants error", errs)
	}

	q.CorrectAnswer = "B"
	if errs := bv.ValidateQuestion(q); len(errs) != 0 {
		t.Errorf("ValidateQuestion() = %+v, want none", errs)
	}
}
