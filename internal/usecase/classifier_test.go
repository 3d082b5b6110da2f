package usecase

import (
	"testing"

	"pickasso/internal/domain"
)

func TestClassifierDefaults(t *testing.T) {
	t.Parallel()

	cases := map[string]domain.CommandType{
		"move forward":           domain.CommandMove,
		"grab the red block":     domain.CommandGrab,
		"place on conveyor":      domain.CommandPlace,
		"emergency stop":         domain.CommandStop,
		"go home":                domain.CommandHome,
		"move and then stop":     domain.CommandMove,
		"stop and go home":       domain.CommandStop,
		"PLEASE GRAB THAT THING": domain.CommandGrab,
	}

	classifier := NewClassifier(nil)
	for utterance, want := range cases {
		utterance := utterance
		want := want
		t.Run(utterance, func(t *testing.T) {
			t.Parallel()
			got, ok := classifier.Classify(utterance)
			if !ok || got != want {
				t.Fatalf("expected %s, got %s (ok=%t)", want, got, ok)
			}
		})
	}
}

func TestClassifierNoMatch(t *testing.T) {
	t.Parallel()

	if got, ok := NewClassifier(nil).Classify("what time is it"); ok {
		t.Fatalf("expected no match, got %s", got)
	}
}

func TestClassifierAcceptsManualOnlyTypes(t *testing.T) {
	t.Parallel()

	classifier := NewClassifier(append(DefaultKeywordRules(),
		KeywordRule{Keyword: " Calibrate ", Type: domain.CommandCalibrate},
		KeywordRule{Keyword: "reset", Type: domain.CommandReset},
		KeywordRule{Keyword: "", Type: domain.CommandReset},
	))

	if got, ok := classifier.Classify("calibrate the arm"); !ok || got != domain.CommandCalibrate {
		t.Fatalf("expected CALIBRATE, got %s", got)
	}
	if got, ok := classifier.Classify("reset errors"); !ok || got != domain.CommandReset {
		t.Fatalf("expected RESET, got %s", got)
	}
}
