package agent

import (
	"context"
	"strings"

	"github.com/civicpulse/civicpulse/internal/storage"
)

// HeuristicProcessor is a keyword-lexicon Processor. It keeps the
// pipeline moving when no model-backed processor is configured; scores
// are coarse and confidence reflects that.
type HeuristicProcessor struct{}

func NewHeuristicProcessor() *HeuristicProcessor {
	return &HeuristicProcessor{}
}

var categoryTerms = map[storage.Category][]string{
	storage.CategoryHealth: {
		"clinic", "hospital", "doctor", "health", "medical", "ambulance",
	},
	storage.CategoryInfrastructure: {
		"road", "pothole", "bridge", "water", "sewer", "power", "street", "sidewalk",
	},
	storage.CategorySafety: {
		"crime", "unsafe", "danger", "police", "fire", "light", "crosswalk", "theft",
	},
}

var positiveTerms = []string{
	"good", "great", "thank", "improved", "clean", "excellent", "love", "better",
}

var negativeTerms = []string{
	"bad", "broken", "dirty", "unsafe", "terrible", "worse", "complaint", "dangerous", "problem",
}

func (p *HeuristicProcessor) Process(ctx context.Context, fb storage.Feedback) (Result, error) {
	text := strings.ToLower(fb.Text)

	category := storage.CategoryOther
	best := 0
	// Fixed iteration order so ties resolve the same way every run.
	for _, cat := range storage.Categories {
		hits := 0
		for _, term := range categoryTerms[cat] {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if hits > best {
			best = hits
			category = cat
		}
	}

	score := 0
	for _, term := range positiveTerms {
		if strings.Contains(text, term) {
			score++
		}
	}
	for _, term := range negativeTerms {
		if strings.Contains(text, term) {
			score--
		}
	}

	sentiment := float64(score) / 3
	if sentiment > 1 {
		sentiment = 1
	}
	if sentiment < -1 {
		sentiment = -1
	}

	confidence := 0.3
	if best > 1 {
		confidence = 0.5
	}

	return Result{Category: category, Sentiment: sentiment, Confidence: confidence}, nil
}
