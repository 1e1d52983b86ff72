package matching

import (
	"fmt"
	"math"

	"github.com/david/opportunity-matcher/internal/models"
)

// WeightSumTolerance is how far a weight set may drift from 1.0.
const WeightSumTolerance = 0.01

const (
	highConfidenceThreshold   = 0.75
	mediumConfidenceThreshold = 0.5
)

// Weights sets how much each factor contributes to the overall score.
type Weights struct {
	TechFocus float64 `mapstructure:"tech_focus" yaml:"tech_focus" json:"tech_focus"`
	Stage     float64 `mapstructure:"stage" yaml:"stage" json:"stage"`
	Timeline  float64 `mapstructure:"timeline" yaml:"timeline" json:"timeline"`
	Budget    float64 `mapstructure:"budget" yaml:"budget" json:"budget"`
	Keyword   float64 `mapstructure:"keyword" yaml:"keyword" json:"keyword"`
}

// DefaultWeights returns the stock weight set.
func DefaultWeights() Weights {
	return Weights{
		TechFocus: 0.35,
		Stage:     0.25,
		Timeline:  0.15,
		Budget:    0.15,
		Keyword:   0.10,
	}
}

func (w Weights) Sum() float64 {
	return w.TechFocus + w.Stage + w.Timeline + w.Budget + w.Keyword
}

// Validate rejects weights outside [0,1] and sets whose sum is not 1.0 within
// WeightSumTolerance. All failures wrap ErrInvalidWeights.
func (w Weights) Validate() error {
	named := []struct {
		name  string
		value float64
	}{
		{"tech_focus", w.TechFocus},
		{"stage", w.Stage},
		{"timeline", w.Timeline},
		{"budget", w.Budget},
		{"keyword", w.Keyword},
	}
	for _, n := range named {
		if math.IsNaN(n.value) || n.value < 0 || n.value > 1 {
			return fmt.Errorf("%w: %s weight %v outside [0,1]", ErrInvalidWeights, n.name, n.value)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightSumTolerance {
		return fmt.Errorf("%w: weights sum to %.4f, want 1.0 ± %.2f", ErrInvalidWeights, sum, WeightSumTolerance)
	}
	return nil
}

// Aggregate is the weighted sum of the factor scores in d, bounded to [0,1].
func (w Weights) Aggregate(d models.MatchDetails) float64 {
	return ClampUnit(d.TechFocusMatch*w.TechFocus +
		d.StageMatch*w.Stage +
		d.TimelineMatch*w.Timeline +
		d.BudgetMatch*w.Budget +
		d.KeywordMatch*w.Keyword)
}

// ConfidenceFor maps an overall score to its label.
func ConfidenceFor(score float64) models.Confidence {
	switch {
	case score >= highConfidenceThreshold:
		return models.ConfidenceHigh
	case score >= mediumConfidenceThreshold:
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}
