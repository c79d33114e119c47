package scoring

import "github.com/Ramsey-B/clover/pkg/models"

// Classify maps a total score to its outcome band. A score equal to a
// threshold belongs to the higher band: score == DefiniteMatchFrom is a
// definite match, score == NoMatchBelow is a potential match.
func Classify(totalScore float64, thresholds models.MatchThresholds) models.MatchOutcome {
	if totalScore < thresholds.NoMatchBelow {
		return models.OutcomeNoMatch
	}
	if totalScore >= thresholds.DefiniteMatchFrom {
		return models.OutcomeDefiniteMatch
	}
	return models.OutcomePotentialMatch
}

// Explain renders a short human-readable summary for a classified score,
// surfaced on review queue items.
func Explain(score models.MatchScore, outcome models.MatchOutcome) string {
	strongest := ""
	best := -1.0
	for _, fs := range score.FieldScores {
		if fs.MetThreshold && fs.Contribution > best {
			best = fs.Contribution
			strongest = fs.Field
		}
	}
	if strongest == "" {
		return string(outcome)
	}
	return string(outcome) + ": strongest field " + strongest
}
