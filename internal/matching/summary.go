package matching

import "lovefi/agent-client/pkg/models"

const (
	QualityExcellent = "Excellent"
	QualityGood      = "Good"
	QualityModerate  = "Moderate"
	QualityLow       = "Low"
)

func Quality(score float64) string {
	switch {
	case score >= 75:
		return QualityExcellent
	case score >= 60:
		return QualityGood
	case score >= 40:
		return QualityModerate
	default:
		return QualityLow
	}
}

// Summarize condenses a response. authenticated records whether it arrived
// inside a verified envelope.
func Summarize(resp models.MatchingResponse, authenticated bool) models.MatchSummary {
	f := resp.CompatibilityFactors
	recommendations := resp.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}
	return models.MatchSummary{
		Status: "processed",
		Score:  resp.Score,
		CompatibilityBreakdown: map[string]float64{
			"age_score":       f.Age.CompatibilityScore * 100,
			"interests_score": f.Interests.CompatibilityScore * 100,
			"location_score":  f.Location.CompatibilityScore * 100,
		},
		Recommendations: recommendations,
		MatchQuality:    Quality(resp.Score),
		Authenticated:   authenticated,
	}
}
