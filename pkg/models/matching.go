package models

type Profile struct {
	Age       int      `json:"age"`
	Interests []string `json:"interests"`
	Location  string   `json:"location"`
	Name      string   `json:"name,omitempty"`
	Bio       string   `json:"bio,omitempty"`
}

type MatchingRequest struct {
	Profile1 Profile `json:"profile1"`
	Profile2 Profile `json:"profile2"`
}

type AgeFactor struct {
	AgeDifference      int     `json:"age_difference"`
	CompatibilityScore float64 `json:"compatibility_score"`
	Reason             string  `json:"reason"`
	LifeStageMatch     bool    `json:"life_stage_match"`
}

type InterestsFactor struct {
	DirectMatches      int      `json:"direct_matches"`
	SemanticMatches    int      `json:"semantic_matches"`
	TotalInterests     int      `json:"total_interests"`
	CommonCategories   []string `json:"common_categories"`
	CompatibilityScore float64  `json:"compatibility_score"`
}

type LocationFactor struct {
	MatchType          string  `json:"match_type"`
	CompatibilityScore float64 `json:"compatibility_score"`
	Reason             string  `json:"reason"`
}

type CompatibilityFactors struct {
	Age          AgeFactor       `json:"age"`
	Interests    InterestsFactor `json:"interests"`
	Location     LocationFactor  `json:"location"`
	OverallScore float64         `json:"overall_score"`
}

type MatchingResponse struct {
	Score                float64              `json:"score"`
	Explanation          string               `json:"explanation"`
	CompatibilityFactors CompatibilityFactors `json:"compatibility_factors"`
	Recommendations      []string             `json:"recommendations"`
}

// MatchSummary is the condensed view of a MatchingResponse printed by clients.
type MatchSummary struct {
	Status                 string             `json:"status"`
	Score                  float64            `json:"score"`
	CompatibilityBreakdown map[string]float64 `json:"compatibility_breakdown"`
	Recommendations        []string           `json:"recommendations"`
	MatchQuality           string             `json:"match_quality"`
	Authenticated          bool               `json:"authenticated"`
}
