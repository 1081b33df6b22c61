package matching

import (
	"fmt"
	"math"
	"strings"

	"lovefi/agent-client/pkg/models"
)

const (
	ageWeight      = 0.25
	interestWeight = 0.50
	locationWeight = 0.25
)

const (
	LocationExact     = "exact"
	LocationSameCity  = "same_city"
	LocationSameState = "same_state"
	LocationDifferent = "different"
)

type interestCategory struct {
	name     string
	keywords []string
}

// Categories are matched by substring, in this order.
var interestCategories = []interestCategory{
	{"outdoor", []string{"hiking", "camping", "climbing", "running", "cycling", "surfing", "skiing"}},
	{"creative", []string{"art", "music", "writing", "photography", "painting", "drawing", "crafts"}},
	{"intellectual", []string{"reading", "chess", "debate", "learning", "philosophy", "science"}},
	{"social", []string{"dancing", "parties", "networking", "volunteering", "community"}},
	{"culinary", []string{"cooking", "baking", "wine", "restaurants", "food"}},
	{"fitness", []string{"gym", "yoga", "pilates", "sports", "martial arts", "crossfit"}},
	{"tech", []string{"programming", "gaming", "gadgets", "ai", "blockchain", "coding"}},
}

var (
	majorCities = []string{"new york", "los angeles", "chicago", "houston", "phoenix", "philadelphia"}
	states      = []string{"california", "texas", "florida", "new york", "illinois"}
)

// Analyze scores a matching request. It is deterministic and never fails;
// callers validate the request first.
func Analyze(req models.MatchingRequest) models.MatchingResponse {
	age := AnalyzeAge(req.Profile1.Age, req.Profile2.Age)
	interests := AnalyzeInterests(req.Profile1.Interests, req.Profile2.Interests)
	location := AnalyzeLocation(req.Profile1.Location, req.Profile2.Location)

	score := age.CompatibilityScore*ageWeight*100 +
		interests.CompatibilityScore*interestWeight*100 +
		location.CompatibilityScore*locationWeight*100
	score = math.Max(0, math.Min(100, score))

	factors := models.CompatibilityFactors{
		Age:          age,
		Interests:    interests,
		Location:     location,
		OverallScore: score,
	}
	return models.MatchingResponse{
		Score:                score,
		Explanation:          explain(factors),
		CompatibilityFactors: factors,
		Recommendations:      recommend(req, factors),
	}
}

func AnalyzeAge(age1, age2 int) models.AgeFactor {
	diff := age1 - age2
	if diff < 0 {
		diff = -diff
	}
	var score float64
	var reason string
	switch {
	case diff <= 2:
		score, reason = 1.0, "Very close in age - excellent life stage alignment"
	case diff <= 5:
		score, reason = 0.8, "Good age compatibility - similar life experiences"
	case diff <= 10:
		score, reason = 0.6-float64(diff-5)*0.08, "Moderate age gap - some life stage differences"
	default:
		score, reason = math.Max(0.2, 0.4-float64(diff-10)*0.02), "Significant age gap - may have different priorities"
	}
	return models.AgeFactor{
		AgeDifference:      diff,
		CompatibilityScore: score,
		Reason:             reason,
		LifeStageMatch:     score > 0.7,
	}
}

func AnalyzeInterests(interests1, interests2 []string) models.InterestsFactor {
	cats1 := categorize(interests1)
	cats2 := categorize(interests2)
	common := make([]string, 0)
	union := 0
	for _, c := range interestCategories {
		in1, in2 := cats1[c.name], cats2[c.name]
		if in1 && in2 {
			common = append(common, c.name)
		}
		if in1 || in2 {
			union++
		}
	}
	set1 := toSet(interests1)
	set2 := toSet(interests2)
	direct := 0
	all := make(map[string]struct{}, len(set1)+len(set2))
	for interest := range set1 {
		all[interest] = struct{}{}
		if _, ok := set2[interest]; ok {
			direct++
		}
	}
	for interest := range set2 {
		all[interest] = struct{}{}
	}
	score := 0.0
	if union > 0 {
		score = float64(direct*2+len(common)) / float64(union)
	}
	return models.InterestsFactor{
		DirectMatches:      direct,
		SemanticMatches:    len(common),
		TotalInterests:     len(all),
		CommonCategories:   common,
		CompatibilityScore: score,
	}
}

func AnalyzeLocation(location1, location2 string) models.LocationFactor {
	loc1 := strings.ToLower(strings.TrimSpace(location1))
	loc2 := strings.ToLower(strings.TrimSpace(location2))
	if loc1 == loc2 {
		return models.LocationFactor{MatchType: LocationExact, CompatibilityScore: 1.0, Reason: "Same location - easy to meet"}
	}
	for _, city := range majorCities {
		if strings.Contains(loc1, city) && strings.Contains(loc2, city) {
			return models.LocationFactor{
				MatchType:          LocationSameCity,
				CompatibilityScore: 0.8,
				Reason:             fmt.Sprintf("Same metropolitan area (%s) - manageable distance", city),
			}
		}
	}
	for _, state := range states {
		if strings.Contains(loc1, state) && strings.Contains(loc2, state) {
			return models.LocationFactor{
				MatchType:          LocationSameState,
				CompatibilityScore: 0.4,
				Reason:             fmt.Sprintf("Same state (%s) - possible for long-distance", state),
			}
		}
	}
	return models.LocationFactor{MatchType: LocationDifferent, CompatibilityScore: 0.1, Reason: "Different regions - long-distance challenges"}
}

func categorize(interests []string) map[string]bool {
	out := make(map[string]bool)
	for _, interest := range interests {
		lower := strings.ToLower(interest)
		for _, c := range interestCategories {
			for _, keyword := range c.keywords {
				if strings.Contains(lower, keyword) {
					out[c.name] = true
					break
				}
			}
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}

func explain(f models.CompatibilityFactors) string {
	return fmt.Sprintf("Compatibility Analysis:\n"+
		"• Age: %s (Score: %.0f/100)\n"+
		"• Interests: %d direct matches, %d category overlaps (Score: %.0f/100)\n"+
		"• Location: %s (Score: %.0f/100)",
		f.Age.Reason, f.Age.CompatibilityScore*100,
		f.Interests.DirectMatches, f.Interests.SemanticMatches, f.Interests.CompatibilityScore*100,
		f.Location.Reason, f.Location.CompatibilityScore*100,
	)
}

func recommend(req models.MatchingRequest, f models.CompatibilityFactors) []string {
	out := make([]string, 0, 3)
	if f.Interests.DirectMatches > 0 {
		shared := sharedInterests(req.Profile1.Interests, req.Profile2.Interests, 3)
		out = append(out, "Plan activities around shared interests: "+strings.Join(shared, ", "))
	}
	if f.Age.LifeStageMatch {
		out = append(out, "Your similar life stages create great potential for shared goals")
	} else {
		out = append(out, "Embrace the different perspectives your age difference brings")
	}
	switch f.Location.MatchType {
	case LocationExact:
		out = append(out, "Being in the same area makes meeting up easy - suggest local date spots")
	case LocationSameCity:
		out = append(out, "Explore different neighborhoods together to bridge your local differences")
	}
	return out
}

// sharedInterests keeps the order of the first list.
func sharedInterests(a, b []string, limit int) []string {
	other := toSet(b)
	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	for _, interest := range a {
		if len(out) == limit {
			break
		}
		if _, ok := other[interest]; !ok {
			continue
		}
		if _, dup := seen[interest]; dup {
			continue
		}
		seen[interest] = struct{}{}
		out = append(out, interest)
	}
	return out
}
