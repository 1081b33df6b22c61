// Package matching holds the dating-match documents exchanged inside
// envelopes: validation, the compatibility analyzer and result summaries.
package matching

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"lovefi/agent-client/pkg/models"
)

const (
	RequestSchema  = "matching_request_schema"
	ResponseSchema = "matching_response_schema"
)

const (
	minAge          = 18
	maxAge          = 120
	maxInterests    = 50
	maxInterestLen  = 64
	maxLocationLen  = 128
	maxNameLen      = 64
	maxBioLen       = 1024
	maxScore        = 100
	maxRecommendLen = 20
)

var (
	ErrInvalidProfile  = errors.New("invalid profile")
	ErrInvalidResponse = errors.New("invalid matching response")
)

// NormalizeProfile trims text fields and validates the profile.
func NormalizeProfile(p models.Profile) (models.Profile, error) {
	if p.Age < minAge || p.Age > maxAge {
		return models.Profile{}, fmt.Errorf("%w: age must be between %d and %d", ErrInvalidProfile, minAge, maxAge)
	}
	if len(p.Interests) > maxInterests {
		return models.Profile{}, fmt.Errorf("%w: at most %d interests", ErrInvalidProfile, maxInterests)
	}
	interests := make([]string, 0, len(p.Interests))
	for _, interest := range p.Interests {
		interest = strings.TrimSpace(interest)
		if interest == "" || len(interest) > maxInterestLen {
			return models.Profile{}, fmt.Errorf("%w: interest must be 1..%d characters", ErrInvalidProfile, maxInterestLen)
		}
		interests = append(interests, interest)
	}
	location := strings.TrimSpace(p.Location)
	if location == "" || len(location) > maxLocationLen {
		return models.Profile{}, fmt.Errorf("%w: location is required", ErrInvalidProfile)
	}
	name := strings.TrimSpace(p.Name)
	if len(name) > maxNameLen {
		return models.Profile{}, fmt.Errorf("%w: name is too long", ErrInvalidProfile)
	}
	bio := strings.TrimSpace(p.Bio)
	if len(bio) > maxBioLen {
		return models.Profile{}, fmt.Errorf("%w: bio is too long", ErrInvalidProfile)
	}
	return models.Profile{
		Age:       p.Age,
		Interests: interests,
		Location:  location,
		Name:      name,
		Bio:       bio,
	}, nil
}

func NewRequest(p1, p2 models.Profile) (models.MatchingRequest, error) {
	first, err := NormalizeProfile(p1)
	if err != nil {
		return models.MatchingRequest{}, fmt.Errorf("profile1: %w", err)
	}
	second, err := NormalizeProfile(p2)
	if err != nil {
		return models.MatchingRequest{}, fmt.Errorf("profile2: %w", err)
	}
	return models.MatchingRequest{Profile1: first, Profile2: second}, nil
}

func ValidateResponse(resp models.MatchingResponse) error {
	if math.IsNaN(resp.Score) || resp.Score < 0 || resp.Score > maxScore {
		return fmt.Errorf("%w: score must be within [0, %d]", ErrInvalidResponse, maxScore)
	}
	if len(resp.Recommendations) > maxRecommendLen {
		return fmt.Errorf("%w: too many recommendations", ErrInvalidResponse)
	}
	return nil
}
