package services

import (
	"math"

	"cuearena/models"
)

const (
	RatingKFactor   = 32
	RatingFloor     = 100
	ratingDivisor   = 400.0
	ratingLogisticB = 10.0
)

type ratingThreshold struct {
	min  int
	name string
}

// Ascending; a rating belongs to the last threshold it reaches.
var ratingTiers = []ratingThreshold{
	{0, "Bronze"},
	{1200, "Silver"},
	{1400, "Gold"},
	{1600, "Platinum"},
	{1800, "Diamond"},
	{2000, "Master"},
}

// RatingService computes Elo updates. It holds no state.
type RatingService struct{}

func NewRatingService() *RatingService {
	return &RatingService{}
}

func expectedScore(self, opponent int) float64 {
	return 1 / (1 + math.Pow(ratingLogisticB, float64(opponent-self)/ratingDivisor))
}

// UpdateRatings returns the before/after ratings of both sides of a decided match. The
// loser never drops below RatingFloor.
func (s *RatingService) UpdateRatings(winnerRating, loserRating int) models.RatingChange {
	winnerAfter := int(math.Round(float64(winnerRating) + RatingKFactor*(1-expectedScore(winnerRating, loserRating))))
	loserAfter := int(math.Round(float64(loserRating) + RatingKFactor*(0-expectedScore(loserRating, winnerRating))))
	if loserAfter < RatingFloor {
		loserAfter = RatingFloor
	}

	return models.RatingChange{
		Winner: models.RatingSide{Before: winnerRating, After: winnerAfter, Delta: winnerAfter - winnerRating},
		Loser:  models.RatingSide{Before: loserRating, After: loserAfter, Delta: loserAfter - loserRating},
	}
}

// TierForRating maps a rating to its named tier.
func (s *RatingService) TierForRating(rating int) string {
	name := ratingTiers[0].name
	for _, t := range ratingTiers {
		if rating < t.min {
			break
		}
		name = t.name
	}
	return name
}
