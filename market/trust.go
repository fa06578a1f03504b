package market

import (
	"context"
	"math"
)

// Trust score bounds.
const (
	MinTrust     = 0.0
	MaxTrust     = 5.0
	InitialTrust = 5.0
)

// SmoothTrust blends an observation into the current score: the result is
// the mean of the two, clamped to [MinTrust, MaxTrust].
func SmoothTrust(current, observation float64) float64 {
	return math.Max(MinTrust, math.Min(MaxTrust, (current+observation)/2))
}

// TrustScores keeps each user's reputation.
type TrustScores struct {
	m *Manager
}

// Get returns the user's current score.
func (t *TrustScores) Get(ctx context.Context, userID string) (float64, error) {
	u, err := t.m.db.getUser(ctx, t.m.reader(), userID)
	if err != nil {
		return 0, err
	}
	return u.TrustScore, nil
}

// Update folds delta into the user's score and returns the new value.
func (t *TrustScores) Update(ctx context.Context, userID string, delta float64) (float64, error) {
	var score float64
	err := t.m.write(ctx, func(s *scope) error {
		var err error
		score, err = t.update(ctx, s, userID, delta)
		return err
	})
	return score, err
}

func (t *TrustScores) update(ctx context.Context, s *scope, userID string, delta float64) (float64, error) {
	u, err := t.m.db.getUser(ctx, s.tx, userID)
	if err != nil {
		return 0, err
	}
	u.TrustScore = SmoothTrust(u.TrustScore, delta)
	if err := t.m.db.saveUser(ctx, s.tx, u); err != nil {
		return 0, err
	}
	return u.TrustScore, nil
}
