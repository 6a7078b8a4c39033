package domain

import (
	"hash/fnv"
	"time"
)

type FeatureFlag struct {
	Key            string    `db:"flag_key" json:"key"`
	Description    string    `db:"description" json:"description"`
	Enabled        bool      `db:"enabled" json:"enabled"`
	RolloutPercent int       `db:"rollout_percent" json:"rollout_percent"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Evaluate is sticky per subject: the same key/subject pair always lands
// in the same bucket.
func (f *FeatureFlag) Evaluate(subject string) bool {
	if f == nil || !f.Enabled {
		return false
	}
	if f.RolloutPercent >= 100 {
		return true
	}
	if f.RolloutPercent <= 0 || subject == "" {
		return false
	}
	return Bucket(f.Key, subject) < f.RolloutPercent
}

// Bucket maps key/subject onto 0..99.
func Bucket(key, subject string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key + ":" + subject))
	return int(h.Sum32() % 100)
}
