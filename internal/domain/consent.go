package domain

import "time"

// Consent categories; necessary cookies are always allowed.
const (
	ConsentNecessary   = "necessary"
	ConsentAnalytics   = "analytics"
	ConsentMarketing   = "marketing"
	ConsentPreferences = "preferences"
)

type Consent struct {
	Analytics   bool      `json:"analytics"`
	Marketing   bool      `json:"marketing"`
	Preferences bool      `json:"preferences"`
	Given       bool      `json:"given"`
	At          time.Time `json:"at,omitempty"`
}

func (c Consent) Categories() []string {
	out := []string{ConsentNecessary}
	if c.Analytics {
		out = append(out, ConsentAnalytics)
	}
	if c.Marketing {
		out = append(out, ConsentMarketing)
	}
	if c.Preferences {
		out = append(out, ConsentPreferences)
	}
	return out
}

type ConsentRecord struct {
	ID         string    `db:"id"`
	SubjectID  string    `db:"subject_id"`
	UserID     *string   `db:"user_id"`
	Categories string    `db:"categories"`
	Version    string    `db:"version"`
	CreatedAt  time.Time `db:"created_at"`
}
