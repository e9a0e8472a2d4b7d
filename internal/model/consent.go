package model

// ConsentPreferences holds the visitor's four consent categories. Essential
// is always true and cannot be revoked; analytics alone decides whether
// viewing behavior may be tracked durably.
type ConsentPreferences struct {
	Essential  bool `json:"essential"`
	Functional bool `json:"functional"`
	Analytics  bool `json:"analytics"`
	Marketing  bool `json:"marketing"`
}

// DefaultConsent returns the preferences applied before the visitor decides.
func DefaultConsent() ConsentPreferences {
	return ConsentPreferences{Essential: true}
}

// Normalize forces the invariant fields regardless of client input.
func (p ConsentPreferences) Normalize() ConsentPreferences {
	p.Essential = true
	return p
}

// UpdateConsentRequest is the payload for storing consent preferences.
type UpdateConsentRequest struct {
	Functional bool `json:"functional"`
	Analytics  bool `json:"analytics"`
	Marketing  bool `json:"marketing"`
}
