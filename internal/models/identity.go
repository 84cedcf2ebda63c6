package models

// Identity binds a phone-derived identity hash to its owning handle.
type Identity struct {
	ID         string `json:"id"`     // 32-byte identity hash, lowercase hex
	Owner      string `json:"owner"`  // handle entitled to receive funds
	SecretHash string `json:"-"`      // bcrypt hash, never serialized
	Registered bool   `json:"registered"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// Eligibility reports whether an identity may take a loan right now.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"` // first failing condition
}
