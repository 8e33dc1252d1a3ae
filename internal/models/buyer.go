package models

// Buyer is the authenticated caller, taken from the bearer token.
type Buyer struct {
	ID    int64
	Email string
}
