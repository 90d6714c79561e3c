package core

// Actor is the caller as asserted by a verified token.
type Actor struct {
	ID    string
	Name  string
	Email string
	Admin bool
}
