package auth

import "github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"

// Outcome is the result of a login step. It is one of GeneralSuccess,
// AdminChallenge or Failed.
type Outcome interface {
	outcome()
}

// GeneralSuccess means the identity has been written to the session.
type GeneralSuccess struct {
	Identity session.Identity
}

// AdminChallenge means the account needs a password before it is signed in.
// Seal is the opaque token that must accompany the password submission.
type AdminChallenge struct {
	UserID  string
	IsAdmin bool
	Seal    string
}

// Failed carries the reason a step failed. The session is left untouched.
type Failed struct {
	Err error
}

func (GeneralSuccess) outcome() {}
func (AdminChallenge) outcome() {}
func (Failed) outcome()         {}

func (f Failed) Error() string {
	if f.Err == nil {
		return "login failed"
	}
	return f.Err.Error()
}
