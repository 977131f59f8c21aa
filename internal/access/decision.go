package access

import "github.com/autoscripty/internal/constants"

// Decision is the outcome of an access check
type Decision int

const (
	Allow Decision = iota
	Redirect
)

func (d Decision) String() string {
	if d == Redirect {
		return constants.DecisionRedirect
	}
	return constants.DecisionAllow
}

// Decide redirects exactly the requests without a session on protected paths
func Decide(sessionPresent, isProtected bool) Decision {
	if !sessionPresent && isProtected {
		return Redirect
	}
	return Allow
}
