package core

// Actor is the identity a request carries. Authentication itself happens at
// the transport layer; the engine only cares about id and role.
type Actor struct {
	ID    string
	Admin bool
}

type Right string

const (
	RightView    Right = "view"
	RightCollect Right = "collect"
	RightDelete  Right = "delete"
	RightAdmin   Right = "admin"
)

// Allows is the single capability check every operation goes through.
// Admins hold every right; owners hold the per-resource rights on their own
// jobs and batches.
func Allows(actor Actor, ownerID string, right Right) bool {
	if actor.Admin {
		return true
	}
	switch right {
	case RightView, RightCollect, RightDelete:
		return actor.ID != "" && actor.ID == ownerID
	default:
		return false
	}
}

func authorize(actor Actor, ownerID string, right Right, what string) error {
	if Allows(actor, ownerID, right) {
		return nil
	}
	return &UnauthorizedError{Message: "not authorized to " + string(right) + " this " + what}
}
