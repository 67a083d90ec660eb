package auth

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when the policy denies an action.
var ErrForbidden = errors.New("forbidden")

// Action is an operation on an organization-owned resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource is the subject of an authorization decision.
type Resource struct {
	Kind        string // for logs, e.g. "dashboard_view"
	OrgID       string
	CreatedByID string // empty when the resource has no owner
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Reason: reason} }

// Evaluate is the single authorization policy for every procedure.
//
// All actions require membership of the resource's organization. Reads and
// creates are open to every member. Updates and deletes are reserved to the
// resource creator and to ADMIN or OWNER members.
func Evaluate(actor *Principal, resource Resource, action Action) Decision {
	if actor == nil {
		return deny("unauthenticated")
	}
	if !actor.HasActiveOrg() {
		return deny("no active organization")
	}
	if resource.OrgID == "" || actor.OrgID != resource.OrgID {
		return deny("organization mismatch")
	}

	switch action {
	case ActionRead, ActionCreate:
		return allow("member")
	case ActionUpdate, ActionDelete:
		if resource.CreatedByID != "" && resource.CreatedByID == actor.UserID {
			return allow("creator")
		}
		if actor.Role.Elevated() {
			return allow("elevated role")
		}
		return deny("not creator or admin")
	}

	return deny("unknown action")
}

// Authorize evaluates the policy and returns ErrForbidden on deny.
func Authorize(actor *Principal, resource Resource, action Action) error {
	d := Evaluate(actor, resource, action)
	if !d.Allowed {
		return fmt.Errorf("%w: %s %s: %s", ErrForbidden, action, resource.Kind, d.Reason)
	}
	return nil
}
