// Package scope resolves an authenticated actor into the tenant predicate
// applied to every circulation query. The resolver is pure: it never touches
// the database, it only emits SQL fragments for the repositories to append.
package scope

import (
	"fmt"

	"github.com/noah-isme/sma-perpus-api/internal/models"
)

// Actor is the authenticated identity performing an operation. It is passed
// explicitly into every circulation and notification call; there is no
// ambient session state.
type Actor struct {
	ID       string
	Role     models.UserRole
	SchoolID *string
}

// FromClaims builds an Actor from validated JWT claims.
func FromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{ID: claims.UserID, Role: claims.Role, SchoolID: claims.SchoolID}
}

// IsAdmin reports whether the actor sees across all schools.
func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

type condition struct {
	expr  string
	value interface{}
}

// Predicate is the scoping outcome for one entity kind. A denied predicate
// yields the empty set: listings return no rows and actions return 403
// rather than leaking cross-tenant data.
type Predicate struct {
	denied bool
	conds  []condition
}

// Denied reports whether the predicate collapses to the empty set.
func (p Predicate) Denied() bool { return p.denied }

// Append adds the predicate's conditions to a repository's dynamic WHERE
// clause, numbering placeholders after the existing args.
func (p Predicate) Append(conds []string, args []interface{}) ([]string, []interface{}) {
	for _, c := range p.conds {
		conds = append(conds, fmt.Sprintf(c.expr, len(args)+1))
		args = append(args, c.value)
	}
	return conds, args
}

func pass() Predicate { return Predicate{} }

func denied() Predicate { return Predicate{denied: true} }

func equals(expr string, value interface{}) Predicate {
	return Predicate{conds: []condition{{expr: expr, value: value}}}
}

// ForLoans scopes queries against the loans table (aliased l), which carries
// a denormalised school_id column.
func ForLoans(actor Actor) Predicate {
	switch actor.Role {
	case models.RoleAdmin:
		return pass()
	case models.RoleLibrarian:
		if actor.SchoolID == nil {
			return denied()
		}
		return equals("l.school_id = $%d", *actor.SchoolID)
	case models.RoleStudent:
		return equals("l.student_id = $%d", actor.ID)
	}
	return denied()
}

// ForBorrowRequests scopes queries against borrow_requests (aliased r).
// Requests have no school column, so librarian scoping joins through the
// requesting student; the result is identical to a native column.
func ForBorrowRequests(actor Actor) Predicate {
	switch actor.Role {
	case models.RoleAdmin:
		return pass()
	case models.RoleLibrarian:
		if actor.SchoolID == nil {
			return denied()
		}
		return equals("r.student_id IN (SELECT id FROM users WHERE school_id = $%d)", *actor.SchoolID)
	case models.RoleStudent:
		return equals("r.student_id = $%d", actor.ID)
	}
	return denied()
}

// ForBooks scopes catalog queries (aliased b). Students see their school's
// catalog, not just their own rows.
func ForBooks(actor Actor) Predicate {
	switch actor.Role {
	case models.RoleAdmin:
		return pass()
	case models.RoleLibrarian, models.RoleStudent:
		if actor.SchoolID == nil {
			return denied()
		}
		return equals("b.school_id = $%d", *actor.SchoolID)
	}
	return denied()
}

// AllowsUser reports whether the actor may act on records belonging to the
// given user. Admin always may; a librarian only within their school.
func AllowsUser(actor Actor, user *models.User) bool {
	if user == nil {
		return false
	}
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleLibrarian:
		return actor.SchoolID != nil && user.SchoolID != nil && *actor.SchoolID == *user.SchoolID
	case models.RoleStudent:
		return actor.ID == user.ID
	}
	return false
}
