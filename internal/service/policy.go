// Package service holds the business rules between HTTP handlers and repositories.
package service

import (
	"context"

	"carkey/internal/config"
	"carkey/internal/middleware"
)

// Actor is the authenticated caller. The zero value is an anonymous visitor.
type Actor struct {
	ID      uint
	IsStaff bool
}

// Authenticated reports whether the actor is a logged-in user.
func (a Actor) Authenticated() bool { return a.ID != 0 }

// Policy decides who may change content.
type Policy struct {
	// DeploymentMode is config.DeploymentOnPrem or config.DeploymentAWS.
	DeploymentMode string
}

// CanEditBoard applies the board edit rule: on-prem installs let authors
// manage their own posts, the AWS deployment reserves edits for staff.
func (p Policy) CanEditBoard(a Actor, ownerID uint) bool {
	if a.IsStaff {
		return true
	}
	if p.DeploymentMode == config.DeploymentAWS {
		return false
	}
	return a.Authenticated() && a.ID == ownerID
}

// CanEditOwn allows the owner or staff.
func (p Policy) CanEditOwn(a Actor, ownerID uint) bool {
	return a.IsStaff || (a.Authenticated() && a.ID == ownerID)
}

// ObjectCleaner removes stored objects once their rows are gone.
type ObjectCleaner func(ctx context.Context, keys []string)

func (f ObjectCleaner) clean(ctx context.Context, keys []string) {
	if f != nil && len(keys) > 0 {
		f(ctx, keys)
	}
}

func logWarn(ctx context.Context, msg string, args ...any) {
	middleware.Logger.WarnContext(ctx, msg, args...)
}
