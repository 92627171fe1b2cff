// Package authz provides small composable authorization predicates the
// HTTP layer evaluates before mutating operations. A rule answers one
// question; handlers combine them with All.
package authz

import (
	"context"
	"errors"

	"github.com/envault/envault/internal/common"
)

// Rule is a single authorization predicate. It returns nil to allow,
// common.ErrorUnauthorized to deny, or another error when the check itself
// could not run.
type Rule func(ctx context.Context) error

// All evaluates the rules in order and stops at the first failure.
func All(rules ...Rule) Rule {
	return func(ctx context.Context) error {
		for _, r := range rules {
			if err := r(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// MembershipChecker reports whether a user currently holds a key wrap for
// a project.
type MembershipChecker interface {
	Members(ctx context.Context, projectID string) ([]string, error)
}

// ProjectMember allows only current members of the project. A missing
// project denies rather than erroring: non-members cannot probe which
// project ids exist.
func ProjectMember(checker MembershipChecker, projectID, userID string) Rule {
	return func(ctx context.Context) error {
		members, err := checker.Members(ctx, projectID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return err
		}
		for _, m := range members {
			if m == userID {
				return nil
			}
		}
		return common.ErrorUnauthorized
	}
}

// InvitationGetter loads an invitation by id.
type InvitationGetter interface {
	Author(ctx context.Context, invitationID string) (string, error)
}

// InvitationAuthor allows only the user who created the invitation.
func InvitationAuthor(getter InvitationGetter, invitationID, userID string) Rule {
	return func(ctx context.Context) error {
		author, err := getter.Author(ctx, invitationID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return err
		}
		if author != userID {
			return common.ErrorUnauthorized
		}
		return nil
	}
}
