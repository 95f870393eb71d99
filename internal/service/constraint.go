package service

import (
	"context"

	"category-tree/internal/model"
)

// ConstraintHook applies business rules to a proposed move. Returned errors
// refuse the move; warnings are advisory. Issues without a Kind are treated as
// constraint violations.
type ConstraintHook interface {
	Validate(ctx context.Context, node model.TreeNode, proposedParentID *string) (errs []model.Issue, warnings []model.Issue, err error)
}

type ConstraintFunc func(ctx context.Context, node model.TreeNode, proposedParentID *string) ([]model.Issue, []model.Issue, error)

func (f ConstraintFunc) Validate(ctx context.Context, node model.TreeNode, proposedParentID *string) ([]model.Issue, []model.Issue, error) {
	return f(ctx, node, proposedParentID)
}

func normalizeConstraintIssue(issue model.Issue) model.Issue {
	if issue.Kind == nil {
		issue.Kind = model.ErrConstraintViolation
	}
	if issue.Code == "" {
		issue.Code = model.CodeConstraint
	}
	return issue
}
