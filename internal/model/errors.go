package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidOperation       = errors.New("invalid operation")
	ErrConstraintViolation    = errors.New("constraint violation")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrStoreFailure           = errors.New("store failure")
	ErrInvalidInput           = errors.New("invalid input")
)

// Issue codes reported by move validation.
const (
	CodeSelfMove        = "self_move"
	CodeNodeNotFound    = "node_not_found"
	CodeNodeArchived    = "node_archived"
	CodeTargetNotFound  = "target_not_found"
	CodeTargetArchived  = "target_archived"
	CodeCycle           = "cycle"
	CodeDepthLimit      = "depth_limit"
	CodeSlugConflict    = "slug_conflict"
	CodeSameParent      = "same_parent"
	CodeVersionMismatch = "version_mismatch"
	CodeInvalidOptions  = "invalid_options"
	CodeConstraint      = "constraint"
	CodeStoreFailure    = "store_failure"

	CodeTargetIsLeaf   = "target_is_leaf"
	CodeTargetInactive = "target_inactive"
	CodeLargeChildren  = "large_children"
	CodeLargeSubtree   = "large_subtree"
)

// Issue is a single validation finding. Kind is the sentinel matched by errors.Is.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    error  `json:"-"`
}

func NewIssue(kind error, code string, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...), Kind: kind}
}

type MoveError struct {
	NodeID   string
	TargetID string
	Issues   []Issue
}

func (e *MoveError) Error() string {
	target := e.TargetID
	if target == "" {
		target = "root"
	}

	reasons := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		reasons = append(reasons, issue.Message)
	}

	return fmt.Sprintf("cannot move %s to %s: %s", e.NodeID, target, strings.Join(reasons, "; "))
}

func (e *MoveError) Unwrap() error {
	if len(e.Issues) == 0 || e.Issues[0].Kind == nil {
		return ErrInvalidOperation
	}
	return e.Issues[0].Kind
}

// StoreError wraps an infrastructure failure of the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}

// ClassifyStoreError leaves taxonomy errors untouched and wraps everything else as a StoreError.
func ClassifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	for _, known := range []error{ErrNotFound, ErrInvalidOperation, ErrConstraintViolation, ErrConcurrentModification, ErrStoreFailure, ErrInvalidInput} {
		if errors.Is(err, known) {
			return err
		}
	}

	var moveErr *MoveError
	if errors.As(err, &moveErr) {
		return err
	}

	return &StoreError{Op: op, Err: err}
}
