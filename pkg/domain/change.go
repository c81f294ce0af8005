package domain

import (
	"errors"
	"fmt"
	"strings"
)

// EntityType identifies the type of record touched by a mutation.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	EntityItem       EntityType = "item"
	EntityEffect     EntityType = "effect"
	EntityActor      EntityType = "actor"
	EntityCompendium EntityType = "compendium"
	EntityScene      EntityType = "scene"
	EntityFolder     EntityType = "folder"
)

// Action enumerates the CRUD operations captured in the audit trail.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change records one mutation applied within a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	Identity Identity
	Before   any
	After    any
}

// Severity captures how an operation outcome affects commit behavior.
type Severity string

const (
	// SeverityBlock vetoes the mutation.
	SeverityBlock Severity = "block"
	// SeverityWarn surfaces a degraded outcome but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a degraded or refused outcome tied to one record.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	Identity Identity
}

// Result aggregates violations produced while processing an operation,
// including best-effort propagation failures that did not abort it.
type Result struct {
	Violations []Violation
}

// Merge folds another result into the receiver.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	out := make([]Violation, 0, len(r.Violations))
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// ErrVetoed is returned by a pre-mutation hook to cancel the operation. The
// veto is synchronous within the triggering mutation; any replacement write
// must be scheduled as a followup.
var ErrVetoed = errors.New("mutation vetoed")

// NotFoundError reports a missing record during reference validation.
type NotFoundError struct {
	Entity   EntityType
	Identity Identity
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Identity)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// VetoError carries the violations that caused a blocking veto.
type VetoError struct {
	Result Result
}

func (e VetoError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	return "mutation vetoed: " + strings.Join(msgs, "; ")
}
