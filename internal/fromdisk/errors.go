package fromdisk

import "fmt"

// UnknownReferenceError reports a question tag that is not in the course's
// tag catalog. It is a course content problem; retrying will not help.
type UnknownReferenceError struct {
	Owner string // e.g. "question addNumbers"
	Name  string
	Rank  int
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("%s, unknown tag: %s (position %d)", e.Owner, e.Name, e.Rank)
}

// DuplicateNameError reports a name listed twice in one authoritative list.
type DuplicateNameError struct {
	Owner  string
	Name   string
	First  int
	Second int
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s: %q listed at positions %d and %d", e.Owner, e.Name, e.First, e.Second)
}

// StoreError wraps a database failure during reconciliation. Reconciliation is
// idempotent, so a StoreError caused by a transient failure can be retried.
type StoreError struct {
	Owner string
	Table string
	Op    string // "upsert", "delete" or "lock"
	Name  string // row being written, empty for deletes
	Rank  int
	Err   error
}

func (e *StoreError) Error() string {
	switch e.Op {
	case "delete":
		return fmt.Sprintf("%s: deleting %s beyond rank %d: %v", e.Owner, e.Table, e.Rank, e.Err)
	case "lock":
		return fmt.Sprintf("%s: locking %s: %v", e.Owner, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %s %s %q at rank %d: %v", e.Owner, e.Op, e.Table, e.Name, e.Rank, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
