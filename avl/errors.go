package avl

import (
	"errors"
	"fmt"
)

// I/O failure in the backing store. Callers may retry.
var ErrStorage = errors.New("avl: storage failure")

// A HashRef was encountered but the tree context has no node store.
var ErrMissingStore = errors.New("avl: no node store attached")

// A stored record or marshalled key/value could not be encoded or decoded.
var ErrEncoding = errors.New("avl: encoding failure")

// A HashRef points at a record which is not in the store.
var ErrMissingNode = errors.New("avl: node not found in store")

var ErrInvariantViolation = errors.New("avl: tree invariant violated")

var ErrInvalidTree = errors.New("invalid AVL tree structure")

var ErrVersionNotFound = errors.New("avl: version not found")

var ErrIndexOutOfRange = errors.New("avl: index out of range")

// InvariantViolation is the panic value used when a rebalance finds the tree in a state the AVL invariants rule out.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (iv *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvariantViolation, iv.Op, iv.Detail)
}

func (iv *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

func invariantViolation(op, format string, args ...any) {
	panic(&InvariantViolation{Op: op, Detail: fmt.Sprintf(format, args...)})
}
