package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors matched with errors.Is against the typed errors below.
var (
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrNotFound          = errors.New("not found")
	ErrStateGuard        = errors.New("state guard violation")
	ErrEncodingOverflow  = errors.New("encoding overflow")
	ErrRestore           = errors.New("restore failed")
	ErrUnauthorized      = errors.New("not authorized")
)

// ValidationError lists required fields that were empty.
type ValidationError struct {
	Entity EntityType
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: required fields empty: %s", e.Entity, strings.Join(e.Fields, ", "))
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func requireFields(entity EntityType, fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return &ValidationError{Entity: entity, Fields: missing}
}

// DuplicateIdentityError names an identity that already owns a participant record.
type DuplicateIdentityError struct {
	Identity Identity
	Existing EntityType
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("identity %q already registered as %s", e.Identity, e.Existing)
}

// Is matches ErrDuplicateIdentity.
func (e *DuplicateIdentityError) Is(target error) bool { return target == ErrDuplicateIdentity }

// NotFoundError is returned for unknown ids and keys.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError for a numeric id.
func NotFound(entity EntityType, id uint64) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(id)}
}

// StateGuardViolation reports an operation refused by the current record state.
type StateGuardViolation struct {
	Entity EntityType
	ID     uint64
	Reason string
}

func (e *StateGuardViolation) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Reason)
}

// Is matches ErrStateGuard.
func (e *StateGuardViolation) Is(target error) bool { return target == ErrStateGuard }

// EncodingOverflowError reports a value whose encoding exceeds its declared bound.
// It signals a contract breach rather than bad user input.
type EncodingOverflowError struct {
	Type string
	Size int
	Max  int
}

func (e *EncodingOverflowError) Error() string {
	return fmt.Sprintf("encoded %s is %d bytes, exceeds max %d", e.Type, e.Size, e.Max)
}

// Is matches ErrEncodingOverflow.
func (e *EncodingOverflowError) Is(target error) bool { return target == ErrEncodingOverflow }

// RestoreFailure wraps a snapshot that could not be decoded or applied.
type RestoreFailure struct {
	Stage string
	Err   error
}

func (e *RestoreFailure) Error() string {
	return fmt.Sprintf("restore %s: %v", e.Stage, e.Err)
}

func (e *RestoreFailure) Unwrap() error { return e.Err }

// Is matches ErrRestore.
func (e *RestoreFailure) Is(target error) bool { return target == ErrRestore }

// AuthorizationError is returned when a caller acts on a record it does not own.
type AuthorizationError struct {
	Identity Identity
	Action   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("identity %q may not %s", e.Identity, e.Action)
}

// Is matches ErrUnauthorized.
func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }
