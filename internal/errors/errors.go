// Package errors defines the user-facing error kinds reported by gitlet commands.
package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeNotInitialized      ErrorType = "NOT_INITIALIZED"
	ErrorTypeAlreadyInitialized  ErrorType = "ALREADY_INITIALIZED"
	ErrorTypeFileNotFound        ErrorType = "FILE_NOT_FOUND"
	ErrorTypeNothingToCommit     ErrorType = "NOTHING_TO_COMMIT"
	ErrorTypeEmptyMessage        ErrorType = "EMPTY_MESSAGE"
	ErrorTypeNothingToRemove     ErrorType = "NOTHING_TO_REMOVE"
	ErrorTypeNoSuchCommit        ErrorType = "NO_SUCH_COMMIT"
	ErrorTypeNoSuchBranch        ErrorType = "NO_SUCH_BRANCH"
	ErrorTypeFileNotInCommit     ErrorType = "FILE_NOT_IN_COMMIT"
	ErrorTypeBranchExists        ErrorType = "BRANCH_EXISTS"
	ErrorTypeCannotRemoveCurrent ErrorType = "CANNOT_REMOVE_CURRENT"
	ErrorTypeAlreadyCurrent      ErrorType = "ALREADY_CURRENT"
	ErrorTypeUntrackedInWay      ErrorType = "UNTRACKED_FILE_IN_WAY"
	ErrorTypeUncommittedChanges  ErrorType = "UNCOMMITTED_CHANGES"
	ErrorTypeAmbiguousID         ErrorType = "AMBIGUOUS_ID"
	ErrorTypeSelfMerge           ErrorType = "SELF_MERGE"
	ErrorTypeInvalidArgument     ErrorType = "INVALID_ARGUMENT"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeInternal            ErrorType = "INTERNAL"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// User reports whether the error is a user error, as opposed to an internal defect.
func (e *Error) User() bool {
	return e.Type != ErrorTypeInternal
}

func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

func WithDetails(t ErrorType, message string, details any) *Error {
	return &Error{Type: t, Message: message, Details: details}
}

func Internal(message string, err error) *Error {
	return &Error{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Is reports whether any error in err's chain is an *Error of type t.
func Is(err error, t ErrorType) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}

func NotInitialized() *Error {
	return New(ErrorTypeNotInitialized, "Not in an initialized Gitlet directory.")
}

func AlreadyInitialized() *Error {
	return New(ErrorTypeAlreadyInitialized,
		"A Gitlet version-control system already exists in the current directory.")
}

func FileNotFound(path string) *Error {
	return WithDetails(ErrorTypeFileNotFound, "File does not exist.", path)
}

func NothingToCommit() *Error {
	return New(ErrorTypeNothingToCommit, "No changes added to the commit.")
}

func EmptyMessage() *Error {
	return New(ErrorTypeEmptyMessage, "Please enter a commit message.")
}

func NothingToRemove(path string) *Error {
	return WithDetails(ErrorTypeNothingToRemove, "No reason to remove the file.", path)
}

func NoSuchCommit(id string) *Error {
	return WithDetails(ErrorTypeNoSuchCommit, "No commit with that id exists.", id)
}

func NoSuchBranch(name string) *Error {
	return WithDetails(ErrorTypeNoSuchBranch, "No such branch exists.", name)
}

func BranchNotExists(name string) *Error {
	return WithDetails(ErrorTypeNoSuchBranch, "A branch with that name does not exist.", name)
}

func FileNotInCommit(path string) *Error {
	return WithDetails(ErrorTypeFileNotInCommit, "File does not exist in that commit.", path)
}

func BranchExists(name string) *Error {
	return WithDetails(ErrorTypeBranchExists, "A branch with that name already exists.", name)
}

func CannotRemoveCurrent() *Error {
	return New(ErrorTypeCannotRemoveCurrent, "Cannot remove the current branch.")
}

func AlreadyCurrent() *Error {
	return New(ErrorTypeAlreadyCurrent, "No need to checkout the current branch.")
}

func UntrackedInWay(paths []string) *Error {
	return WithDetails(ErrorTypeUntrackedInWay,
		"There is an untracked file in the way; delete it, or add and commit it first.", paths)
}

func UncommittedChanges() *Error {
	return New(ErrorTypeUncommittedChanges, "You have uncommitted changes.")
}

func AmbiguousID(prefix string, matches []string) *Error {
	return WithDetails(ErrorTypeAmbiguousID, "Commit id prefix is ambiguous.",
		map[string]any{"prefix": prefix, "matches": matches})
}

func SelfMerge() *Error {
	return New(ErrorTypeSelfMerge, "Cannot merge a branch with itself.")
}

func InvalidArgument(message string, details any) *Error {
	return WithDetails(ErrorTypeInvalidArgument, message, details)
}

func NotFound(message string) *Error {
	return New(ErrorTypeNotFound, message)
}
