package versioning

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures returned by the versioning core.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindDuplicateVersion
	KindVersionNotFound
	KindContentUnavailable
	// KindConflictPresent is advisory. The merged blob exists and the caller
	// decides whether to keep it.
	KindConflictPresent
)

var errorKindNames = map[ErrorKind]string{
	KindValidation:         "validation",
	KindDuplicateVersion:   "duplicate_version",
	KindVersionNotFound:    "version_not_found",
	KindContentUnavailable: "content_unavailable",
	KindConflictPresent:    "conflict_present",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// VersionError wraps a failure with its kind and the document and version it
// concerns.
type VersionError struct {
	Kind         ErrorKind
	Op           string
	DocumentID   string
	VersionLabel string
	Message      string
	Err          error
}

func (e *VersionError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Kind.String())
	b.WriteString("]")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.DocumentID != "" {
		fmt.Fprintf(&b, " %s", e.DocumentID)
		if e.VersionLabel != "" {
			fmt.Fprintf(&b, "@%s", e.VersionLabel)
		}
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *VersionError) Unwrap() error {
	return e.Err
}

// Is matches any VersionError of the same kind, so the Err* sentinels below
// work with errors.Is.
func (e *VersionError) Is(target error) bool {
	var ve *VersionError
	if errors.As(target, &ve) {
		return e.Kind == ve.Kind
	}
	return false
}

func newVersionError(kind ErrorKind, op, documentID, versionLabel, message string, err error) *VersionError {
	return &VersionError{
		Kind:         kind,
		Op:           op,
		DocumentID:   documentID,
		VersionLabel: versionLabel,
		Message:      message,
		Err:          err,
	}
}

var (
	ErrValidation         = &VersionError{Kind: KindValidation, Message: "invalid input"}
	ErrDuplicateVersion   = &VersionError{Kind: KindDuplicateVersion, Message: "version already exists"}
	ErrVersionNotFound    = &VersionError{Kind: KindVersionNotFound, Message: "version not found"}
	ErrContentUnavailable = &VersionError{Kind: KindContentUnavailable, Message: "content unavailable"}
	ErrConflictPresent    = &VersionError{Kind: KindConflictPresent, Message: "merge produced conflicts"}

	ErrNilContent = &VersionError{Kind: KindValidation, Message: "cannot hash nil content"}
)

// KindOf reports the kind of err and whether err is a VersionError at all.
func KindOf(err error) (ErrorKind, bool) {
	var ve *VersionError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return 0, false
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateVersion)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
