// Error kinds raised while converting a bundle.
// Only ENEXError is fatal; everything else is scoped to one note.
package main

import "fmt"

// MalformedContentError reports a note whose HTML fragment is not well-formed.
type MalformedContentError struct {
	Note  string
	Cause error
}

func (e *MalformedContentError) Error() string {
	return fmt.Sprintf("malformed content in note %q: %v", e.Note, e.Cause)
}

func (e *MalformedContentError) Unwrap() error { return e.Cause }

// AttachmentDecodeError reports a resource whose base64 payload is invalid.
type AttachmentDecodeError struct {
	Note     string
	FileName string
	Cause    error
}

func (e *AttachmentDecodeError) Error() string {
	name := e.FileName
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("attachment %s in note %q: %v", name, e.Note, e.Cause)
}

func (e *AttachmentDecodeError) Unwrap() error { return e.Cause }

// MissingFieldWarning is non-fatal: the field is simply omitted.
type MissingFieldWarning struct {
	Note  string
	Field string
}

func (e *MissingFieldWarning) Error() string {
	return fmt.Sprintf("note %q: missing %s", e.Note, e.Field)
}

// ENEXError means the export itself could not be read.
type ENEXError struct {
	Offset int64
	Cause  error
}

func (e *ENEXError) Error() string {
	return fmt.Sprintf("invalid ENEX document at byte %d: %v", e.Offset, e.Cause)
}

func (e *ENEXError) Unwrap() error { return e.Cause }

// WarningKind classifies non-fatal conversion issues.
type WarningKind string

const (
	WarnMissingField       WarningKind = "missing_field"
	WarnAttachmentDecode   WarningKind = "attachment_decode"
	WarnUnsupportedContent WarningKind = "unsupported_content"
	WarnLenientFallback    WarningKind = "lenient_fallback"
)

// Warning is a non-fatal issue recorded against a note.
type Warning struct {
	Kind    WarningKind
	Note    string
	Message string
}

func (w Warning) String() string {
	if w.Note == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %q: %s", w.Kind, w.Note, w.Message)
}

// warningFromError maps a typed error onto a Warning.
func warningFromError(err error) Warning {
	switch e := err.(type) {
	case *MissingFieldWarning:
		return Warning{Kind: WarnMissingField, Note: e.Note, Message: "missing " + e.Field}
	case *AttachmentDecodeError:
		return Warning{Kind: WarnAttachmentDecode, Note: e.Note, Message: e.Error()}
	case *MalformedContentError:
		return Warning{Kind: WarnLenientFallback, Note: e.Note, Message: e.Cause.Error()}
	}
	return Warning{Kind: WarnUnsupportedContent, Message: err.Error()}
}
