package ir

import (
	"fmt"
	"strings"
)

// MalformedFieldError reports a field declaration whose width or storage
// marker does not parse. The owning channel is invalid.
type MalformedFieldError struct {
	Channel string
	Field   string
	Token   string
}

func (e *MalformedFieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("channel %s: malformed field declaration %q", e.Channel, e.Token)
	}
	return fmt.Sprintf("channel %s: malformed width %q for field %s", e.Channel, e.Token, e.Field)
}

// MalformedDirectiveError reports a directive line whose arguments do not
// parse.
type MalformedDirectiveError struct {
	Directive string
	Reason    string
}

func (e *MalformedDirectiveError) Error() string {
	if e.Directive == "" {
		return "malformed directive: " + e.Reason
	}
	return fmt.Sprintf("malformed %s directive: %s", e.Directive, e.Reason)
}

// DuplicateStorageFieldError describes a channel with more than one storage
// field. Only the last one is used by the generators.
type DuplicateStorageFieldError struct {
	Channel string
	Fields  []string
}

func (e *DuplicateStorageFieldError) Error() string {
	return fmt.Sprintf("channel %s declares %d storage fields (%s); only %s is used",
		e.Channel, len(e.Fields), strings.Join(e.Fields, ", "), e.Fields[len(e.Fields)-1])
}

// UndefinedEntityError means no @ENTITY was declared before it was needed.
type UndefinedEntityError struct {
	Directive string
}

func (e *UndefinedEntityError) Error() string {
	if e.Directive == "" {
		return "entity is undefined"
	}
	return fmt.Sprintf("entity is undefined before %s", e.Directive)
}

// UndefinedVersionError means the input never declared @GUPL_VERSION.
type UndefinedVersionError struct{}

func (e *UndefinedVersionError) Error() string {
	return "version is undefined"
}

// UnknownDirectiveReferenceError reports a stage directive naming a channel
// or state that was never declared.
type UnknownDirectiveReferenceError struct {
	Stage string
	Kind  string
	Name  string
}

func (e *UnknownDirectiveReferenceError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("unknown %s %s", e.Kind, e.Name)
	}
	return fmt.Sprintf("stage %s: unknown %s %s", e.Stage, e.Kind, e.Name)
}
