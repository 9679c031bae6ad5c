// Package errors provides the structured errors reported by resource resolution.
package errors

import (
	"fmt"
	"strings"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind identifies the resolution stage that failed.
type Kind int

const (
	KindConstructNotFound Kind = iota + 1
	KindTemplateEntryNotFound
	KindDeploymentRecordNotFound
	KindAmbiguousMatch
	KindProviderUnavailable
)

// Error codes
const (
	ErrCodeConstructNotFound        = "CONSTRUCT_NOT_FOUND"
	ErrCodeTemplateEntryNotFound    = "TEMPLATE_ENTRY_NOT_FOUND"
	ErrCodeDeploymentRecordNotFound = "DEPLOYMENT_RECORD_NOT_FOUND"
	ErrCodeAmbiguousMatch           = "AMBIGUOUS_MATCH"
	ErrCodeProviderUnavailable      = "PROVIDER_UNAVAILABLE"
)

// Code returns the error code string for k.
func (k Kind) Code() string {
	switch k {
	case KindConstructNotFound:
		return ErrCodeConstructNotFound
	case KindTemplateEntryNotFound:
		return ErrCodeTemplateEntryNotFound
	case KindDeploymentRecordNotFound:
		return ErrCodeDeploymentRecordNotFound
	case KindAmbiguousMatch:
		return ErrCodeAmbiguousMatch
	case KindProviderUnavailable:
		return ErrCodeProviderUnavailable
	default:
		return "UNKNOWN"
	}
}

func (k Kind) String() string {
	return strings.ToLower(strings.ReplaceAll(k.Code(), "_", " "))
}

// Sentinels for errors.Is. Any ResolveError of the same Kind matches.
var (
	ErrConstructNotFound        = &ResolveError{Kind: KindConstructNotFound}
	ErrTemplateEntryNotFound    = &ResolveError{Kind: KindTemplateEntryNotFound}
	ErrDeploymentRecordNotFound = &ResolveError{Kind: KindDeploymentRecordNotFound}
	ErrAmbiguousMatch           = &ResolveError{Kind: KindAmbiguousMatch}
	ErrProviderUnavailable      = &ResolveError{Kind: KindProviderUnavailable}
)

// ResolveError is a structured resolution failure. Query holds the value that could not be
// located: the construct path fragment, the computed template path or the logical id.
type ResolveError struct {
	Kind        Kind     `json:"-"`
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Query       string   `json:"query"`
	Candidates  []string `json:"candidates,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ResolveError of the same Kind.
func (e *ResolveError) Is(target error) bool {
	t, ok := target.(*ResolveError)
	return ok && t.Kind == e.Kind
}

// NewConstructNotFoundError reports that no construct path ends with query.
func NewConstructNotFoundError(query string) *ResolveError {
	return &ResolveError{
		Kind:     KindConstructNotFound,
		Code:     ErrCodeConstructNotFound,
		Message:  fmt.Sprintf("could not find a construct matching %q in tree.json", query),
		Severity: SeverityError,
		Query:    query,
	}
}

// NewStackNotFoundError reports that the tree holds no construct of the stack type.
func NewStackNotFoundError(stackType string) *ResolveError {
	return &ResolveError{
		Kind:     KindConstructNotFound,
		Code:     ErrCodeConstructNotFound,
		Message:  fmt.Sprintf("could not find a stack (%s) within the CDK app", stackType),
		Severity: SeverityError,
		Query:    stackType,
	}
}

// NewNamedStackNotFoundError reports that no stack in the tree has the given id or path.
// candidates lists the stacks that do exist.
func NewNamedStackNotFoundError(id string, candidates []string) *ResolveError {
	return &ResolveError{
		Kind:       KindConstructNotFound,
		Code:       ErrCodeConstructNotFound,
		Message:    fmt.Sprintf("could not find stack %q within the CDK app (stacks: %s)", id, strings.Join(candidates, ", ")),
		Severity:   SeverityError,
		Query:      id,
		Candidates: candidates,
	}
}

// NewTemplateEntryNotFoundError reports that no template resource carries the given cdk path.
func NewTemplateEntryNotFoundError(path string) *ResolveError {
	return &ResolveError{
		Kind:     KindTemplateEntryNotFound,
		Code:     ErrCodeTemplateEntryNotFound,
		Message:  fmt.Sprintf("could not find resource %q in the stack template", path),
		Severity: SeverityError,
		Query:    path,
	}
}

// NewDeploymentRecordNotFoundError reports that the deployed stack has no resource with logicalID.
func NewDeploymentRecordNotFoundError(logicalID string) *ResolveError {
	return &ResolveError{
		Kind:     KindDeploymentRecordNotFound,
		Code:     ErrCodeDeploymentRecordNotFound,
		Message:  fmt.Sprintf("could not find logical id %q in deployed stack resources", logicalID),
		Severity: SeverityError,
		Query:    logicalID,
	}
}

// NewAmbiguousMatchError reports that more than one construct path ends with query.
func NewAmbiguousMatchError(query string, candidates []string) *ResolveError {
	return &ResolveError{
		Kind:       KindAmbiguousMatch,
		Code:       ErrCodeAmbiguousMatch,
		Message:    fmt.Sprintf("%q matches %d constructs: %s", query, len(candidates), strings.Join(candidates, ", ")),
		Severity:   SeverityError,
		Query:      query,
		Candidates: candidates,
	}
}

// NewProviderUnavailableError reports that deployment metadata could not be fetched.
func NewProviderUnavailableError(logicalID string, err error) *ResolveError {
	return &ResolveError{
		Kind:        KindProviderUnavailable,
		Code:        ErrCodeProviderUnavailable,
		Message:     fmt.Sprintf("failed to fetch deployment metadata for %q", logicalID),
		Severity:    SeverityError,
		Query:       logicalID,
		Recoverable: true,
		Err:         err,
	}
}
