package esi

import "fmt"

// DuplicateAttributeError reports a directive carrying the same
// attribute name twice. It is raised while the attributes are being
// collected, before any fetch is attempted.
type DuplicateAttributeError struct {
	Attribute string
}

func (e *DuplicateAttributeError) Error() string {
	return fmt.Sprintf("duplicate attribute detected: %s", e.Attribute)
}

// MissingParameterError reports a directive that completed without a
// required attribute.
type MissingParameterError struct {
	Tag       string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("tag `%s` is missing required parameter `%s`", e.Tag, e.Parameter)
}

// UnexpectedClosingTagError reports a namespaced closing tag with no
// matching open tag in the current nesting context.
type UnexpectedClosingTagError struct {
	Name string
}

func (e *UnexpectedClosingTagError) Error() string {
	return fmt.Sprintf("unexpected `%s` closing tag", e.Name)
}

// UnclosedDirectiveError reports a directive element still open when
// the input ends.
type UnclosedDirectiveError struct {
	Name string
}

func (e *UnclosedDirectiveError) Error() string {
	return fmt.Sprintf("directive `%s` not closed before end of input", e.Name)
}

// UnknownDirectiveError reports a tag in the directive namespace whose
// local name is not part of the recognized vocabulary. Namespaced tags
// are control markup; passing an unrecognized one through to the client
// would leak it, so the parse fails instead.
type UnknownDirectiveError struct {
	Name string
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("unknown directive tag `%s`", e.Name)
}

// SyntaxError wraps a failure of the underlying tokenizer, typically a
// read error on the document source.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("markup parsing error: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// FetchError wraps a transport failure while requesting a fragment.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("error requesting fragment %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UnexpectedStatusError reports a fragment response outside the 2xx
// range. It flows through the same alt/continue-on-error recovery
// policy as a transport failure.
type UnexpectedStatusError struct {
	URL        string
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("received unexpected status code %d for fragment %s", e.StatusCode, e.URL)
}

// MaxDepthError reports include recursion past the configured limit,
// which is how an include cycle surfaces. It is fatal: the alt and
// continue-on-error policies do not apply to it.
type MaxDepthError struct {
	URL   string
	Depth int
}

func (e *MaxDepthError) Error() string {
	return fmt.Sprintf("include depth limit %d exceeded at %s", e.Depth, e.URL)
}
