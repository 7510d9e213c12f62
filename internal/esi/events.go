// Package esi implements streaming edge-side-include processing: a
// namespace-aware tag parser that turns a markup document into a lazy
// event sequence, and a recursive execution engine that resolves
// include directives into fetched fragment content while streaming the
// composed document to an output sink in strict document order.
//
// The package never materializes the rendered document. Markup that is
// not directive markup is written to the sink verbatim, one token at a
// time, so memory use is bounded independent of document size.
package esi

// Event is the unit exchanged between the tag parser and the execution
// engine. An event is either a raw markup token passed through
// untouched, or a recognized directive.
type Event interface{ isEvent() }

// RawEvent carries the verbatim input bytes of one lexical markup token
// (start tag, end tag, text run, comment, doctype). The byte slice
// aliases the tokenizer's internal buffer and is only valid for the
// duration of the event callback; consumers must write or copy it
// before returning.
type RawEvent struct {
	Bytes []byte
}

func (RawEvent) isEvent() {}

// DirectiveEvent carries one completed directive tag.
type DirectiveEvent struct {
	Tag Tag
}

func (DirectiveEvent) isEvent() {}

// Tag is the directive vocabulary. It is an open union: adding a new
// directive kind means adding a variant here and a case in the engine,
// without touching the raw-markup passthrough path.
type Tag interface{ isTag() }

// IncludeTag instructs the engine to fetch the resource at Src and
// splice its rendered content in place of the directive. Alt, when
// non-empty, names a fallback resource tried after Src fails.
// ContinueOnError makes an unrecovered failure contribute zero bytes
// instead of aborting the document.
type IncludeTag struct {
	Src             string
	Alt             string
	ContinueOnError bool
}

func (IncludeTag) isTag() {}

// CommentTag is the vocabulary's no-op directive: it is recognized,
// removed from the output, and carries optional annotation text for
// diagnostics.
type CommentTag struct {
	Text string
}

func (CommentTag) isTag() {}
