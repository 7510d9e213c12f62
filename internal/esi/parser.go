package esi

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// EventFunc receives each parsed Event in input order. Returning a
// non-nil error stops the parse immediately; the error is propagated to
// the Parse caller unchanged.
type EventFunc func(Event) error

// Recognized directive local names.
const (
	tagInclude = "include"
	tagComment = "comment"
	tagRemove  = "remove"
)

// Parse tokenizes r and calls onEvent once per event in input order.
// Tags whose name carries the namespace prefix (e.g. "esi:") are
// recognized as directives; every other token is emitted as a RawEvent
// carrying its verbatim input bytes, so concatenating raw events of a
// directive-free document reproduces the input exactly.
//
// The tokenizer is lenient about malformed markup the way browsers are;
// hard errors are reserved for directive-level violations (duplicate or
// missing attributes, unmatched or unknown directive tags) and for read
// failures on r. The first error terminates the parse.
func Parse(namespace string, r io.Reader, onEvent EventFunc) error {
	p := &parser{
		z:       html.NewTokenizer(r),
		prefix:  strings.ToLower(namespace) + ":",
		onEvent: onEvent,
	}
	return p.run()
}

type parser struct {
	z       *html.Tokenizer
	prefix  string
	onEvent EventFunc
}

func (p *parser) run() error {
	prefix := []byte(p.prefix)
	for {
		tt := p.z.Next()
		switch tt {
		case html.ErrorToken:
			if err := p.z.Err(); err != io.EOF {
				return &SyntaxError{Err: err}
			}
			return nil

		case html.StartTagToken, html.SelfClosingTagToken:
			// TagName may clobber the raw buffer, so capture first.
			raw := append([]byte(nil), p.z.Raw()...)
			name, hasAttr := p.z.TagName()
			if !bytes.HasPrefix(name, prefix) {
				if err := p.onEvent(RawEvent{Bytes: raw}); err != nil {
					return err
				}
				continue
			}
			if err := p.directive(string(name), hasAttr, tt == html.SelfClosingTagToken); err != nil {
				return err
			}

		case html.EndTagToken:
			raw := append([]byte(nil), p.z.Raw()...)
			name, _ := p.z.TagName()
			if bytes.HasPrefix(name, prefix) {
				return &UnexpectedClosingTagError{Name: string(name)}
			}
			if err := p.onEvent(RawEvent{Bytes: raw}); err != nil {
				return err
			}

		default:
			if err := p.onEvent(RawEvent{Bytes: p.z.Raw()}); err != nil {
				return err
			}
		}
	}
}

// directive handles a namespaced start tag: collect attributes
// (rejecting duplicates on the spot), consume the element body if the
// tag is not self-closing, then validate and emit the completed tag.
func (p *parser) directive(name string, hasAttr, selfClosing bool) error {
	attrs := make(map[string]string)
	if hasAttr {
		for {
			k, v, more := p.z.TagAttr()
			key := string(k)
			if _, dup := attrs[key]; dup {
				return &DuplicateAttributeError{Attribute: key}
			}
			attrs[key] = string(v)
			if !more {
				break
			}
		}
	}

	local := strings.TrimPrefix(name, p.prefix)
	switch local {
	case tagInclude, tagComment:
	case tagRemove:
		// The remove element exists only to be dropped, contents and all.
		if selfClosing {
			return nil
		}
		return p.skipContents(name)
	default:
		return &UnknownDirectiveError{Name: name}
	}

	if !selfClosing {
		// Directive elements carry no meaningful body; anything between
		// the open and close tags is consumed, not emitted.
		if err := p.skipContents(name); err != nil {
			return err
		}
	}

	tag, err := buildTag(name, local, attrs)
	if err != nil {
		return err
	}
	return p.onEvent(DirectiveEvent{Tag: tag})
}

// skipContents consumes tokens until the closing tag matching name,
// balancing nested same-name elements. A different namespaced closing
// tag inside the element is a nesting violation.
func (p *parser) skipContents(name string) error {
	prefix := []byte(p.prefix)
	depth := 1
	for {
		switch p.z.Next() {
		case html.ErrorToken:
			if err := p.z.Err(); err != io.EOF {
				return &SyntaxError{Err: err}
			}
			return &UnclosedDirectiveError{Name: name}
		case html.StartTagToken:
			n, _ := p.z.TagName()
			if string(n) == name {
				depth++
			}
		case html.EndTagToken:
			n, _ := p.z.TagName()
			if string(n) == name {
				depth--
				if depth == 0 {
					return nil
				}
			} else if bytes.HasPrefix(n, prefix) {
				return &UnexpectedClosingTagError{Name: string(n)}
			}
		}
	}
}

// buildTag validates a completed directive and constructs its Tag
// value. Required-attribute checks happen here, at completion time,
// before the engine attempts any fetch.
func buildTag(name, local string, attrs map[string]string) (Tag, error) {
	switch local {
	case tagInclude:
		src := attrs["src"]
		if src == "" {
			return nil, &MissingParameterError{Tag: name, Parameter: "src"}
		}
		return IncludeTag{
			Src:             src,
			Alt:             attrs["alt"],
			ContinueOnError: attrs["onerror"] == "continue",
		}, nil
	case tagComment:
		return CommentTag{Text: attrs["text"]}, nil
	default:
		return nil, &UnknownDirectiveError{Name: name}
	}
}
