package esi

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect parses input and returns the events with raw bytes copied out
// of the tokenizer buffer.
func collect(t *testing.T, namespace, input string) ([]Event, error) {
	t.Helper()
	var events []Event
	err := Parse(namespace, strings.NewReader(input), func(ev Event) error {
		if raw, ok := ev.(RawEvent); ok {
			ev = RawEvent{Bytes: append([]byte(nil), raw.Bytes...)}
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

func rawConcat(events []Event) string {
	var sb strings.Builder
	for _, ev := range events {
		if raw, ok := ev.(RawEvent); ok {
			sb.Write(raw.Bytes)
		}
	}
	return sb.String()
}

func directives(events []Event) []Tag {
	var tags []Tag
	for _, ev := range events {
		if d, ok := ev.(DirectiveEvent); ok {
			tags = append(tags, d.Tag)
		}
	}
	return tags
}

func TestParseIdentity(t *testing.T) {
	inputs := map[string]string{
		"empty":    "",
		"text":     "plain text, no markup at all",
		"document": `<!DOCTYPE html><html><head><title>t</title></head><body><p class="x">Hello &amp; welcome</p><!-- a comment --><br><img src="/a.png"></body></html>`,
		"nested":   `<div><div><span>deep</span></div></div>`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			events, err := collect(t, "esi", input)
			require.NoError(t, err)
			assert.Equal(t, input, rawConcat(events))
			assert.Empty(t, directives(events))
		})
	}
}

func TestParseInclude(t *testing.T) {
	t.Run("self-closing", func(t *testing.T) {
		events, err := collect(t, "esi", `<p>A</p><esi:include src="/f" alt="/g" onerror="continue"/><p>B</p>`)
		require.NoError(t, err)

		tags := directives(events)
		require.Len(t, tags, 1)
		assert.Equal(t, IncludeTag{Src: "/f", Alt: "/g", ContinueOnError: true}, tags[0])
		assert.Equal(t, "<p>A</p><p>B</p>", rawConcat(events))
	})

	t.Run("element form", func(t *testing.T) {
		events, err := collect(t, "esi", `<esi:include src="/f"></esi:include>`)
		require.NoError(t, err)

		tags := directives(events)
		require.Len(t, tags, 1)
		assert.Equal(t, IncludeTag{Src: "/f"}, tags[0])
	})

	t.Run("element body is dropped", func(t *testing.T) {
		events, err := collect(t, "esi", `<esi:include src="/f"><p>ignored</p></esi:include><p>kept</p>`)
		require.NoError(t, err)
		assert.Equal(t, "<p>kept</p>", rawConcat(events))
		assert.Len(t, directives(events), 1)
	})

	t.Run("case insensitive tag and attributes", func(t *testing.T) {
		events, err := collect(t, "esi", `<ESI:INCLUDE SRC="/f"/>`)
		require.NoError(t, err)

		tags := directives(events)
		require.Len(t, tags, 1)
		assert.Equal(t, IncludeTag{Src: "/f"}, tags[0])
	})

	t.Run("onerror values other than continue are ignored", func(t *testing.T) {
		events, err := collect(t, "esi", `<esi:include src="/f" onerror="abort"/>`)
		require.NoError(t, err)
		require.Len(t, directives(events), 1)
		assert.False(t, directives(events)[0].(IncludeTag).ContinueOnError)
	})
}

func TestParseNamespace(t *testing.T) {
	t.Run("other namespaces pass through", func(t *testing.T) {
		input := `<esi:include src="/f"/>`
		events, err := collect(t, "app", input)
		require.NoError(t, err)
		assert.Empty(t, directives(events))
		assert.Equal(t, input, rawConcat(events))
	})

	t.Run("configured namespace is recognized", func(t *testing.T) {
		events, err := collect(t, "app", `<app:include src="/f"/>`)
		require.NoError(t, err)
		require.Len(t, directives(events), 1)
	})
}

func TestParseComment(t *testing.T) {
	events, err := collect(t, "esi", `<p>A</p><esi:comment text="debug note"/><p>B</p>`)
	require.NoError(t, err)

	tags := directives(events)
	require.Len(t, tags, 1)
	assert.Equal(t, CommentTag{Text: "debug note"}, tags[0])
	assert.Equal(t, "<p>A</p><p>B</p>", rawConcat(events))
}

func TestParseRemove(t *testing.T) {
	events, err := collect(t, "esi", `<p>A</p><esi:remove><p>hidden</p><span>also hidden</span></esi:remove><p>B</p>`)
	require.NoError(t, err)
	assert.Equal(t, "<p>A</p><p>B</p>", rawConcat(events))
	assert.Empty(t, directives(events))
}

func TestParseErrors(t *testing.T) {
	t.Run("duplicate attribute", func(t *testing.T) {
		_, err := collect(t, "esi", `<esi:include src="/a" src="/b"/>`)
		var dupErr *DuplicateAttributeError
		require.ErrorAs(t, err, &dupErr)
		assert.Equal(t, "src", dupErr.Attribute)
	})

	t.Run("missing src", func(t *testing.T) {
		_, err := collect(t, "esi", `<esi:include alt="/b"/>`)
		var missErr *MissingParameterError
		require.ErrorAs(t, err, &missErr)
		assert.Equal(t, "esi:include", missErr.Tag)
		assert.Equal(t, "src", missErr.Parameter)
	})

	t.Run("empty src", func(t *testing.T) {
		_, err := collect(t, "esi", `<esi:include src=""/>`)
		var missErr *MissingParameterError
		require.ErrorAs(t, err, &missErr)
	})

	t.Run("unexpected closing tag", func(t *testing.T) {
		_, err := collect(t, "esi", `<p>ok</p></esi:include>`)
		var closeErr *UnexpectedClosingTagError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, "esi:include", closeErr.Name)
	})

	t.Run("mismatched closing tag inside directive", func(t *testing.T) {
		_, err := collect(t, "esi", `<esi:include src="/f"></esi:remove>`)
		var closeErr *UnexpectedClosingTagError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, "esi:remove", closeErr.Name)
	})

	t.Run("unknown directive", func(t *testing.T) {
		_, err := collect(t, "esi", `<esi:frobnicate a="b"/>`)
		var unknownErr *UnknownDirectiveError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "esi:frobnicate", unknownErr.Name)
	})

	t.Run("unclosed directive at end of input", func(t *testing.T) {
		_, err := collect(t, "esi", `<esi:include src="/f">`)
		var unclosedErr *UnclosedDirectiveError
		require.ErrorAs(t, err, &unclosedErr)
		assert.Equal(t, "esi:include", unclosedErr.Name)
	})

	t.Run("events before the error are still delivered", func(t *testing.T) {
		events, err := collect(t, "esi", `<p>A</p></esi:include>`)
		require.Error(t, err)
		assert.Equal(t, "<p>A</p>", rawConcat(events))
	})
}

func TestParseCallbackErrorPropagates(t *testing.T) {
	sentinel := errors.New("sink rejected write")
	calls := 0
	err := Parse("esi", strings.NewReader("<p>A</p><p>B</p>"), func(Event) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls, "parse must stop at the first callback failure")
}

func TestParseValidationHappensAtCompletion(t *testing.T) {
	// The missing-src check fires when the element completes, so events
	// preceding the directive still arrive first and in order.
	var seen []string
	err := Parse("esi", strings.NewReader(`<p>A</p><esi:include alt="/b"/>`), func(ev Event) error {
		if raw, ok := ev.(RawEvent); ok {
			seen = append(seen, string(raw.Bytes))
		}
		return nil
	})
	var missErr *MissingParameterError
	require.ErrorAs(t, err, &missErr)
	assert.Equal(t, []string{"<p>", "A", "</p>"}, seen)
}
