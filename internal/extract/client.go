// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pdiddy/pubmed-extract/internal/llm"
	"github.com/pdiddy/pubmed-extract/internal/prompt"
)

// DefaultTimeout bounds one completion request when none is configured.
const DefaultTimeout = 60 * time.Second

const maxResponseExcerpt = 500

// Client performs one request/response exchange per call. It never
// retries; the Runner decides whether a failed record is attempted again.
type Client struct {
	completer llm.Completer
	timeout   time.Duration
	schema    *gojsonschema.Schema
}

// NewClient wraps completer. The template's schema, when present, is
// compiled once and applied to every response.
func NewClient(completer llm.Completer, tmpl *prompt.Template, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{completer: completer, timeout: timeout}
	if tmpl != nil && tmpl.Schema != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(tmpl.Schema))
		if err != nil {
			return nil, fmt.Errorf("compiling schema of template %s: %w", tmpl.Name, err)
		}
		c.schema = schema
	}
	return c, nil
}

// Extract sends messages and parses the top candidate as a JSON object.
// Failures are *APIError or *ParseError.
func (c *Client) Extract(ctx context.Context, messages []prompt.Message) (map[string]json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.completer.Complete(callCtx, messages)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &APIError{Message: fmt.Sprintf("timed out after %s", c.timeout), Cause: err}
		}
		return nil, &APIError{Message: "completion request", Cause: err}
	}
	return c.parse(text)
}

// parse decodes text strictly: surrounding whitespace is allowed, code
// fences and prose are not.
func (c *Client) parse(text string) (map[string]json.RawMessage, error) {
	data := bytes.TrimSpace([]byte(text))
	if len(data) == 0 || data[0] != '{' {
		return nil, &ParseError{Message: "response is not a JSON object", Response: excerpt(text)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &ParseError{Message: "decoding response", Cause: err, Response: excerpt(text)}
	}

	if c.schema != nil {
		result, err := c.schema.Validate(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, &ParseError{Message: "validating response", Cause: err, Response: excerpt(text)}
		}
		if !result.Valid() {
			pe := &ParseError{Message: "response does not match schema", Response: excerpt(text)}
			for _, desc := range result.Errors() {
				field := desc.Field()
				if field == "" {
					field = "(root)"
				}
				pe.Violations = append(pe.Violations, field+": "+desc.Description())
			}
			return nil, pe
		}
	}
	return fields, nil
}

func excerpt(s string) string {
	if len(s) <= maxResponseExcerpt {
		return s
	}
	n := maxResponseExcerpt
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
