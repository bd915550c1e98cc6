// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating request data.
// Bodies may be JSON or form-encoded; query strings carry the date range
// for read endpoints.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"saldo/internal/ledger"
)

// RangeParams holds the raw start/end of a request. Parsing and validation
// of the dates happens in the service.
type RangeParams struct {
	Start string
	End   string
}

// ParseRangeParams extracts start and end from query parameters.
func ParseRangeParams(query url.Values) RangeParams {
	return RangeParams{
		Start: sanitizeInput(query.Get("start")),
		End:   sanitizeInput(query.Get("end")),
	}
}

// RequestBodyParser handles JSON and form-encoded bodies.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once, up to maxBodyBytes.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as a JSON object or as form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(trimmed, &p.jsonData); err != nil {
			p.err = fmt.Errorf("invalid JSON body: %w", err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	if p.err != nil {
		p.err = fmt.Errorf("invalid form body: %w", p.err)
	}
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// GetOptional returns nil when key is absent, null or blank.
func (p *RequestBodyParser) GetOptional(key string) *string {
	v := p.Get(key)
	if v == "" {
		return nil
	}
	return &v
}

// Range returns the start/end pair of the body.
func (p *RequestBodyParser) Range() RangeParams {
	return RangeParams{Start: p.Get("start"), End: p.Get("end")}
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// DecodeImportRows accepts either a bare JSON array of rows or an object
// with a "rows" array.
func DecodeImportRows(w http.ResponseWriter, r *http.Request) ([]ledger.ImportRow, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	var rows []ledger.ImportRow
	if body[0] == '[' {
		err = json.Unmarshal(body, &rows)
	} else {
		var wrapped struct {
			Rows []ledger.ImportRow `json:"rows"`
		}
		err = json.Unmarshal(body, &wrapped)
		rows = wrapped.Rows
	}
	if err != nil {
		return nil, fmt.Errorf("invalid import body: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("no rows to import")
	}
	return rows, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
