package hh

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Page is one decoded /vacancies response. Items stay raw so a single bad
// record cannot fail the whole page.
type Page struct {
	Items   []json.RawMessage `json:"items"`
	Found   int               `json:"found"`
	Pages   int               `json:"pages"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeHTTPError
	OutcomeNetworkError
	OutcomeExhausted
	OutcomeDecodeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeNetworkError:
		return "network_error"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of FetchPage. Page is set only for OutcomeSuccess and
// StatusCode only for OutcomeHTTPError.
type Outcome struct {
	Kind       OutcomeKind
	Page       *Page
	StatusCode int
	Err        error
}

func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess && o.Page != nil
}

func Success(page *Page) Outcome {
	return Outcome{Kind: OutcomeSuccess, Page: page}
}

func HTTPError(statusCode int, err error) Outcome {
	return Outcome{Kind: OutcomeHTTPError, StatusCode: statusCode, Err: err}
}

func NetworkError(err error) Outcome {
	return Outcome{Kind: OutcomeNetworkError, Err: err}
}

func Exhausted(err error) Outcome {
	return Outcome{Kind: OutcomeExhausted, Err: err}
}

func DecodeError(err error) Outcome {
	return Outcome{Kind: OutcomeDecodeError, Err: err}
}

type APIErrorResponse struct {
	Description string         `json:"description"`
	RequestID   string         `json:"request_id"`
	Errors      []APIErrorItem `json:"errors"`
}

type APIErrorItem struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type APIError struct {
	StatusCode  int
	Type        string
	Value       string
	Description string
	RequestID   string
}

func (e *APIError) Error() string {
	if e == nil {
		return "hh: api error"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "hh: http status %d", e.StatusCode)
	if e.Type != "" {
		b.WriteString(": " + e.Type)
		if e.Value != "" {
			b.WriteString(" (" + e.Value + ")")
		}
	}
	if e.Description != "" {
		b.WriteString(": " + e.Description)
	}
	return b.String()
}
