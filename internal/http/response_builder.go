// This file implements the Builder Pattern for JSON responses and the wire
// shapes of the stock API.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"stockhistory/internal/core"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates an error response with a JSON {"error": message} body.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Data(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ServiceUnavailableError creates a 503 Service Unavailable error response.
func ServiceUnavailableError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusServiceUnavailable, message)
}

// TooManyRequestsError creates a 429 response asking the client to retry later.
func TooManyRequestsError(retryAfter string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
		Header("Retry-After", retryAfter)
}

// tableBody is the wire shape of one table. Values are aligned with Columns.
type tableBody struct {
	Kind    TableKind    `json:"kind"`
	Columns []string     `json:"columns"`
	Rows    []rowBody    `json:"rows"`
	Horizon core.Horizon `json:"horizon"`
}

type rowBody struct {
	Date   string        `json:"date"`
	Values []json.Number `json:"values"`
}

func newTableBody(kind TableKind, t core.Table, h core.Horizon) tableBody {
	body := tableBody{
		Kind:    kind,
		Columns: make([]string, len(t.Columns)),
		Rows:    make([]rowBody, len(t.Rows)),
		Horizon: h,
	}
	for i, c := range t.Columns {
		body.Columns[i] = string(c)
	}
	for i, r := range t.Rows {
		values := make([]json.Number, len(t.Columns))
		for j, c := range t.Columns {
			values[j] = json.Number(r.Cell(c).StringFixed(2))
		}
		body.Rows[i] = rowBody{Date: r.Date.String(), Values: values}
	}
	return body
}

type stockBody struct {
	Value    tableBody `json:"value"`
	Quantity tableBody `json:"quantity"`
}

type assortmentsBody struct {
	Catalogue        []core.AssortmentInfo `json:"catalogue"`
	DefaultSelection []string              `json:"default_selection"`
	Present          []string              `json:"present"`
	LastDate         string                `json:"last_date,omitempty"`
}

type horizonsBody struct {
	Horizons []core.Horizon `json:"horizons"`
	Default  core.Horizon   `json:"default"`
}

func codeStrings(codes []core.Assortment) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
