package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

// Envelope is the JSON shape of every HTTP response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorBody describes a failed request. Code is the machine readable reason
// clients branch on; Kind mirrors the HTTP status family.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Builder accumulates a response and writes it once through Build.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

// New starts a 200 OK response for ctx.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// WithStatus overrides the status code. Error responses keep the status of
// the error unless a 4xx/5xx code is given.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData sets the success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// Created is WithStatus(201) plus WithData.
func (b *Builder) Created(data any) *Builder {
	return b.WithStatus(http.StatusCreated).WithData(data)
}

// WithError switches the response to the error envelope.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta adds a meta entry; empty keys are ignored.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any, 1)
	}
	b.meta[key] = value
	return b
}

// Build writes the response.
func (b *Builder) Build() error {
	if b.err == nil {
		return b.ctx.JSON(b.status, Envelope{Success: true, Data: b.data, Meta: b.meta})
	}

	appErr := errorbank.From(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}
	return b.ctx.JSON(status, Envelope{
		Error: &ErrorBody{
			Kind:    string(appErr.Kind()),
			Code:    appErr.Code(),
			Message: appErr.Message(),
			Details: appErr.Details(),
		},
		Meta: b.meta,
	})
}
