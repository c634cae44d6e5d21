package participant

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/internal/presentation/http/response"
	service "github.com/Additional-Code/auctionroom/internal/service/participant"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/auctionroom/transport/http/participant")

// Handler exposes the participant directory over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a participant Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/participants")
	g.POST("", h.register)
	g.GET("/:id", h.get)
}

func (h *Handler) register(c echo.Context) error {
	b := response.New(c)

	var payload dto.RegisterParticipantRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "participants.register", trace.WithAttributes(
		attribute.String("participant.role", payload.Role),
	))
	defer span.End()

	p, resolved, err := h.svc.Register(ctx, service.RegisterInput{
		Name:  payload.Name,
		Email: payload.Email,
		Role:  payload.Role,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	out := dto.FromParticipant(p)
	out.ResolvedInvites = resolved
	return b.Created(out).Build()
}

func (h *Handler) get(c echo.Context) error {
	b := response.New(c)

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "participants.get", trace.WithAttributes(attribute.String("participant.id", id)))
	defer span.End()

	p, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromParticipant(p)).Build()
}
