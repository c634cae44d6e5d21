package auction

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/internal/entity"
	"github.com/Additional-Code/auctionroom/internal/presentation/http/response"
	service "github.com/Additional-Code/auctionroom/internal/service/auction"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/auctionroom/transport/http/auction")

// Handler exposes auction endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an auction Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/auctions")
	g.POST("", h.create)
	g.GET("", h.listByBuyer)
	g.GET("/invited", h.listInvited)
	g.POST("/invited", h.listInvited)
	g.GET("/:id", h.get)
	g.POST("/:id/extend", h.extend)
	g.POST("/:id/close", h.close)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateAuctionRequest
	if err := bindAndValidate(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.create", trace.WithAttributes(
		attribute.String("auction.buyer_id", payload.BuyerID),
	))
	defer span.End()

	auction, err := h.svc.Create(ctx, service.CreateInput{
		Title:             payload.Title,
		Description:       payload.Description,
		BuyerID:           payload.BuyerID,
		DurationMinutes:   payload.DurationMinutes,
		MinDecrementValue: payload.MinDecrementValue,
		InvitedSuppliers:  payload.InvitedSuppliers,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Created(dto.FromAuction(auction, auction.Status)).Build()
}

func (h *Handler) listByBuyer(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.listByBuyer")
	defer span.End()

	auctions, err := h.svc.ListByBuyer(ctx, c.QueryParam("buyerId"))
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toList(auctions)).WithMeta("total", len(auctions)).Build()
}

func (h *Handler) listInvited(c echo.Context) error {
	b := response.New(c)

	var payload dto.InvitedAuctionsRequest
	if err := bindAndValidate(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.listInvited")
	defer span.End()

	auctions, err := h.svc.ListInvited(ctx, payload.SupplierEmail)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toList(auctions)).WithMeta("total", len(auctions)).Build()
}

func (h *Handler) get(c echo.Context) error {
	b := response.New(c)

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.get", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	auction, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromAuction(auction, auction.Status)).Build()
}

func (h *Handler) extend(c echo.Context) error {
	b := response.New(c)

	var payload dto.ExtendAuctionRequest
	if err := bindAndValidate(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.extend", trace.WithAttributes(
		attribute.String("auction.id", id),
		attribute.Int("auction.extra_minutes", payload.ExtraMinutes),
	))
	defer span.End()

	auction, err := h.svc.Extend(ctx, id, payload.ExtraMinutes)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromAuction(auction, auction.Status)).Build()
}

func (h *Handler) close(c echo.Context) error {
	b := response.New(c)

	var payload dto.CloseAuctionRequest
	if err := bindAndValidate(c, &payload); err != nil {
		return b.WithError(err).Build()
	}

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.close", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	auction, err := h.svc.Close(ctx, id, payload.BuyerID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromAuction(auction, auction.Status)).Build()
}

func bindAndValidate(c echo.Context, payload any) error {
	if err := c.Bind(payload); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	return c.Validate(payload)
}

func toList(auctions []*entity.Auction) []dto.AuctionResponse {
	out := make([]dto.AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, dto.FromAuction(a, a.Status))
	}
	return out
}
