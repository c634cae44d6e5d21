package bid

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/internal/presentation/http/response"
	service "github.com/Additional-Code/auctionroom/internal/service/bid"
	"github.com/Additional-Code/auctionroom/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/auctionroom/transport/http/bid")

// Handler exposes bid submission and ranking reads over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a bid Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/bids")
	g.POST("", h.submit)
	g.GET("", h.supplierBid)
	e.GET("/auctions/:id/ranking", h.ranking)
}

func (h *Handler) submit(c echo.Context) error {
	b := response.New(c)

	var payload dto.SubmitBidRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "bids.submit", trace.WithAttributes(
		attribute.String("auction.id", payload.AuctionID),
		attribute.String("supplier.id", payload.SupplierID),
	))
	defer span.End()

	result, err := h.svc.Submit(ctx, service.SubmitInput{
		AuctionID:     payload.AuctionID,
		SupplierID:    payload.SupplierID,
		SupplierEmail: payload.SupplierEmail,
		Amount:        *payload.Amount,
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.Created(dto.SubmitBidResponse{
		Bid:            dto.FromBid(result.Bid),
		CurrentRanking: dto.FromBids(result.Ranking),
	}).Build()
}

func (h *Handler) supplierBid(c echo.Context) error {
	b := response.New(c)

	var query dto.SupplierBidRequest
	if err := c.Bind(&query); err != nil {
		return b.WithError(errorbank.BadRequest("invalid query", errorbank.WithCause(err))).Build()
	}
	if err := c.Validate(&query); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "bids.supplierBid", trace.WithAttributes(
		attribute.String("auction.id", query.AuctionID),
		attribute.String("supplier.id", query.SupplierID),
	))
	defer span.End()

	standing, err := h.svc.SupplierBid(ctx, query.AuctionID, query.SupplierID)
	if err != nil {
		return b.WithError(err).Build()
	}

	out := dto.SupplierBidResponse{TotalBidders: standing.TotalBidders}
	if standing.Bid != nil {
		bid := dto.FromBid(standing.Bid)
		out.Bid = &bid
		out.Rank = bid.Rank
	}
	return b.WithData(out).Build()
}

func (h *Handler) ranking(c echo.Context) error {
	b := response.New(c)

	id := c.Param("id")
	ctx, span := httpTracer.Start(c.Request().Context(), "bids.ranking", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	ranking, err := h.svc.Ranking(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromBids(ranking)).WithMeta("totalBidders", len(ranking)).Build()
}
