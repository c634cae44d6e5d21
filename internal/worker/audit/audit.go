package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/config"
	"github.com/Additional-Code/auctionroom/internal/dto"
	"github.com/Additional-Code/auctionroom/internal/messaging"
	"github.com/Additional-Code/auctionroom/internal/worker"
)

var (
	workerTracer = otel.Tracer("github.com/Additional-Code/auctionroom/worker/audit")
	workerMeter  = otel.Meter("github.com/Additional-Code/auctionroom/worker/audit")
)

// Module registers the auction audit consumer.
var Module = fx.Module("worker_audit",
	fx.Provide(
		fx.Annotate(
			NewAuditHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewAuditHandler consumes auction domain events and writes one structured
// audit log line per event for downstream export.
func NewAuditHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: Handle(logger.Named("audit")),
	}
}

// Handle decodes an event envelope and records it.
func Handle(logger *zap.Logger) messaging.Handler {
	processed, _ := workerMeter.Int64Counter("audit.events.processed", metric.WithDescription("Audited auction events"))

	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.audit.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		env, err := messaging.DecodeEnvelope(msg)
		if err != nil {
			logger.Error("failed to decode auction event", zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.String("event.type", env.Type), attribute.String("auction.id", env.AuctionID))

		fields := []zap.Field{
			zap.String("event", env.Type),
			zap.String("auction_id", env.AuctionID),
			zap.Time("occurred_at", env.OccurredAt),
		}
		extra, err := payloadFields(env)
		if err != nil {
			logger.Error("failed to decode event payload", zap.String("event", env.Type), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "payload error")
			return err
		}
		logger.Info("auction event", append(fields, extra...)...)

		if processed != nil {
			processed.Add(ctx, 1, metric.WithAttributes(attribute.String("event", env.Type)))
		}
		return nil
	}
}

func payloadFields(env messaging.Envelope) ([]zap.Field, error) {
	switch env.Type {
	case messaging.EventBidAccepted:
		var bid dto.BidResponse
		if err := json.Unmarshal(env.Payload, &bid); err != nil {
			return nil, err
		}
		fields := []zap.Field{
			zap.String("bid_id", bid.ID),
			zap.String("supplier_id", bid.SupplierID),
			zap.Float64("amount", bid.Amount),
		}
		if bid.Rank != nil {
			fields = append(fields, zap.Int("rank", *bid.Rank))
		}
		return fields, nil
	case messaging.EventAuctionCreated, messaging.EventAuctionExtended, messaging.EventAuctionClosed:
		var auction dto.AuctionResponse
		if err := json.Unmarshal(env.Payload, &auction); err != nil {
			return nil, err
		}
		return []zap.Field{
			zap.String("buyer_id", auction.BuyerID),
			zap.String("status", auction.Status),
			zap.Time("end_time", auction.EndTime),
			zap.Int("invites", len(auction.InvitedSuppliers)),
		}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
