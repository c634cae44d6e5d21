package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/auctionroom/internal/broadcast"
	"github.com/Additional-Code/auctionroom/internal/cache"
	"github.com/Additional-Code/auctionroom/internal/clock"
	"github.com/Additional-Code/auctionroom/internal/config"
	"github.com/Additional-Code/auctionroom/internal/database"
	"github.com/Additional-Code/auctionroom/internal/locker"
	"github.com/Additional-Code/auctionroom/internal/logger"
	"github.com/Additional-Code/auctionroom/internal/messaging"
	"github.com/Additional-Code/auctionroom/internal/observability"
	repositoryauction "github.com/Additional-Code/auctionroom/internal/repository/auction"
	repositorybid "github.com/Additional-Code/auctionroom/internal/repository/bid"
	repositoryparticipant "github.com/Additional-Code/auctionroom/internal/repository/participant"
	grpcserver "github.com/Additional-Code/auctionroom/internal/server/grpc"
	httpserver "github.com/Additional-Code/auctionroom/internal/server/http"
	serviceauction "github.com/Additional-Code/auctionroom/internal/service/auction"
	servicebid "github.com/Additional-Code/auctionroom/internal/service/bid"
	serviceparticipant "github.com/Additional-Code/auctionroom/internal/service/participant"
	transporthttp "github.com/Additional-Code/auctionroom/internal/transport/http"
	transportws "github.com/Additional-Code/auctionroom/internal/transport/ws"
	"github.com/Additional-Code/auctionroom/internal/worker"
	workeraudit "github.com/Additional-Code/auctionroom/internal/worker/audit"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	clock.Module,
	locker.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	broadcast.Module,
	repositoryauction.Module,
	repositorybid.Module,
	repositoryparticipant.Module,
	serviceauction.Module,
	servicebid.Module,
	serviceparticipant.Module,
)

// HTTP wires the HTTP, WebSocket and gRPC boundaries on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
	transportws.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workeraudit.Module,
)

// Module is the default application wiring (API only).
var Module = HTTP
