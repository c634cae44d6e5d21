package http

import (
	"go.uber.org/fx"

	auctiontransport "github.com/Additional-Code/auctionroom/internal/transport/http/auction"
	bidtransport "github.com/Additional-Code/auctionroom/internal/transport/http/bid"
	participanttransport "github.com/Additional-Code/auctionroom/internal/transport/http/participant"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	auctiontransport.Module,
	bidtransport.Module,
	participanttransport.Module,
)
