package bid

import "go.uber.org/fx"

// Module provides the bid service to Fx.
var Module = fx.Provide(NewService)
