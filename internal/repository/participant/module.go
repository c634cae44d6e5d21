package participant

import "go.uber.org/fx"

// Module provides the participant directory to Fx.
var Module = fx.Provide(NewRepository)
