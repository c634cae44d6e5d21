package participant

import "go.uber.org/fx"

// Module provides the participant service to Fx.
var Module = fx.Provide(NewService)
