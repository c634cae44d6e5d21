package bid

import "go.uber.org/fx"

// Module provides the bid ledger to Fx.
var Module = fx.Provide(NewRepository)
