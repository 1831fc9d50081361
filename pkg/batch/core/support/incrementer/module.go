package incrementer

import (
	"go.uber.org/fx"
)

// Module provides the incrementers under the names operators refer to them by.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func() JobParametersIncrementer { return NewRunIDIncrementer(DefaultRunIDKey) },
			fx.ResultTags(`name:"runIdIncrementer"`),
		),
		fx.Annotate(
			func() JobParametersIncrementer { return NewUUIDIncrementer(DefaultRunTokenKey) },
			fx.ResultTags(`name:"uuidIncrementer"`),
		),
	),
)
