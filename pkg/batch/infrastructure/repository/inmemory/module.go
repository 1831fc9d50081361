package inmemory

import (
	"go.uber.org/fx"
)

// Module provides the in-memory DAOs as repository.Daos named "inmemory".
// The backend actually used is selected by the parent repository module.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewDaos,
			fx.ResultTags(`name:"inmemory"`),
		),
	),
)
