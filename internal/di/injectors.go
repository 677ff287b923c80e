//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"referrald/internal"
	"referrald/internal/controllers"
	"referrald/internal/events"
	"referrald/internal/persistence"
	"referrald/internal/persistence/interfaces"
	"referrald/internal/providers"
	"referrald/internal/services"
	"referrald/internal/storage"
	"referrald/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewClockProvider,
		providers.NewRedisClient,

		storage.NewParticipantStore,
		storage.NewSnapshotter,
		participantCounter,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,

		persistence.NewZstdCompressor,
		persistence.NewFileManager,
		events.NewArchive,
		events.NewSinks,
		events.NewDispatcher,
		events.NewJournal,
		wire.Bind(new(events.Publisher), new(*events.Journal)),
		wire.Bind(new(controllers.EventReader), new(*events.Journal)),
		wire.Bind(new(interfaces.Flusher), new(*events.Archive)),
		persistence.NewScheduler,

		services.NewReferralLedger,
		controllers.NewApiController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil
}
