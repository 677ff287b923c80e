package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"referrald/internal/controllers"
	"referrald/internal/events"
	"referrald/internal/persistence"
	"referrald/internal/persistence/interfaces"
	"referrald/internal/providers"
	"referrald/internal/storage"
	"referrald/internal/structures"
)

type App struct {
	WebServer   *http.Server
	conf        *structures.Config
	logger      providers.Logger
	scheduler   interfaces.SchedulerInterface
	dispatcher  *events.Dispatcher
	journal     *events.Journal
	store       storage.ParticipantStore
	fileManager *persistence.FileManager
}

func NewApp(healthController *controllers.HealthController, router providers.RouterProviderInterface, scheduler interfaces.SchedulerInterface, dispatcher *events.Dispatcher, journal *events.Journal, store storage.ParticipantStore, fileManager *persistence.FileManager, conf *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface) (*App, error) {
	// Inner mux: API routes
	apiMux := http.NewServeMux()
	for _, route := range router.GetRoutes() {
		apiMux.Handle(route.Url, route.Handler)
	}

	instrumentedAPI := providers.MetricsMiddleware(metrics, apiMux)

	// Outer mux: infrastructure + instrumented API
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthController.Health)
	if conf.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.Handle("/", instrumentedAPI)

	logger.Infof(providers.TypeApp, "Starting %s", conf.AppName)
	if err := scheduler.Restore(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	return &App{
		WebServer: &http.Server{
			Addr:         conf.WebServer.Host + ":" + strconv.Itoa(conf.WebServer.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		conf:        conf,
		logger:      logger,
		scheduler:   scheduler,
		dispatcher:  dispatcher,
		journal:     journal,
		store:       store,
		fileManager: fileManager,
	}, nil
}

// Run serves until SIGINT/SIGTERM or a listener failure, then shuts down.
func (a *App) Run() error {
	a.dispatcher.Start()
	a.scheduler.Init()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Infof(providers.TypeApp, "Listening HTTP clients on %s", a.WebServer.Addr)
		if err := a.WebServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case <-stop:
		a.logger.Infof(providers.TypeApp, "Shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := errors.Join(runErr, a.Shutdown(ctx))
	if err != nil {
		a.logger.Errorf(providers.TypeApp, "Shutdown: %s", err)
	}
	a.logger.Close()
	return err
}

// Shutdown stops intake first, then drains the sinks, spills the journal to
// the archive and writes the final snapshot before closing the store.
func (a *App) Shutdown(ctx context.Context) error {
	a.scheduler.Stop()

	var errs []error
	if err := a.WebServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	a.dispatcher.Stop()
	if err := a.journal.Close(); err != nil {
		a.logger.Errorf(providers.TypeEvents, "Journal close: %s", err)
		errs = append(errs, err)
	}
	if err := a.scheduler.Persist(); err != nil {
		errs = append(errs, err)
	}
	a.fileManager.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Errorf(providers.TypeStorage, "Store close: %s", err)
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		a.logger.Infof(providers.TypeApp, "%s gracefully stopped", a.conf.AppName)
	}
	return errors.Join(errs...)
}
