package persistence

import (
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"referrald/internal/persistence/interfaces"
	"referrald/internal/providers"
	"referrald/internal/structures"
)

type Scheduler struct {
	config      *structures.Config
	logger      providers.Logger
	fileManager *FileManager
	archive     interfaces.Flusher
	clock       clockwork.Clock
	cron        gocron.Scheduler
	opsMu       sync.Mutex
}

func (s *Scheduler) Init() {
	cron, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Scheduler init failed: %s", err)
		return
	}
	s.cron = cron

	if s.fileManager.Enabled() && s.config.Persistence.SaveInterval > 0 {
		_, err = cron.NewJob(
			gocron.DurationJob(s.config.Persistence.SaveInterval),
			gocron.NewTask(s.snapshot),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Errorf(providers.TypeApp, "Snapshot job not scheduled: %s", err)
		}
	}

	if s.archive != nil && s.config.Events.FlushEvery > 0 {
		_, err = cron.NewJob(
			gocron.DurationJob(s.config.Events.FlushEvery),
			gocron.NewTask(s.flushArchive),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Errorf(providers.TypeApp, "Archive flush job not scheduled: %s", err)
		}
	}

	cron.Start()
}

func (s *Scheduler) snapshot() {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	err := s.fileManager.SaveToFile(s.config.Persistence.FilePath)
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting data: %s", err)
		return
	}
	s.logger.Infof(providers.TypeApp, "Persisted data to file %s", s.config.Persistence.FilePath)
}

func (s *Scheduler) flushArchive() {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	if err := s.archive.Flush(); err != nil {
		s.logger.Errorf(providers.TypeEvents, "Error while flushing event archive: %s", err)
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		if err := s.cron.Shutdown(); err != nil {
			s.logger.Warnf(providers.TypeApp, "Scheduler shutdown: %s", err)
		}
	}
}

func (s *Scheduler) Restore() error {
	return s.fileManager.LoadFromFile(s.config.Persistence.FilePath)
}

func (s *Scheduler) Persist() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	if !s.fileManager.Enabled() {
		return nil
	}
	s.logger.Infof(providers.TypeApp, "Persisting participants to file...")
	err := s.fileManager.SaveToFile(s.config.Persistence.FilePath)
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting data: %s", err)
		return err
	}
	return nil
}

// NewScheduler accepts a nil archive when events are not archived.
func NewScheduler(config *structures.Config, logger providers.Logger, fileManager *FileManager, archive interfaces.Flusher, clock clockwork.Clock) interfaces.SchedulerInterface {
	return &Scheduler{
		config:      config,
		logger:      logger,
		fileManager: fileManager,
		archive:     archive,
		clock:       clock,
	}
}
