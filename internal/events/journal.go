package events

import (
	"sync"

	"github.com/google/uuid"

	"referrald/internal/models"
	"referrald/internal/providers"
	"referrald/internal/structures"
)

const (
	DefaultJournalSize = 4096
	MaxReadLimit       = 1000
)

// Journal is the sequenced record of every event the ledger emitted. Recent
// events live in a fixed ring; older ones are handed to the archive.
type Journal struct {
	mu         sync.RWMutex
	ring       []*models.Event
	head       int
	count      int
	nextSeq    uint64
	archive    *Archive
	dispatcher *Dispatcher
	logger     providers.Logger
}

func NewJournal(conf *structures.Config, archive *Archive, dispatcher *Dispatcher, logger providers.Logger) *Journal {
	size := conf.Events.JournalSize
	if size <= 0 {
		size = DefaultJournalSize
	}
	j := &Journal{
		ring:       make([]*models.Event, size),
		nextSeq:    1,
		archive:    archive,
		dispatcher: dispatcher,
		logger:     logger,
	}
	if archive != nil {
		j.nextSeq = archive.LastSeq() + 1
	}
	return j
}

// Publish stamps each event with the next sequence number and an id, records
// it and queues it for the sinks.
func (j *Journal) Publish(evts ...*models.Event) {
	if len(evts) == 0 {
		return
	}
	j.mu.Lock()
	for _, e := range evts {
		e.Seq = j.nextSeq
		j.nextSeq++
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		j.push(e)
	}
	j.mu.Unlock()

	if j.dispatcher != nil {
		for _, e := range evts {
			j.dispatcher.Enqueue(e)
		}
	}
}

// push must be called under j.mu.
func (j *Journal) push(e *models.Event) {
	size := len(j.ring)
	if j.count < size {
		j.ring[(j.head+j.count)%size] = e
		j.count++
		return
	}
	evicted := j.ring[j.head]
	j.ring[j.head] = e
	j.head = (j.head + 1) % size
	if j.archive != nil {
		if err := j.archive.Append(evicted); err != nil {
			j.logger.Warnf(providers.TypeEvents, "Event %d lost on eviction: %s", evicted.Seq, err)
		}
	}
}

// Read returns up to limit events with seq >= from, oldest first. Events
// that left the ring are served from the archive.
func (j *Journal) Read(from uint64, limit int) ([]*models.Event, error) {
	if limit <= 0 || limit > MaxReadLimit {
		limit = MaxReadLimit
	}
	if from == 0 {
		from = 1
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	oldest := j.nextSeq
	if j.count > 0 {
		oldest = j.ring[j.head].Seq
	}

	out := make([]*models.Event, 0, min(limit, 64))
	if from < oldest && j.archive != nil {
		archived, err := j.archive.Read(from, limit)
		if err != nil {
			return nil, err
		}
		for _, e := range archived {
			if e.Seq >= oldest {
				break
			}
			out = append(out, e)
		}
	}

	size := len(j.ring)
	for i := 0; i < j.count && len(out) < limit; i++ {
		e := j.ring[(j.head+i)%size]
		if e.Seq >= from {
			out = append(out, e)
		}
	}
	return out, nil
}

// LastSeq returns the sequence number of the newest event, 0 if none.
func (j *Journal) LastSeq() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.nextSeq - 1
}

// Close moves the ring into the archive so nothing is lost across restarts.
// The journal must not be published to afterwards.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.archive == nil {
		return nil
	}
	size := len(j.ring)
	for i := 0; i < j.count; i++ {
		if err := j.archive.Append(j.ring[(j.head+i)%size]); err != nil {
			return err
		}
	}
	j.head, j.count = 0, 0
	return j.archive.Close()
}
