package events

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"referrald/internal/models"
	"referrald/internal/persistence/interfaces"
	"referrald/internal/providers"
	"referrald/internal/structures"
)

var ErrArchiveClosed = errors.New("event archive closed")

const segmentExt = ".events.zst"

type segment struct {
	first uint64
	last  uint64
	path  string
}

// Archive keeps events that fell out of the journal ring. Evicted events are
// buffered in memory and written as one immutable zstd segment per Flush.
// An archive without a directory keeps nothing.
type Archive struct {
	mu         sync.Mutex
	dir        string
	pending    []*models.Event
	segments   []segment
	closed     bool
	compressor interfaces.CompressorInterface
	logger     providers.Logger
}

func NewArchive(conf *structures.Config, compressor interfaces.CompressorInterface, logger providers.Logger) (*Archive, error) {
	a := &Archive{
		dir:        conf.Events.ArchiveDir,
		compressor: compressor,
		logger:     logger,
	}
	if a.dir == "" {
		logger.Infof(providers.TypeEvents, "Event archive disabled, evicted events are discarded")
		return a, nil
	}
	if err := a.restoreIndex(); err != nil {
		return nil, fmt.Errorf("event archive index: %w", err)
	}
	logger.Infof(providers.TypeEvents, "Event archive %s: %d segments, last seq %d", a.dir, len(a.segments), a.LastSeq())
	return a, nil
}

func (a *Archive) Enabled() bool {
	return a.dir != ""
}

// Append buffers an evicted event. No disk I/O is performed.
func (a *Archive) Append(evt *models.Event) error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrArchiveClosed
	}
	a.pending = append(a.pending, evt)
	return nil
}

// Flush writes pending events as a new segment. This is the only method
// that writes to disk.
func (a *Archive) Flush() error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrArchiveClosed
	}
	return a.flushLocked()
}

func (a *Archive) flushLocked() error {
	if len(a.pending) == 0 {
		return nil
	}
	seg := segment{first: a.pending[0].Seq, last: a.pending[len(a.pending)-1].Seq}
	seg.path = filepath.Join(a.dir, fmt.Sprintf("%020d-%020d%s", seg.first, seg.last, segmentExt))

	if err := a.writeSegment(seg.path, a.pending); err != nil {
		return err
	}
	a.segments = append(a.segments, seg)
	a.pending = nil
	a.logger.Debugf(providers.TypeEvents, "Archived events %d..%d", seg.first, seg.last)
	return nil
}

// Read returns up to limit archived events with seq >= from, in order.
func (a *Archive) Read(from uint64, limit int) ([]*models.Event, error) {
	if !a.Enabled() || limit <= 0 {
		return nil, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*models.Event, 0, min(limit, 256))
	for _, seg := range a.segments {
		if seg.last < from {
			continue
		}
		evts, err := a.loadSegment(seg.path)
		if err != nil {
			return nil, err
		}
		for _, e := range evts {
			if e.Seq < from {
				continue
			}
			out = append(out, e)
			if len(out) == limit {
				return out, nil
			}
		}
	}
	for _, e := range a.pending {
		if e.Seq < from {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastSeq is the highest sequence number ever archived, 0 when empty.
func (a *Archive) LastSeq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.pending); n > 0 {
		return a.pending[n-1].Seq
	}
	if n := len(a.segments); n > 0 {
		return a.segments[n-1].last
	}
	return 0
}

// Close flushes what is pending and rejects further writes.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	var err error
	if a.Enabled() {
		err = a.flushLocked()
	}
	a.closed = true
	return err
}

func (a *Archive) restoreIndex() error {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(a.dir, "*"+segmentExt))
	if err != nil {
		return err
	}
	for _, file := range files {
		seg, ok := parseSegmentName(file)
		if !ok {
			a.logger.Warnf(providers.TypeEvents, "Skipping unexpected archive file %s", file)
			continue
		}
		a.segments = append(a.segments, seg)
	}
	sort.Slice(a.segments, func(i, j int) bool { return a.segments[i].first < a.segments[j].first })
	return nil
}

// parseSegmentName reads "<first>-<last>.events.zst".
func parseSegmentName(path string) (segment, bool) {
	name := strings.TrimSuffix(filepath.Base(path), segmentExt)
	lo, hi, ok := strings.Cut(name, "-")
	if !ok {
		return segment{}, false
	}
	first, err := strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return segment{}, false
	}
	last, err := strconv.ParseUint(hi, 10, 64)
	if err != nil || last < first {
		return segment{}, false
	}
	return segment{first: first, last: last, path: path}, true
}

func (a *Archive) loadSegment(path string) ([]*models.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read segment %s: %w", path, err)
	}
	raw, err := a.compressor.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress segment %s: %w", path, err)
	}
	var evts []*models.Event
	if err := json.Unmarshal(raw, &evts); err != nil {
		return nil, fmt.Errorf("parse segment %s: %w", path, err)
	}
	return evts, nil
}

// writeSegment serializes and atomically writes a segment file.
func (a *Archive) writeSegment(path string, evts []*models.Event) error {
	jsonData, err := json.Marshal(evts)
	if err != nil {
		return err
	}
	compressed, err := a.compressor.Compress(jsonData)
	if err != nil {
		return err
	}
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, compressed, 0644); err != nil {
		return err
	}
	return os.Rename(tmpFile, path)
}
