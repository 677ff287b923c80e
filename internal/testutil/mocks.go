package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"referrald/internal/models"
	"referrald/internal/providers"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (e LogEntry) Message() string {
	return fmt.Sprintf(e.Format, e.Args...)
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// HasMessage reports whether any entry at level contains substr.
func (m *MockLogger) HasMessage(level, substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Logs {
		if e.Level == level && strings.Contains(e.Message(), substr) {
			return true
		}
	}
	return false
}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

func (m *MockCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Data)
}

// MockCompressor implements interfaces.CompressorInterface with injectable behavior.
type MockCompressor struct {
	CompressFn   func([]byte) ([]byte, error)
	DecompressFn func([]byte) ([]byte, error)
	Closed       bool
}

func (m *MockCompressor) Compress(val []byte) ([]byte, error) {
	if m.CompressFn != nil {
		return m.CompressFn(val)
	}
	// Default: return as-is (identity)
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Decompress(val []byte) ([]byte, error) {
	if m.DecompressFn != nil {
		return m.DecompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Close() { m.Closed = true }

// MockMetrics implements providers.MetricsProviderInterface and counts calls.
type MockMetrics struct {
	mu          sync.Mutex
	Requests    int
	CacheHits   int
	CacheMisses int
	Persistence int
	Binds       map[string]int
	Purchases   int
	Rewards     map[uint8]int
	Points      map[uint8]float64
	Events      map[string]int // "sink:outcome"
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Binds:   make(map[string]int),
		Rewards: make(map[uint8]int),
		Points:  make(map[uint8]float64),
		Events:  make(map[string]int),
	}
}

func (m *MockMetrics) IncRequestsTotal(_ string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests++
}
func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}
func (m *MockMetrics) IncCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMisses++
}
func (m *MockMetrics) ObservePersistenceDuration(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Persistence++
}
func (m *MockMetrics) IncBinds(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Binds[result]++
}
func (m *MockMetrics) IncPurchases() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Purchases++
}
func (m *MockMetrics) IncRewards(level uint8, points float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rewards[level]++
	m.Points[level] += points
}
func (m *MockMetrics) IncEvents(sink, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[sink+":"+outcome]++
}

func (m *MockMetrics) EventCount(sink, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Events[sink+":"+outcome]
}

// MockPublisher implements events.Publisher and keeps every event in order.
type MockPublisher struct {
	mu     sync.Mutex
	seq    uint64
	Events []*models.Event
}

func (m *MockPublisher) Publish(evts ...*models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range evts {
		m.seq++
		e.Seq = m.seq
		m.Events = append(m.Events, e)
	}
}

func (m *MockPublisher) Named(name models.EventName) []*models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Event
	for _, e := range m.Events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = nil
}

// MockSink implements events.Sink. Err, when set, is returned from Deliver.
type MockSink struct {
	mu        sync.Mutex
	SinkName  string
	Err       error
	Delivered []*models.Event
	Block     chan struct{}
}

func (m *MockSink) Name() string { return m.SinkName }

func (m *MockSink) Deliver(ctx context.Context, evt *models.Event) error {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Delivered = append(m.Delivered, evt)
	return nil
}

func (m *MockSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Delivered)
}

var ErrStoreDown = errors.New("store down")

// FailingStore implements storage.ParticipantStore and fails every call
// once Fail is set. Reads before that report unknown participants.
type FailingStore struct {
	mu   sync.Mutex
	Fail bool
}

func (f *FailingStore) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fail
}

func (f *FailingStore) Get(_ context.Context, addr common.Address) (models.Participant, bool, error) {
	if f.failing() {
		return models.Participant{}, false, ErrStoreDown
	}
	return models.NewParticipant(addr), false, nil
}

func (f *FailingStore) Commit(_ context.Context, _ *models.Batch) error {
	if f.failing() {
		return ErrStoreDown
	}
	return nil
}

func (f *FailingStore) Receipt(_ context.Context, _ string) (*models.Receipt, bool, error) {
	if f.failing() {
		return nil, false, ErrStoreDown
	}
	return nil, false, nil
}

func (f *FailingStore) Count(_ context.Context) (int, error) {
	if f.failing() {
		return 0, ErrStoreDown
	}
	return 0, nil
}

func (f *FailingStore) Close() error { return nil }
