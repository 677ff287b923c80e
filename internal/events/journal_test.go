package events

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referrald/internal/models"
	"referrald/internal/structures"
	"referrald/internal/testutil"
)

func journalConfig(size int) *structures.Config {
	return &structures.Config{Events: structures.EventsConfig{JournalSize: size}}
}

func bound() *models.Event {
	e := models.NewReferrerBound(alice, bob, 1)
	return &e
}

func TestJournal_AssignsSequenceAndID(t *testing.T) {
	j := NewJournal(journalConfig(8), nil, nil, &testutil.MockLogger{})

	a, b := bound(), bound()
	j.Publish(a, b)

	assert.Equal(t, uint64(1), a.Seq)
	assert.Equal(t, uint64(2), b.Seq)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, uint64(2), j.LastSeq())
}

func TestJournal_KeepsExistingID(t *testing.T) {
	j := NewJournal(journalConfig(8), nil, nil, &testutil.MockLogger{})
	e := bound()
	e.ID = "fixed"
	j.Publish(e)
	assert.Equal(t, "fixed", e.ID)
}

func TestJournal_ReadFromRing(t *testing.T) {
	j := NewJournal(journalConfig(8), nil, nil, &testutil.MockLogger{})
	for i := 0; i < 5; i++ {
		j.Publish(bound())
	}

	got, err := j.Read(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs(got))

	got, err = j.Read(3, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, seqs(got))

	got, err = j.Read(6, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJournal_EvictsIntoArchive(t *testing.T) {
	archive := newTestArchive(t, t.TempDir())
	j := NewJournal(journalConfig(3), archive, nil, &testutil.MockLogger{})
	for i := 0; i < 7; i++ {
		j.Publish(bound())
	}
	assert.Equal(t, uint64(4), archive.LastSeq())

	got, err := j.Read(1, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, seqs(got))

	got, err = j.Read(3, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4, 5}, seqs(got))
}

func TestJournal_WithoutArchiveForgetsEvicted(t *testing.T) {
	j := NewJournal(journalConfig(2), nil, nil, &testutil.MockLogger{})
	for i := 0; i < 4; i++ {
		j.Publish(bound())
	}
	got, err := j.Read(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, seqs(got))
}

func TestJournal_CloseAndReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(journalConfig(4), newTestArchive(t, dir), nil, &testutil.MockLogger{})
	for i := 0; i < 6; i++ {
		j.Publish(bound())
	}
	require.NoError(t, j.Close())

	reopened := NewJournal(journalConfig(4), newTestArchive(t, dir), nil, &testutil.MockLogger{})
	assert.Equal(t, uint64(6), reopened.LastSeq())

	e := bound()
	reopened.Publish(e)
	assert.Equal(t, uint64(7), e.Seq)

	got, err := reopened.Read(1, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, seqs(got))
}

func TestJournal_DispatchesToSinks(t *testing.T) {
	sink := &testutil.MockSink{SinkName: "mock"}
	metrics := testutil.NewMockMetrics()
	d := NewDispatcher(&structures.Config{Events: structures.EventsConfig{QueueSize: 16, Workers: 1}},
		[]Sink{sink}, metrics, &testutil.MockLogger{})
	d.Start()

	j := NewJournal(journalConfig(8), nil, d, &testutil.MockLogger{})
	purchase := models.NewUserPurchased(alice, uint256.NewInt(10), 5)
	j.Publish(bound(), &purchase)
	d.Stop()

	require.Equal(t, 2, sink.Count())
	assert.Equal(t, models.EventUserPurchased, sink.Delivered[1].Name)
	assert.Equal(t, uint64(2), sink.Delivered[1].Seq)
}

func TestJournal_DefaultSize(t *testing.T) {
	j := NewJournal(journalConfig(0), nil, nil, &testutil.MockLogger{})
	assert.Len(t, j.ring, DefaultJournalSize)
}
