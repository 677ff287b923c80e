package di

import (
	"referrald/internal/providers"
	"referrald/internal/storage"
)

// participantCounter feeds the participants gauge straight from the store so
// metrics do not depend on the ledger.
func participantCounter(store storage.ParticipantStore) providers.ParticipantCounter {
	return store
}
