package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referrald/internal/events"
	"referrald/internal/providers"
	"referrald/internal/services"
	"referrald/internal/storage"
	"referrald/internal/structures"
	"referrald/internal/testutil"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// --- helpers ---

type apiFixture struct {
	ac      *ApiController
	ledger  services.ReferralLedgerInterface
	journal *events.Journal
	cache   *testutil.MockCache
	logger  *testutil.MockLogger
}

func testConfig() *structures.Config {
	return &structures.Config{
		Ledger: structures.LedgerConfig{
			Decimals:             10000,
			ReferralBonus:        2000,
			SecondsUntilInactive: 2592000,
			Level1Rate:           7500,
			Level2Rate:           2500,
			PointsPerUnit:        1000,
			UnitDecimals:         18,
			CycleCheckDepth:      2,
			MaxChainDepth:        64,
		},
		Events: structures.EventsConfig{JournalSize: 64},
	}
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWithStore(t, storage.NewMemoryStore())
}

func newAPIFixtureWithStore(t *testing.T, store storage.ParticipantStore) *apiFixture {
	t.Helper()
	conf := testConfig()
	logger := &testutil.MockLogger{}
	journal := events.NewJournal(conf, nil, nil, logger)
	ledger, err := services.NewReferralLedger(conf, store, clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)), journal, testutil.NewMockMetrics(), logger)
	require.NoError(t, err)
	cache := testutil.NewMockCache()
	return &apiFixture{
		ac:      NewApiController(logger, ledger, journal, cache),
		ledger:  ledger,
		journal: journal,
			cache:   cache,
		logger:  logger,
	}
}

func do(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

// jsonHex is how common.Address encodes in JSON: lowercase, not checksummed.
func jsonHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func bindBody(subject, referrer common.Address) string {
	return `{"subject":"` + subject.Hex() + `","referrer":"` + referrer.Hex() + `"}`
}

// --- Bind ---

func TestBind_Success(t *testing.T) {
	f := newAPIFixture(t)

	rr := do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["bound"])
	assert.Equal(t, uint64(1), f.journal.LastSeq())
}

func TestBind_SecondBindReturnsFalse(t *testing.T) {
	f := newAPIFixture(t)
	do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))

	rr := do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["bound"])
}

func TestBind_InvalidAddress(t *testing.T) {
	f := newAPIFixture(t)

	rr := do(f.ac.Bind, http.MethodPost, "/bind", `{"subject":"0x123","referrer":"`+alice.Hex()+`"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid address")
}

func TestBind_MalformedJSON(t *testing.T) {
	f := newAPIFixture(t)
	rr := do(f.ac.Bind, http.MethodPost, "/bind", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBind_StoreFailure(t *testing.T) {
	f := newAPIFixtureWithStore(t, &testutil.FailingStore{Fail: true})

	rr := do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.True(t, f.logger.HasMessage("error", "/bind"))
}

// --- Reward ---

func TestReward_Success(t *testing.T) {
	f := newAPIFixture(t)
	do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))

	rr := do(f.ac.Reward, http.MethodPost, "/reward",
		`{"subject":"`+bob.Hex()+`","amount":"1000000000000000000","reference":"tx-1"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "150", decode(t, rr)["totalPoints"])
}

func TestReward_InvalidAmount(t *testing.T) {
	f := newAPIFixture(t)

	for _, amount := range []string{"", "abc", "-5", "0"} {
		rr := do(f.ac.Reward, http.MethodPost, "/reward",
			`{"subject":"`+bob.Hex()+`","amount":"`+amount+`"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "amount %q", amount)
	}
}

func TestReward_ReferenceConflict(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"subject":"` + bob.Hex() + `","amount":"100","reference":"tx-1"}`
	require.Equal(t, http.StatusOK, do(f.ac.Reward, http.MethodPost, "/reward", body).Code)

	again := do(f.ac.Reward, http.MethodPost, "/reward", body)
	assert.Equal(t, http.StatusOK, again.Code)

	conflict := do(f.ac.Reward, http.MethodPost, "/reward",
		`{"subject":"`+bob.Hex()+`","amount":"200","reference":"tx-1"}`)
	assert.Equal(t, http.StatusConflict, conflict.Code)
}

func TestReward_ZeroSubject(t *testing.T) {
	f := newAPIFixture(t)
	rr := do(f.ac.Reward, http.MethodPost, "/reward",
		`{"subject":"0x0000000000000000000000000000000000000000","amount":"100"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- Activity ---

func TestActivity_NoContent(t *testing.T) {
	f := newAPIFixture(t)

	rr := do(f.ac.Activity, http.MethodPost, "/activity", `{"subject":"`+alice.Hex()+`"}`)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	active, err := f.ledger.IsActive(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestActivity_InvalidAddress(t *testing.T) {
	f := newAPIFixture(t)
	rr := do(f.ac.Activity, http.MethodPost, "/activity", `{"subject":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- queries ---

func TestGetUser_ReturnsInfo(t *testing.T) {
	f := newAPIFixture(t)
	do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))

	rr := do(f.ac.GetUser, http.MethodGet, "/user?address="+bob.Hex(), "")

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, jsonHex(alice), resp["referrer"])
	assert.Equal(t, true, resp["has_referrer"])
	assert.Equal(t, true, resp["is_active"])
	assert.Equal(t, "0", resp["reward"])
}

func TestGetUser_MissingAddress(t *testing.T) {
	f := newAPIFixture(t)
	rr := do(f.ac.GetUser, http.MethodGet, "/user", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetUser_CacheInvalidatedByWrite(t *testing.T) {
	f := newAPIFixture(t)

	first := do(f.ac.GetUser, http.MethodGet, "/user?address="+bob.Hex(), "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, false, decode(t, first)["has_referrer"])
	assert.Equal(t, 1, f.cache.Len())

	do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))

	second := do(f.ac.GetUser, http.MethodGet, "/user?address="+bob.Hex(), "")
	assert.Equal(t, true, decode(t, second)["has_referrer"])
	assert.Equal(t, 2, f.cache.Len())
}

func TestGetUser_ServedFromCache(t *testing.T) {
	f := newAPIFixture(t)
	key := providers.VersionedKey(f.ledger.Version(), "user", bob.Hex())
	f.cache.Set(key, []byte(`{"cached":true}`))

	rr := do(f.ac.GetUser, http.MethodGet, "/user?address="+bob.Hex(), "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"cached":true}`, rr.Body.String())
}

func TestGetChain(t *testing.T) {
	f := newAPIFixture(t)
	carol := common.HexToAddress("0x00000000000000000000000000000000000ca201")
	do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))
	do(f.ac.Bind, http.MethodPost, "/bind", bindBody(carol, bob))

	rr := do(f.ac.GetChain, http.MethodGet, "/chain?address="+carol.Hex(), "")

	require.Equal(t, http.StatusOK, rr.Code)
	chain := decode(t, rr)["chain"].([]any)
	assert.Equal(t, []any{jsonHex(bob), jsonHex(alice)}, chain)
}

func TestGetActive(t *testing.T) {
	f := newAPIFixture(t)

	rr := do(f.ac.GetActive, http.MethodGet, "/active?address="+alice.Hex(), "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["active"])
}

func TestBatchUsers(t *testing.T) {
	f := newAPIFixture(t)
	do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))

	rr := do(f.ac.BatchUsers, http.MethodPost, "/users",
		`{"addresses":["`+alice.Hex()+`","`+bob.Hex()+`"]}`)

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr)
	assert.Len(t, resp["referrers"], 2)
	assert.Equal(t, []any{float64(1), float64(0)}, resp["referred_counts"])
}

func TestBatchUsers_TooMany(t *testing.T) {
	f := newAPIFixture(t)
	addrs := make([]string, maxBatchAddresses+1)
	for i := range addrs {
		addrs[i] = `"` + alice.Hex() + `"`
	}

	rr := do(f.ac.BatchUsers, http.MethodPost, "/users", `{"addresses":[`+strings.Join(addrs, ",")+`]}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetConfig(t *testing.T) {
	f := newAPIFixture(t)

	rr := do(f.ac.GetConfig, http.MethodGet, "/config", "")

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, float64(2000), resp["referral_bonus"])
	assert.Equal(t, float64(7500), resp["level1_rate"])
}

// --- Events ---

func TestEvents_ReadsJournal(t *testing.T) {
	f := newAPIFixture(t)
	do(f.ac.Bind, http.MethodPost, "/bind", bindBody(bob, alice))
	do(f.ac.Reward, http.MethodPost, "/reward", `{"subject":"`+bob.Hex()+`","amount":"1000000000000000000"}`)

	rr := do(f.ac.Events, http.MethodGet, "/events?from=2&limit=1", "")

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode(t, rr)
	evts := resp["events"].([]any)
	require.Len(t, evts, 1)
	assert.Equal(t, float64(2), evts[0].(map[string]any)["seq"])
	assert.Equal(t, float64(f.journal.LastSeq()), resp["last_seq"])
}

func TestEvents_BadParams(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusBadRequest, do(f.ac.Events, http.MethodGet, "/events?from=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(f.ac.Events, http.MethodGet, "/events?limit=-1", "").Code)
}
