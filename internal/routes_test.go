package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referrald/internal/controllers"
	"referrald/internal/events"
	"referrald/internal/persistence"
	"referrald/internal/services"
	"referrald/internal/storage"
	"referrald/internal/structures"
	"referrald/internal/testutil"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func appConfig(dir string) *structures.Config {
	return &structures.Config{
		AppName: "ReferralLedgerDaemon",
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
		Storage:     structures.StorageConfig{Driver: "memory"},
		Persistence: structures.Persistence{FilePath: filepath.Join(dir, "ledger.dat"), SaveInterval: time.Hour},
		Events: structures.EventsConfig{
			JournalSize: 2,
			ArchiveDir:  filepath.Join(dir, "archive"),
			FlushEvery:  time.Hour,
			QueueSize:   16,
			Workers:     1,
		},
		WebServer: structures.Server{Host: "127.0.0.1", Port: 0, CommandToken: "tok"},
	}
}

type appFixture struct {
	app  *App
	conf *structures.Config
	sink *testutil.MockSink
}

func newAppFixture(t *testing.T, dir string) *appFixture {
	t.Helper()
	conf := appConfig(dir)
	logger := &testutil.MockLogger{}
	metrics := testutil.NewMockMetrics()

	compressor, err := persistence.NewZstdCompressor()
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	fm := persistence.NewFileManager(compressor, storage.NewSnapshotter(store), metrics, logger)
	archive, err := events.NewArchive(conf, compressor, logger)
	require.NoError(t, err)
	sink := &testutil.MockSink{SinkName: "mock"}
	dispatcher := events.NewDispatcher(conf, []events.Sink{sink}, metrics, logger)
	journal := events.NewJournal(conf, archive, dispatcher, logger)

	ledger, err := services.NewReferralLedger(conf, store, clockwork.NewRealClock(), journal, metrics, logger)
	require.NoError(t, err)
	api := controllers.NewApiController(logger, ledger, journal, testutil.NewMockCache())
	health := controllers.NewHealthController(ledger, journal)
	scheduler := persistence.NewScheduler(conf, logger, fm, archive, clockwork.NewRealClock())

	app, err := NewApp(health, InitRoutes(api, conf), scheduler, dispatcher, journal, store, fm, conf, logger, metrics)
	require.NoError(t, err)
	dispatcher.Start()
	return &appFixture{app: app, conf: conf, sink: sink}
}

func (f *appFixture) serve(method, target, body string, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.app.WebServer.Handler.ServeHTTP(rr, req)
	return rr
}

func TestInitRoutes_RegistersLedgerRoutes(t *testing.T) {
	ac := controllers.NewApiController(&testutil.MockLogger{}, nil, nil, testutil.NewMockCache())

	routes := InitRoutes(ac, &structures.Config{}).GetRoutes()

	urls := make([]string, len(routes))
	for i, r := range routes {
		urls[i] = r.Url
	}
	assert.ElementsMatch(t, []string{"/config", "/user", "/chain", "/active", "/events", "/users", "/bind", "/reward", "/activity"}, urls)
}

func TestApp_MethodEnforcement(t *testing.T) {
	f := newAppFixture(t, t.TempDir())
	defer f.app.Shutdown(context.Background())

	assert.Equal(t, http.StatusMethodNotAllowed, f.serve(http.MethodGet, "/bind", "", "tok").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.serve(http.MethodPost, "/user", "", "").Code)
}

func TestApp_CommandsRequireToken(t *testing.T) {
	f := newAppFixture(t, t.TempDir())
	defer f.app.Shutdown(context.Background())
	body := `{"subject":"` + bob.Hex() + `","referrer":"` + alice.Hex() + `"}`

	assert.Equal(t, http.StatusUnauthorized, f.serve(http.MethodPost, "/bind", body, "").Code)

	rr := f.serve(http.MethodPost, "/bind", body, "tok")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"bound":true}`, rr.Body.String())

	batch := f.serve(http.MethodPost, "/users", `{"addresses":["`+bob.Hex()+`"]}`, "")
	assert.Equal(t, http.StatusOK, batch.Code)
}

func TestApp_HealthAndMetricsRoutes(t *testing.T) {
	f := newAppFixture(t, t.TempDir())
	defer f.app.Shutdown(context.Background())

	assert.Equal(t, http.StatusOK, f.serve(http.MethodGet, "/health", "", "").Code)
	// metrics disabled in this config
	assert.Equal(t, http.StatusNotFound, f.serve(http.MethodGet, "/metrics", "", "").Code)
}

func TestApp_ShutdownPersistsLedgerAndEvents(t *testing.T) {
	dir := t.TempDir()
	f := newAppFixture(t, dir)

	require.Equal(t, http.StatusOK, f.serve(http.MethodPost, "/bind",
		`{"subject":"`+bob.Hex()+`","referrer":"`+alice.Hex()+`"}`, "tok").Code)
	require.Equal(t, http.StatusOK, f.serve(http.MethodPost, "/reward",
		`{"subject":"`+bob.Hex()+`","amount":"1000000000000000000","reference":"tx-1"}`, "tok").Code)

	require.NoError(t, f.app.Shutdown(context.Background()))
	assert.Equal(t, 3, f.sink.Count())

	restarted := newAppFixture(t, dir)
	defer restarted.app.Shutdown(context.Background())

	rr := restarted.serve(http.MethodGet, "/user?address="+alice.Hex(), "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"reward":"150000000000000000"`)

	evts := restarted.serve(http.MethodGet, "/events?from=1", "", "")
	require.Equal(t, http.StatusOK, evts.Code)
	assert.Contains(t, evts.Body.String(), `"last_seq":3`)

	again := restarted.serve(http.MethodPost, "/reward",
		`{"subject":"`+bob.Hex()+`","amount":"1000000000000000000","reference":"tx-1"}`, "tok")
	assert.JSONEq(t, `{"totalPoints":"150"}`, again.Body.String())
}
