package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/holiman/uint256"

	"referrald/internal/models"
	"referrald/internal/providers"
	"referrald/internal/services"
)

const maxBatchAddresses = 500

// EventReader is the read side of the event journal.
type EventReader interface {
	Read(from uint64, limit int) ([]*models.Event, error)
	LastSeq() uint64
}

type ApiController struct {
	logger  providers.Logger
	ledger  services.ReferralLedgerInterface
	journal EventReader
	cache   providers.CacheProviderInterface
}

func NewApiController(logger providers.Logger, ledger services.ReferralLedgerInterface, journal EventReader, cache providers.CacheProviderInterface) *ApiController {
	return &ApiController{
		logger:  logger,
		ledger:  ledger,
		journal: journal,
		cache:   cache,
	}
}

var errBadRequest = errors.New("bad request")

type bindRequest struct {
	Subject  string `json:"subject"`
	Referrer string `json:"referrer"`
}

type rewardRequest struct {
	Subject   string `json:"subject"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

type activityRequest struct {
	Subject string `json:"subject"`
}

type batchRequest struct {
	Addresses []string `json:"addresses"`
}

type eventsResponse struct {
	Events  []*models.Event `json:"events"`
	LastSeq uint64          `json:"last_seq"`
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", errBadRequest, s)
	}
	return common.HexToAddress(s), nil
}

func addressParam(r *http.Request) (common.Address, error) {
	return parseAddress(r.URL.Query().Get("address"))
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("%w: %s", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (ac *ApiController) respond(w http.ResponseWriter, status int, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		ac.logger.Errorf(providers.TypeApp, "Marshal response: %s", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, gson)
}

// fail maps ledger and request errors onto HTTP status codes.
func (ac *ApiController) fail(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrInvalidAddress):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrReferenceConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &maxErr):
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
	default:
		ac.logger.Errorf(providers.GetLogTypeByRequestType(r.Method), "%s %s: %s", r.Method, r.URL.Path, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// serveFromCacheOrCompute caches GET bodies under a key bound to the ledger
// version, so any committed write makes older entries unreachable.
func (ac *ApiController) serveFromCacheOrCompute(w http.ResponseWriter, r *http.Request, cacheKey string, compute func() (any, error)) {
	if data, ok := ac.cache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, data)
		return
	}

	result, err := compute()
	if err != nil {
		ac.fail(w, r, err)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		ac.fail(w, r, err)
		return
	}

	ac.cache.Set(cacheKey, gson)
	writeJSON(w, http.StatusOK, gson)
}

func (ac *ApiController) GetConfig(w http.ResponseWriter, r *http.Request) {
	ac.serveFromCacheOrCompute(w, r, "config", func() (any, error) {
		return ac.ledger.GetReferralConfig(), nil
	})
}

func (ac *ApiController) GetUser(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	key := providers.VersionedKey(ac.ledger.Version(), "user", addr.Hex())
	ac.serveFromCacheOrCompute(w, r, key, func() (any, error) {
		return ac.ledger.GetUserInfo(r.Context(), addr)
	})
}

func (ac *ApiController) GetChain(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	key := providers.VersionedKey(ac.ledger.Version(), "chain", addr.Hex())
	ac.serveFromCacheOrCompute(w, r, key, func() (any, error) {
		chain, err := ac.ledger.GetReferralChain(r.Context(), addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "chain": chain}, nil
	})
}

func (ac *ApiController) GetActive(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	key := providers.VersionedKey(ac.ledger.Version(), "active", addr.Hex())
	ac.serveFromCacheOrCompute(w, r, key, func() (any, error) {
		active, err := ac.ledger.IsActive(r.Context(), addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"address": addr, "active": active}, nil
	})
}

func (ac *ApiController) BatchUsers(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		ac.fail(w, r, err)
		return
	}
	if len(req.Addresses) > maxBatchAddresses {
		ac.fail(w, r, fmt.Errorf("%w: at most %d addresses", errBadRequest, maxBatchAddresses))
		return
	}
	addrs := make([]common.Address, 0, len(req.Addresses))
	for _, s := range req.Addresses {
		addr, err := parseAddress(s)
		if err != nil {
			ac.fail(w, r, err)
			return
		}
		addrs = append(addrs, addr)
	}
	out, err := ac.ledger.BatchGetUserInfo(r.Context(), addrs)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.respond(w, http.StatusOK, out)
}

func (ac *ApiController) Bind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if err := decodeBody(r, &req); err != nil {
		ac.fail(w, r, err)
		return
	}
	subject, err := parseAddress(req.Subject)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	referrer, err := parseAddress(req.Referrer)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	bound, err := ac.ledger.BindReferrer(r.Context(), subject, referrer)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.respond(w, http.StatusOK, map[string]bool{"bound": bound})
}

func (ac *ApiController) Reward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeBody(r, &req); err != nil {
		ac.fail(w, r, err)
		return
	}
	subject, err := parseAddress(req.Subject)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	amount, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		ac.fail(w, r, fmt.Errorf("%w: amount %q: %s", services.ErrInvalidAmount, req.Amount, err))
		return
	}
	points, err := ac.ledger.TriggerReward(r.Context(), subject, amount, req.Reference)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.respond(w, http.StatusOK, map[string]*uint256.Int{"totalPoints": points})
}

func (ac *ApiController) Activity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeBody(r, &req); err != nil {
		ac.fail(w, r, err)
		return
	}
	subject, err := parseAddress(req.Subject)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	if err := ac.ledger.UpdateActivity(r.Context(), subject); err != nil {
		ac.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ac *ApiController) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from uint64
	var limit int
	var err error
	if s := q.Get("from"); s != "" {
		if from, err = strconv.ParseUint(s, 10, 64); err != nil {
			ac.fail(w, r, fmt.Errorf("%w: from", errBadRequest))
			return
		}
	}
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			ac.fail(w, r, fmt.Errorf("%w: limit", errBadRequest))
			return
		}
	}
	evts, err := ac.journal.Read(from, limit)
	if err != nil {
		ac.fail(w, r, err)
		return
	}
	ac.respond(w, http.StatusOK, eventsResponse{Events: evts, LastSeq: ac.journal.LastSeq()})
}
