package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/http/middleware"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/model"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/notify"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/repository"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/service"
)

type testEnv struct {
	handler *Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zerolog.Nop()
	store := repository.NewMemoryStore(time.Second)
	notifier := notify.NewLogNotifier(log)
	contracts := service.NewContractService(store, notifier, log)
	bids := service.NewBidService(store, notifier, log)
	return &testEnv{handler: NewHandler(contracts, bids, log)}
}

// router builds a router over the shared store acting as the given
// principal.
func (e *testEnv) router(principal model.Principal) *gin.Engine {
	return NewRouter(e.handler, middleware.SetPrincipal(principal), "test")
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func createContractHTTP(t *testing.T, router *gin.Engine) map[string]interface{} {
	t.Helper()
	recorder := doJSON(t, router, http.MethodPost, "/contracts", gin.H{
		"title":       "Regional logistics contract",
		"description": "Two year term",
		"team_ids":    []string{uuid.New().String()},
		"milestones":  []gin.H{{"name": "Kickoff"}},
	})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	return created
}

func TestCreateAndGetContract(t *testing.T) {
	env := newTestEnv(t)
	manager := model.Principal{UserID: uuid.New(), Role: model.RoleManager}
	router := env.router(manager)

	created := createContractHTTP(t, router)
	assert.Equal(t, "PROPOSAL", created["stage"])
	assert.Equal(t, manager.UserID.String(), created["created_by"])
	assert.NotEmpty(t, created["next_stage_requirements"])

	recorder := doJSON(t, router, http.MethodGet, "/contracts/"+created["id"].(string), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var fetched map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &fetched))
	assert.Equal(t, created["id"], fetched["id"])
	assert.Equal(t, "Regional logistics contract", fetched["title"])

	recorder = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/contracts/%s/transitions", created["id"]), nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var log struct {
		Transitions []map[string]interface{} `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &log))
	require.Len(t, log.Transitions, 1)
	assert.Nil(t, log.Transitions[0]["from_stage"])
	assert.Equal(t, "PROPOSAL", log.Transitions[0]["to_stage"])
}

func TestInvalidTransitionPayload(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(model.Principal{UserID: uuid.New(), Role: model.RoleManager})
	created := createContractHTTP(t, router)

	recorder := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/contracts/%s/transitions", created["id"]),
		gin.H{"to_stage": "ACTIVE"})
	require.Equal(t, http.StatusConflict, recorder.Code)

	var payload struct {
		Kind        string   `json:"kind"`
		AllowedNext []string `json:"allowed_next"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, "INVALID_TRANSITION", payload.Kind)
	assert.Equal(t, []string{"BID_SUBMITTED"}, payload.AllowedNext)
}

func TestPermissionDeniedMapsTo403(t *testing.T) {
	env := newTestEnv(t)
	managerRouter := env.router(model.Principal{UserID: uuid.New(), Role: model.RoleManager})
	created := createContractHTTP(t, managerRouter)

	specialistRouter := env.router(model.Principal{UserID: uuid.New(), Role: model.RoleSpecialist})
	recorder := doJSON(t, specialistRouter, http.MethodPost,
		fmt.Sprintf("/contracts/%s/transitions", created["id"]),
		gin.H{"to_stage": "QUEUED"})
	require.Equal(t, http.StatusForbidden, recorder.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	assert.Equal(t, "PERMISSION_DENIED", payload["kind"])

	// Stage untouched.
	recorder = doJSON(t, managerRouter, http.MethodGet, "/contracts/"+created["id"].(string), nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var contract map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &contract))
	assert.Equal(t, "PROPOSAL", contract["stage"])
}

func TestBidLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	bidder := model.Principal{UserID: uuid.New(), Role: model.RoleSpecialist}
	bidderRouter := env.router(bidder)
	managerRouter := env.router(model.Principal{UserID: uuid.New(), Role: model.RoleManager})

	created := createContractHTTP(t, managerRouter)
	contractID := created["id"].(string)

	recorder := doJSON(t, bidderRouter, http.MethodPost,
		"/contracts/"+contractID+"/bids",
		gin.H{"amount": 99000.0, "terms": "net 30"})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var bid map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &bid))
	assert.Equal(t, "PENDING", bid["status"])

	// First bid advanced the contract.
	recorder = doJSON(t, bidderRouter, http.MethodGet, "/contracts/"+contractID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var contract map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &contract))
	assert.Equal(t, "BID_SUBMITTED", contract["stage"])

	// Duplicate bid from the same principal.
	recorder = doJSON(t, bidderRouter, http.MethodPost,
		"/contracts/"+contractID+"/bids", gin.H{"amount": 1.0})
	require.Equal(t, http.StatusConflict, recorder.Code)
	var conflict map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &conflict))
	assert.Equal(t, "DUPLICATE_BID", conflict["kind"])

	// A specialist may not evaluate.
	recorder = doJSON(t, bidderRouter, http.MethodPost,
		"/bids/"+bid["id"].(string)+"/evaluate", gin.H{"decision": "ACCEPT"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	// The manager accepts the bid.
	recorder = doJSON(t, managerRouter, http.MethodPost,
		"/bids/"+bid["id"].(string)+"/evaluate", gin.H{"decision": "ACCEPT"})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var evaluated map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &evaluated))
	assert.Equal(t, "ACCEPTED", evaluated["status"])

	recorder = doJSON(t, managerRouter, http.MethodGet, "/contracts/"+contractID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &contract))
	assert.Equal(t, "BID_APPROVED", contract["stage"])
	assert.Equal(t, bid["id"], contract["accepted_bid_id"])

	// Withdrawing an accepted bid conflicts.
	recorder = doJSON(t, bidderRouter, http.MethodPost,
		"/bids/"+bid["id"].(string)+"/withdraw", nil)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestWithdrawReturnsNoContent(t *testing.T) {
	env := newTestEnv(t)
	bidder := model.Principal{UserID: uuid.New(), Role: model.RoleSpecialist}
	bidderRouter := env.router(bidder)
	managerRouter := env.router(model.Principal{UserID: uuid.New(), Role: model.RoleManager})

	created := createContractHTTP(t, managerRouter)
	contractID := created["id"].(string)

	recorder := doJSON(t, bidderRouter, http.MethodPost,
		"/contracts/"+contractID+"/bids", gin.H{"amount": 5000.0})
	require.Equal(t, http.StatusCreated, recorder.Code)
	var bid map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &bid))

	recorder = doJSON(t, bidderRouter, http.MethodPost,
		"/bids/"+bid["id"].(string)+"/withdraw", nil)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestNotFoundMapsTo404(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(model.Principal{UserID: uuid.New(), Role: model.RoleManager})

	recorder := doJSON(t, router, http.MethodGet, "/contracts/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = doJSON(t, router, http.MethodGet, "/contracts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(model.Principal{UserID: uuid.New(), Role: model.RoleManager})

	recorder := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)
}
