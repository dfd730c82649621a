package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	adactor "github.com/berfenger/sib2mqtt/internal/adapter/actor"
	"github.com/berfenger/sib2mqtt/internal/adapter/store"
	coreactor "github.com/berfenger/sib2mqtt/internal/core/actor"
	"github.com/berfenger/sib2mqtt/internal/core/domain"
	"github.com/berfenger/sib2mqtt/internal/core/service"
	"github.com/berfenger/sib2mqtt/internal/host"
	"github.com/berfenger/sib2mqtt/internal/util"
	"github.com/berfenger/sib2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) http.Handler {
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)

	master, err := as.Root.SpawnNamed(actor.PropsFromProducer(func() actor.Actor {
		return coreactor.NewMasterActor(cfg, nil, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, nil, logger)
		}, logger)
	}), domain.ACTOR_ID_MASTER)
	require.NoError(t, err)

	integration := service.NewIntegration(logger)
	platform := host.NewActorPlatform(as.Root, master, 2*time.Second)
	entries := host.NewConfigEntries(store.NewMemoryStore(), integration, platform, logger)
	flows := host.NewFlowManager(entries, integration, time.Hour, logger)

	s := &Server{
		rootContext: as.Root,
		masterActor: master,
		entries:     entries,
		flows:       flows,
		platform:    platform,
		logger:      logger,
	}
	return s.RegisterRoutes()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, domain.FlowResult) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res domain.FlowResult
	if rec.Code == http.StatusOK && strings.HasPrefix(rec.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec, res
}

func TestHealthCheck(t *testing.T) {
	h := newTestServer(t)
	rec, _ := do(t, h, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())
}

func TestConfigAndOptionsFlowOverHTTP(t *testing.T) {

	require := require.New(t)
	h := newTestServer(t)

	rec, res := do(t, h, http.MethodPost, "/api/config/flow", "")
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(domain.STEP_USER, res.StepId)

	rec, res = do(t, h, http.MethodPost, "/api/config/flow/"+res.FlowId, `{"interface":"CAN0","baud_rate":500000}`)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(domain.FLOW_RESULT_CREATE_ENTRY, res.Type)
	entryId := res.Entry.EntryId

	rec, res = do(t, h, http.MethodPost, "/api/config/options/flow", `{"entry_id":"`+entryId+`"}`)
	require.Equal(http.StatusOK, rec.Code)
	flowId := res.FlowId

	rec, _ = do(t, h, http.MethodPost, "/api/config/options/flow", `{"entry_id":"`+entryId+`"}`)
	require.Equal(http.StatusConflict, rec.Code)

	_, res = do(t, h, http.MethodPost, "/api/config/options/flow/"+flowId, `{"add_binary_sensor":true}`)
	require.Equal(domain.STEP_ADD_BINARY_SENSOR, res.StepId)
	_, res = do(t, h, http.MethodPost, "/api/config/options/flow/"+flowId, `{"name":"front_door","address":"9:1"}`)
	require.Equal(domain.FORM_ERROR_INVALID_ADDRESS, res.Errors["address"])
	_, res = do(t, h, http.MethodPost, "/api/config/options/flow/"+flowId, `{"name":"front_door","address":"0:1","device_class":"door"}`)
	require.Equal(domain.STEP_INIT, res.StepId)
	_, res = do(t, h, http.MethodPost, "/api/config/options/flow/"+flowId, `{"add_binary_sensor":false}`)
	require.Equal(domain.FLOW_RESULT_CREATE_ENTRY, res.Type)

	rec, _ = do(t, h, http.MethodGet, "/api/states/"+entryId, "")
	require.Equal(http.StatusOK, rec.Code)
	var states []domain.EntityState
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &states))
	require.Len(states, 1)
	require.Equal(entryId+"_0:1", states[0].UniqueId)

	rec, _ = do(t, h, http.MethodGet, "/api/config/entries", "")
	require.Equal(http.StatusOK, rec.Code)
	var entries []domain.ConfigurationEntry
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(entries, 1)
	require.Len(entries[0].Sensors, 1)

	rec, _ = do(t, h, http.MethodPost, "/api/config/entries/"+entryId+"/reload", "")
	require.Equal(http.StatusNoContent, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/config/entries/"+entryId, "")
	require.Equal(http.StatusNoContent, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/states/"+entryId, "")
	require.Equal(http.StatusNotFound, rec.Code)
}

func TestUnknownFlow(t *testing.T) {
	h := newTestServer(t)

	rec, _ := do(t, h, http.MethodPost, "/api/config/flow/missing", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/config/options/flow/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/config/options/flow", `{"entry_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
