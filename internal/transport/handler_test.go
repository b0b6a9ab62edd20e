package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	api "github.com/hubexhq/hubex/internal/api/v1"
	"github.com/hubexhq/hubex/internal/auth"
	"github.com/hubexhq/hubex/internal/config"
	"github.com/hubexhq/hubex/internal/rate"
	"github.com/hubexhq/hubex/internal/realtime"
	"github.com/hubexhq/hubex/internal/service"
	"github.com/hubexhq/hubex/internal/store"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/hubexhq/hubex/internal/util"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, store.Store) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.NewStore(db, log)
	require.NoError(t, st.InitialMigration())

	cfg := config.NewDefault()
	cfg.Auth.CapsEnforce = true
	if mutate != nil {
		mutate(cfg)
	}

	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, time.Hour)
	hub := realtime.NewHub(cfg.Limits.MaxWSConnections, log)
	limiter := rate.NewLimiter(cfg.Limits.RateLimitPerMin, cfg.Limits.RateLimitEnabled)
	serviceHandler := service.NewServiceHandler(st, cfg, jwtMgr, hub, limiter, log)
	router := NewRouter(NewTransportHandler(serviceHandler, log), NewWebsocketHandler(serviceHandler, log), cfg, log)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = st.Close() })
	return ts, st
}

// claimDevice runs the full pairing flow and returns the claimed device; the
// plaintext device token is "token-"+uid.
func claimDevice(t *testing.T, st store.Store, uid string) *model.Device {
	t.Helper()
	ctx := context.Background()

	user, err := st.User().Create(ctx, &model.User{Email: uid + "@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	_, err = st.Device().Hello(ctx, uid, nil, nil)
	require.NoError(t, err)

	code, err := util.NewPairingCode()
	require.NoError(t, err)
	_, err = st.Pairing().CreateSession(ctx, &model.PairingSession{
		DeviceUID:   uid,
		PairingCode: code,
		UserID:      user.ID,
		ExpiresAt:   time.Now().UTC().Add(10 * time.Minute),
	})
	require.NoError(t, err)

	device, _, err := st.Pairing().Confirm(ctx, uid, code, util.HashToken("token-"+uid))
	require.NoError(t, err)
	return device
}

func deviceRequest(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.Header.Set("X-Device-Token", token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestPollTasksAcceptsQueryParameters(t *testing.T) {
	ts, st := newTestServer(t, nil)
	device := claimDevice(t, st, "dev-pollq")
	token := "token-dev-pollq"

	_, _, err := st.Task().Create(context.Background(), &model.Task{
		ClientID: device.ID,
		Type:     "reboot",
		Payload:  model.JSON(`{}`),
	})
	require.NoError(t, err)

	// Query parameters with an empty body, the way agents call it.
	resp := deviceRequest(t, "POST", ts.URL+"/api/v1/tasks/poll?limit=1&lease_seconds=30", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []api.TaskPollItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 1)
	require.NotEmpty(t, items[0].LeaseToken)
	require.WithinDuration(t, time.Now().UTC().Add(30*time.Second), items[0].LeaseExpiresAt, 5*time.Second)

	// The batch is claimed now, so a second poll comes back empty.
	resp = deviceRequest(t, "POST", ts.URL+"/api/v1/tasks/poll", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Empty(t, items)
}

func TestRenewTaskDefaultsLeaseToSixtySeconds(t *testing.T) {
	ts, st := newTestServer(t, nil)
	device := claimDevice(t, st, "dev-renewq")
	token := "token-dev-renewq"

	task, _, err := st.Task().Create(context.Background(), &model.Task{
		ClientID: device.ID,
		Type:     "reboot",
		Payload:  model.JSON(`{}`),
	})
	require.NoError(t, err)

	resp := deviceRequest(t, "POST", ts.URL+"/api/v1/tasks/poll?lease_seconds=10", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []api.TaskPollItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 1)
	require.Equal(t, task.ID, items[0].ID)

	// No body and no lease_seconds parameter: the lease extends by the
	// default 60, not the clamp floor.
	resp = deviceRequest(t, "POST", fmt.Sprintf("%s/api/v1/tasks/%d/renew", ts.URL, task.ID), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var renewed api.TaskRenewResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&renewed))
	require.WithinDuration(t, time.Now().UTC().Add(60*time.Second), renewed.LeaseExpiresAt, 5*time.Second)

	// An explicit query value still wins.
	resp = deviceRequest(t, "POST", fmt.Sprintf("%s/api/v1/tasks/%d/renew?lease_seconds=120", ts.URL, task.ID), token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&renewed))
	require.WithinDuration(t, time.Now().UTC().Add(120*time.Second), renewed.LeaseExpiresAt, 5*time.Second)
}

func TestRequestDeadlineCoversAuthLookups(t *testing.T) {
	ts, st := newTestServer(t, func(cfg *config.Config) {
		cfg.Service.RequestTimeout = "1ns"
	})
	claimDevice(t, st, "dev-deadline")

	// The deadline is already exceeded when the guard runs, so the device
	// token lookup fails instead of the request proceeding unauthenticated
	// into the handler.
	resp := deviceRequest(t, "POST", ts.URL+"/api/v1/telemetry", "token-dev-deadline")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
