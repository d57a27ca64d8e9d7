package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-ledger/internal/authz"
	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/internal/handler/health"
	notificationHandler "github.com/jwalitptl/notification-ledger/internal/handler/notification"
	metricsHandler "github.com/jwalitptl/notification-ledger/internal/handler/prometheus"
	watcherHandler "github.com/jwalitptl/notification-ledger/internal/handler/watcher"
	"github.com/jwalitptl/notification-ledger/internal/middleware"
	"github.com/jwalitptl/notification-ledger/internal/model"
	"github.com/jwalitptl/notification-ledger/internal/resource"
	notificationService "github.com/jwalitptl/notification-ledger/internal/service/notification"
	watcherService "github.com/jwalitptl/notification-ledger/internal/service/watcher"
	"github.com/jwalitptl/notification-ledger/internal/storage"
	"github.com/jwalitptl/notification-ledger/pkg/auth"
	"github.com/jwalitptl/notification-ledger/pkg/logger"
	"github.com/jwalitptl/notification-ledger/pkg/messaging"
	"github.com/jwalitptl/notification-ledger/pkg/metrics"
)

// APIResponse mirrors the response envelope.
type APIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type flow struct {
	t      *testing.T
	ctx    context.Context
	server *httptest.Server
	tokens auth.JWTService
	store  *storage.Store

	project uuid.UUID
	wp      *model.WorkPackage
}

func newFlow(t *testing.T) *flow {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &flow{
		t:       t,
		ctx:     context.Background(),
		tokens:  auth.NewJWTService("flow-secret", "test", time.Hour),
		store:   storage.NewMemory(),
		project: uuid.New(),
	}
	f.wp = &model.WorkPackage{ID: uuid.New(), ProjectID: f.project, Subject: "Install windows"}
	require.NoError(t, f.store.WorkPackages.Create(f.ctx, f.wp))

	authorizer := authz.NewMembershipAuthorizer(f.store.Members, time.Minute)
	resources := resource.NewDefaultRegistry(f.store.WorkPackages)

	notifications := notificationService.NewService(
		f.store.Notifications, f.store.Watchers, authorizer, resources,
		messaging.NopBroker{}, metrics.New("ledger"), logger.Nop(),
		notificationService.Options{OrphanPolicy: config.OrphanPolicyHide},
	)
	watchers := watcherService.NewService(f.store.Watchers, f.store.Users, authorizer, resources, logger.Nop())

	r := NewRouter(
		middleware.NewAuthMiddleware(f.tokens),
		health.NewHandler(f.store),
		metricsHandler.New("ledger", prometheus.NewRegistry()),
		notificationHandler.NewHandler(notifications),
		watcherHandler.NewHandler(watchers),
		RouterConfig{Server: config.ServerConfig{RequestTimeout: 5 * time.Second}},
	)
	r.Setup()

	f.server = httptest.NewServer(r.Engine())
	t.Cleanup(f.server.Close)
	return f
}

func (f *flow) user(name string, member bool) *model.User {
	f.t.Helper()
	u := &model.User{Name: name, Email: fmt.Sprintf("%s@example.com", name)}
	require.NoError(f.t, f.store.Users.Create(f.ctx, u))
	if member {
		require.NoError(f.t, f.store.Members.Add(f.ctx, model.Member{ProjectID: f.project, UserID: u.ID}))
	}
	return u
}

func (f *flow) makeRequest(method, path string, body interface{}, as *model.User) (int, APIResponse) {
	f.t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+"/api/v1"+path, &reqBody)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")

	token, err := f.tokens.GenerateAccessToken(as.ID, as.Email)
	require.NoError(f.t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.server.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	var out APIResponse
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (f *flow) list(as *model.User, query string) []model.Notification {
	f.t.Helper()
	status, resp := f.makeRequest(http.MethodGet, "/notifications"+query, nil, as)
	require.Equal(f.t, http.StatusOK, status, resp.Message)

	var page struct {
		Notifications []model.Notification `json:"notifications"`
	}
	require.NoError(f.t, json.Unmarshal(resp.Data, &page))
	return page.Notifications
}

func TestNotificationFlow(t *testing.T) {
	f := newFlow(t)
	alice := f.user("alice", true)
	bob := f.user("bob", true)
	carol := f.user("carol", false)
	wpPath := "/work_packages/" + f.wp.ID.String()

	// Watching
	status, _ := f.makeRequest(http.MethodPost, wpPath+"/watch", nil, bob)
	assert.Equal(t, http.StatusCreated, status)
	status, _ = f.makeRequest(http.MethodPost, wpPath+"/watch", nil, alice)
	assert.Equal(t, http.StatusCreated, status)
	status, _ = f.makeRequest(http.MethodPost, wpPath+"/watch", nil, carol)
	assert.Equal(t, http.StatusNotFound, status, "non-members cannot see the work package")

	// Journal fan-out skips the actor
	status, resp := f.makeRequest(http.MethodPost, "/journals/events", model.JournalEvent{
		JournalID: uuid.New(),
		ProjectID: f.project,
		ActorID:   alice.ID,
		Resource:  f.wp.Ref(),
	}, alice)
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var fanOut struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &fanOut))
	assert.Equal(t, 1, fanOut.Count)

	bobs := f.list(bob, "")
	require.Len(t, bobs, 1)
	watched := bobs[0]
	assert.Equal(t, model.ReasonWatched, watched.Reason)
	assert.Empty(t, f.list(alice, ""))

	// Records are private to their recipient
	status, _ = f.makeRequest(http.MethodGet, "/notifications/"+watched.ID.String(), nil, alice)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = f.makeRequest(http.MethodPost, "/notifications/"+watched.ID.String()+"/read", nil, bob)
	require.Equal(t, http.StatusOK, status, resp.Message)
	var read model.Notification
	require.NoError(t, json.Unmarshal(resp.Data, &read))
	assert.True(t, read.ReadIAN)
	assert.Empty(t, f.list(bob, "?unread=true"))

	// Direct creation by an event producer
	status, resp = f.makeRequest(http.MethodPost, "/notifications", map[string]interface{}{
		"reason":       "mentioned",
		"recipient_id": bob.ID,
		"actor_id":     alice.ID,
		"project_id":   f.project,
		"journal_id":   uuid.New(),
		"resource":     f.wp.Ref(),
	}, alice)
	require.Equal(t, http.StatusCreated, status, resp.Message)

	mentions := f.list(bob, "?reason=mentioned")
	require.Len(t, mentions, 1)
	assert.False(t, mentions[0].ReadIAN)
	assert.Empty(t, f.list(alice, "?reason=mentioned"), "producers cannot read what they create for others")
	status, _ = f.makeRequest(http.MethodGet, "/notifications/"+mentions[0].ID.String(), nil, alice)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp = f.makeRequest(http.MethodPost, "/notifications/read_all", nil, bob)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"marked":1}`, string(resp.Data))
	assert.Len(t, f.list(bob, ""), 2)

	// Deleting the work package orphans both records
	require.NoError(t, f.store.WorkPackages.Delete(f.ctx, f.wp.ID))
	assert.Empty(t, f.list(bob, ""))
}

func TestCreateRejectsUnknownReason(t *testing.T) {
	f := newFlow(t)
	alice := f.user("alice", true)

	status, _ := f.makeRequest(http.MethodPost, "/notifications", map[string]interface{}{
		"reason":       "gossip",
		"recipient_id": alice.ID,
		"actor_id":     alice.ID,
		"project_id":   f.project,
		"journal_id":   uuid.New(),
		"resource":     f.wp.Ref(),
	}, alice)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}
