package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagkeep/coordinator"
	"tagkeep/reader/readertest"
	"tagkeep/registry"
	"tagkeep/store"
	"tagkeep/uid"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func get(t *testing.T, h http.Handler, url string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func startEngine(t *testing.T) (*coordinator.Engine, *readertest.Fake) {
	t.Helper()
	flash, err := store.NewMemFlash(1, store.DefaultSectorSize, store.DefaultPageSize)
	require.NoError(t, err)
	st, err := store.New(flash, 0, registry.DefaultCapacity)
	require.NoError(t, err)

	rdr := &readertest.Fake{}
	reg := registry.New(registry.DefaultCapacity, st)
	eng := coordinator.NewEngine(coordinator.New(reg, rdr, coordinator.Config{
		Timeout:      5 * time.Second,
		PollInterval: 5 * time.Millisecond,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return eng, rdr
}

func waitIdle(t *testing.T, h http.Handler) statusResponse {
	t.Helper()
	var st statusResponse
	require.Eventually(t, func() bool {
		st = statusResponse{}
		get(t, h, "/api/status", &st)
		return !st.RegisterMode && !st.IdentifyMode && !st.RenameMode
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestAPI_EndToEnd(t *testing.T) {
	t.Parallel()
	eng, rdr := startEngine(t)
	h := New(Config{}, eng).Handler()
	card := uid.MustParse("AA:BB:CC:DD")

	var st statusResponse
	require.Equal(t, http.StatusOK, get(t, h, "/api/status", &st))
	assert.Equal(t, "online", st.Status)
	assert.Equal(t, 50, st.MaxItems)
	assert.Zero(t, st.TotalItems)

	var res result
	require.Equal(t, http.StatusOK, get(t, h, "/api/register?name=Keys", &res))
	assert.True(t, res.Success)

	get(t, h, "/api/status", &st)
	assert.True(t, st.RegisterMode)

	// a second request is rejected while the first is pending
	res = result{}
	assert.Equal(t, http.StatusConflict, get(t, h, "/api/identify", &res))
	assert.False(t, res.Success)

	rdr.Present(card)
	st = waitIdle(t, h)
	assert.Equal(t, 1, st.TotalItems)
	assert.Equal(t, "success", st.LastResult)

	var items itemsResponse
	require.Equal(t, http.StatusOK, get(t, h, "/api/items", &items))
	assert.Equal(t, 1, items.Count)
	assert.Equal(t, []item{{Name: "Keys", UID: "AA:BB:CC:DD"}}, items.Items)

	require.Equal(t, http.StatusOK, get(t, h, "/api/rename?name=House%20Keys", &res))
	rdr.Present(card)
	waitIdle(t, h)

	require.Equal(t, http.StatusOK, get(t, h, "/api/identify", &res))
	rdr.Present(card)
	st = waitIdle(t, h)
	assert.Equal(t, "House Keys", st.LastItem)

	res = result{}
	require.Equal(t, http.StatusOK, get(t, h, "/api/delete?uid=AA:BB:CC:DD", &res))
	assert.True(t, res.Success)

	require.Equal(t, http.StatusOK, get(t, h, "/api/identify", &res))
	rdr.Present(card)
	st = waitIdle(t, h)
	assert.Equal(t, "not_found", st.LastResult)
	assert.Empty(t, st.LastItem)
	assert.Zero(t, st.TotalItems)

	items = itemsResponse{}
	get(t, h, "/api/items", &items)
	assert.Zero(t, items.Count)
	assert.NotNil(t, items.Items)
}

func TestAPI_BadInput(t *testing.T) {
	t.Parallel()
	eng, _ := startEngine(t)
	h := New(Config{}, eng).Handler()

	var res result
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/register", &res))
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/rename?name=%20%20", &res))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/delete?uid=zz", &res))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/delete", &res))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/delete?uid=01:02:03:04", &res))

	var st statusResponse
	get(t, h, "/api/status", &st)
	assert.False(t, st.RegisterMode)
	assert.False(t, st.RenameMode)
}

type stubBackend struct {
	err error
}

func (s stubBackend) Submit(context.Context, coordinator.Request) (uuid.UUID, error) {
	return uuid.Nil, s.err
}

func (s stubBackend) Delete(context.Context, uid.ID) (registry.Entry, error) {
	return registry.Entry{}, s.err
}

func (s stubBackend) List(context.Context) ([]registry.Entry, error) { return nil, s.err }

func (s stubBackend) Status(context.Context) (coordinator.Status, error) {
	return coordinator.Status{}, s.err
}

func TestAPI_BackendErrors(t *testing.T) {
	t.Parallel()

	persist := New(Config{}, stubBackend{err: errors.Join(registry.ErrPersistenceFailed, errors.New("erase"))}).Handler()
	assert.Equal(t, http.StatusInternalServerError, get(t, persist, "/api/delete?uid=01:02:03:04", nil))

	stopped := New(Config{}, stubBackend{err: coordinator.ErrStopped}).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, stopped, "/api/identify", nil))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, stopped, "/api/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, stopped, "/api/items", nil))
}

func TestAPI_PingAndMetrics(t *testing.T) {
	t.Parallel()
	h := New(Config{}, stubBackend{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tagkeep_")
}
