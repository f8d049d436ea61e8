package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/xkcdviews/models"
	"github.com/cppla/xkcdviews/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(s store.Store) *gin.Engine {
	views := NewComicViewController(s, nil)
	stats := NewStatsController(s, nil)
	stats.now = func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, time.Local) }

	r := gin.New()
	r.GET("/comics/:number/views", views.GetViews)
	r.POST("/comics/:number/views", views.RecordView)
	r.PUT("/comics/:number", views.Ensure)
	r.POST("/comics", views.Create)
	r.DELETE("/comics/:number", views.Delete)
	r.GET("/stats", stats.GetStats)
	r.GET("/top", stats.Top)
	r.GET("/trending", stats.Trending)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decodeCounter(t *testing.T, raw json.RawMessage) models.ComicViewCounter {
	t.Helper()
	var c models.ComicViewCounter
	require.NoError(t, json.Unmarshal(raw, &c))
	return c
}

func TestComicViews_ExampleScenario(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())

	status, env := do(t, r, http.MethodPut, "/comics/327", "")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(0), decodeCounter(t, env.Data).ViewCount)

	for i := 1; i <= 3; i++ {
		status, env = do(t, r, http.MethodPost, "/comics/327/views", "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, int64(i), decodeCounter(t, env.Data).ViewCount)
	}

	status, env = do(t, r, http.MethodGet, "/comics/327/views", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ComicViewCounter{ComicNumber: 327, ViewCount: 3}, decodeCounter(t, env.Data))

	status, env = do(t, r, http.MethodGet, "/comics/9999/views", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40401, env.Code)
	assert.Empty(t, env.Data)
}

func TestComicViews_EnsureExisting(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := s.IncrementView(context.Background(), 10)
	require.NoError(t, err)
	r := newTestRouter(s)

	status, env := do(t, r, http.MethodPut, "/comics/10", "")
	assert.Equal(t, http.StatusOK, status)
	var data struct {
		ViewCount int64 `json:"view_count"`
		Created   bool  `json:"created"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.False(t, data.Created)
	assert.Equal(t, int64(1), data.ViewCount)
}

func TestComicViews_BadNumber(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())
	for _, path := range []string{"/comics/abc/views", "/comics/0/views", "/comics/-4/views"} {
		status, env := do(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, status, path)
		assert.Equal(t, 40001, env.Code, path)
	}
}

func TestComicViews_CreateAndDuplicate(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())

	status, env := do(t, r, http.MethodPost, "/comics", `{"comic_number": 1000, "view_count": 12}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(12), decodeCounter(t, env.Data).ViewCount)

	status, env = do(t, r, http.MethodPost, "/comics", `{"comic_number": 1000}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, 40901, env.Code)

	status, env = do(t, r, http.MethodGet, "/comics/1000/views", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(12), decodeCounter(t, env.Data).ViewCount)

	for _, body := range []string{`{}`, `{"comic_number": -1}`, `{"comic_number": 5, "view_count": -3}`, `nope`} {
		status, _ = do(t, r, http.MethodPost, "/comics", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
	}
}

func TestComicViews_Delete(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())
	do(t, r, http.MethodPost, "/comics/5/views", "")

	status, _ := do(t, r, http.MethodDelete, "/comics/5", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, r, http.MethodDelete, "/comics/5", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStats_RankingsAndTotals(t *testing.T) {
	s := store.NewMemoryStore()
	r := newTestRouter(s)
	for comic, n := range map[int]int{1: 1, 2: 4, 3: 2} {
		for i := 0; i < n; i++ {
			do(t, r, http.MethodPost, "/comics/"+strconv.Itoa(comic)+"/views", "")
		}
	}

	status, env := do(t, r, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"comic_count": 3, "view_count": 7}`, string(env.Data))

	status, env = do(t, r, http.MethodGet, "/top?limit=2", "")
	require.Equal(t, http.StatusOK, status)
	var top struct {
		Items []models.ComicViewCounter `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &top))
	assert.Equal(t, []models.ComicViewCounter{{ComicNumber: 2, ViewCount: 4}, {ComicNumber: 3, ViewCount: 2}}, top.Items)

	status, env = do(t, r, http.MethodGet, "/trending?day="+store.Today(time.Now())+"&limit=1", "")
	require.Equal(t, http.StatusOK, status)
	var trending struct {
		Items []models.ComicDailyView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &trending))
	require.Len(t, trending.Items, 1)
	assert.Equal(t, 2, trending.Items[0].ComicNumber)

	for _, path := range []string{"/top?limit=0", "/top?limit=101", "/trending?day=17-10-2026"} {
		status, _ = do(t, r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, status, path)
	}
}

func TestStats_TrendingDefaultsToToday(t *testing.T) {
	r := newTestRouter(store.NewMemoryStore())
	status, env := do(t, r, http.MethodGet, "/trending", "")
	require.Equal(t, http.StatusOK, status)
	var data struct {
		Day string `json:"day"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "2026-10-17", data.Day)
}

type failingStore struct{ store.Store }

func (failingStore) GetViewCount(context.Context, int) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestComicViews_InternalErrorHidesCause(t *testing.T) {
	r := newTestRouter(failingStore{store.NewMemoryStore()})
	status, env := do(t, r, http.MethodGet, "/comics/1/views", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, 50001, env.Code)
	assert.NotContains(t, env.Message, "connection refused")
}
