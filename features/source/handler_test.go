package source_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ragdocs/features/source"
	"ragdocs/internal/extract"
	"ragdocs/internal/queue"
	"ragdocs/internal/vector"
)

type MockIndex struct{ mock.Mock }

func (m *MockIndex) ListSources(ctx context.Context) ([]vector.Source, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Source), args.Error(1)
}

func (m *MockIndex) DeleteByURL(ctx context.Context, urls []string) error {
	return m.Called(ctx, urls).Error(0)
}

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) ExtractLinks(ctx context.Context, url string) ([]string, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockEnqueuer struct{ mock.Mock }

func (m *MockEnqueuer) Enqueue(ctx context.Context, urls []string) ([]queue.Item, error) {
	args := m.Called(ctx, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]queue.Item), args.Error(1)
}

type fixture struct {
	idx *MockIndex
	ex  *MockExtractor
	enq *MockEnqueuer
	h   *source.Handler
}

func newFixture() *fixture {
	f := &fixture{idx: &MockIndex{}, ex: &MockExtractor{}, enq: &MockEnqueuer{}}
	f.h = source.NewHandler(source.NewService(f.idx, f.ex, f.enq, nil))
	return f
}

func TestHandler_List(t *testing.T) {
	f := newFixture()
	f.idx.On("ListSources", mock.Anything).Return([]vector.Source{
		{URL: "https://ex.com/a", Title: "A"},
		{URL: "https://ex.com/b", Title: "B"},
	}, nil)

	w := httptest.NewRecorder()
	f.h.List(w, httptest.NewRequest(http.MethodGet, "/documents", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"data": [{"url": "https://ex.com/a", "title": "A"}, {"url": "https://ex.com/b", "title": "B"}],
		"meta": {"count": 2}
	}`, w.Body.String())
}

func TestHandler_List_Empty(t *testing.T) {
	f := newFixture()
	f.idx.On("ListSources", mock.Anything).Return(nil, nil)

	w := httptest.NewRecorder()
	f.h.List(w, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.JSONEq(t, `{"data": [], "meta": {"count": 0}}`, w.Body.String())
}

func TestHandler_List_ConnectionError(t *testing.T) {
	f := newFixture()
	f.idx.On("ListSources", mock.Anything).Return(nil, vector.ConnectionError("list sources", errors.New("dial tcp")))

	w := httptest.NewRecorder()
	f.h.List(w, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "UPSTREAM_UNAVAILABLE")
}

func TestHandler_Remove(t *testing.T) {
	f := newFixture()
	f.idx.On("DeleteByURL", mock.Anything, []string{"https://ex.com/a", "https://ex.com/b"}).Return(nil)

	body := `{"urls": ["https://ex.com/a", "https://ex.com/b", "https://ex.com/a"]}`
	w := httptest.NewRecorder()
	f.h.Remove(w, httptest.NewRequest(http.MethodDelete, "/documents", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2 documents removed successfully")
	f.idx.AssertExpectations(t)
}

func TestHandler_Remove_Single(t *testing.T) {
	f := newFixture()
	f.idx.On("DeleteByURL", mock.Anything, []string{"https://ex.com/a"}).Return(nil)

	w := httptest.NewRecorder()
	f.h.Remove(w, httptest.NewRequest(http.MethodDelete, "/documents", strings.NewReader(`{"url": "https://ex.com/a"}`)))
	assert.Contains(t, w.Body.String(), "1 document removed successfully")
}

func TestHandler_Remove_Validation(t *testing.T) {
	for _, body := range []string{`{}`, `not json`, `{"url": "mailto:x@y"}`} {
		f := newFixture()
		w := httptest.NewRecorder()
		f.h.Remove(w, httptest.NewRequest(http.MethodDelete, "/documents", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		f.idx.AssertNotCalled(t, "DeleteByURL", mock.Anything, mock.Anything)
	}
}

func TestHandler_RemoveAll(t *testing.T) {
	f := newFixture()
	f.idx.On("ListSources", mock.Anything).Return([]vector.Source{{URL: "https://ex.com/a"}, {URL: "https://ex.com/b"}}, nil)
	f.idx.On("DeleteByURL", mock.Anything, []string{"https://ex.com/a", "https://ex.com/b"}).Return(nil)

	w := httptest.NewRecorder()
	f.h.RemoveAll(w, httptest.NewRequest(http.MethodDelete, "/documents/all", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
}

func TestHandler_RemoveAll_Empty(t *testing.T) {
	f := newFixture()
	f.idx.On("ListSources", mock.Anything).Return([]vector.Source{}, nil)

	w := httptest.NewRecorder()
	f.h.RemoveAll(w, httptest.NewRequest(http.MethodDelete, "/documents/all", nil))
	assert.Contains(t, w.Body.String(), "No documents to remove")
	f.idx.AssertNotCalled(t, "DeleteByURL", mock.Anything, mock.Anything)
}

func TestHandler_ExtractURLs(t *testing.T) {
	f := newFixture()
	f.ex.On("ExtractLinks", mock.Anything, "https://docs.ex.com/guide/intro").Return([]string{
		"https://docs.ex.com/guide/setup",
		"https://docs.ex.com/api/ref",
		"https://other.com/x",
		"https://docs.ex.com/guide/changelog",
	}, nil)

	body := `{"url": "https://docs.ex.com/guide/intro", "path_prefix": true, "exclusions": ["changelog"]}`
	w := httptest.NewRecorder()
	f.h.ExtractURLs(w, httptest.NewRequest(http.MethodPost, "/extract-urls", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data source.ExtractResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"https://docs.ex.com/guide/setup"}, resp.Data.URLs)
	assert.Empty(t, resp.Data.Queued)
	f.enq.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestHandler_ExtractURLs_AddToQueue(t *testing.T) {
	f := newFixture()
	links := []string{"https://ex.com/a", "https://ex.com/b"}
	f.ex.On("ExtractLinks", mock.Anything, "https://ex.com/").Return(links, nil)
	f.enq.On("Enqueue", mock.Anything, links).Return([]queue.Item{
		{URL: "https://ex.com/a", Status: queue.StatusPending},
	}, nil)

	body := `{"url": "https://ex.com/", "add_to_queue": true}`
	w := httptest.NewRecorder()
	f.h.ExtractURLs(w, httptest.NewRequest(http.MethodPost, "/extract-urls", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data source.ExtractResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, links, resp.Data.URLs)
	require.Len(t, resp.Data.Queued, 1)
	f.enq.AssertExpectations(t)
}

func TestHandler_ExtractURLs_FetchError(t *testing.T) {
	f := newFixture()
	f.ex.On("ExtractLinks", mock.Anything, "https://down.ex.com").
		Return(nil, extract.FetchError("https://down.ex.com", errors.New("no such host")))

	w := httptest.NewRecorder()
	f.h.ExtractURLs(w, httptest.NewRequest(http.MethodPost, "/extract-urls", strings.NewReader(`{"url": "https://down.ex.com"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "FETCH_ERROR")
}

func TestHandler_ExtractURLs_MissingURL(t *testing.T) {
	f := newFixture()
	w := httptest.NewRecorder()
	f.h.ExtractURLs(w, httptest.NewRequest(http.MethodPost, "/extract-urls", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ExtractURLs_InvalidExclusion(t *testing.T) {
	f := newFixture()
	body := `{"url": "https://ex.com/", "exclusions": ["("]}`
	w := httptest.NewRecorder()
	f.h.ExtractURLs(w, httptest.NewRequest(http.MethodPost, "/extract-urls", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	f.ex.AssertNotCalled(t, "ExtractLinks", mock.Anything, mock.Anything)
}
