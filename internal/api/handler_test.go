package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions/trigram"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions/wordindex"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/query"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/health"
)

type server struct {
	reg   *indexer.Registry
	words *wordindex.Index
	mux   *http.ServeMux
}

func newServer(t *testing.T) *server {
	t.Helper()
	reg, err := indexer.NewRegistry(config.IndexerConfig{
		BufferingEnabled: true,
		ForwardBackend:   config.ForwardBackendBadger,
		MapWorkers:       2,
		OpenAttempts:     1,
	}, config.BadgerConfig{InMemory: true}, indexer.Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	ctx := context.Background()
	words, err := indexer.Register(ctx, reg, wordindex.Extension(false))
	require.NoError(t, err)
	grams, err := indexer.Register(ctx, reg, trigram.Extension())
	require.NoError(t, err)

	svc := query.NewService(reg, nil, time.Minute, nil)
	svc.Register(query.NewWords(words, false))
	svc.Register(query.NewTrigrams(grams))

	docs := map[index.InputID]extensions.Document{
		1: {Path: "main.go", Text: "func loadConfig() { parse() }"},
		2: {Path: "util.go", Text: "func parse() {}"},
	}
	var jobs []indexer.Job
	for id, doc := range docs {
		jobs = append(jobs,
			indexer.UpdateJob[extensions.Document](words, id, &doc),
			indexer.UpdateJob[extensions.Document](grams, id, &doc),
		)
	}
	ok, err := reg.Apply(ctx, jobs...)
	require.NoError(t, err)
	require.True(t, ok)

	targets := []consumer.Target{
		{Name: wordindex.Name, Updater: words},
		{Name: trigram.Name, Updater: grams},
	}
	mux := http.NewServeMux()
	New(reg, svc).WithIngest(func(ctx context.Context, event consumer.ContentEvent) error {
		return consumer.Apply(ctx, reg, targets, event)
	}).Routes(mux)
	return &server{reg: reg, words: words, mux: mux}
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestQuery(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/query", query.Request{Index: wordindex.Name, Keys: []string{"parse"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res query.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, []uint32{1, 2}, res.InputIDs)

	rec = s.do(t, http.MethodPost, "/api/v1/query", query.Request{Index: trigram.Name, Keys: []string{"loadconf"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, []uint32{1}, res.InputIDs)
}

func TestQueryErrors(t *testing.T) {
	s := newServer(t)

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/query", query.Request{Index: wordindex.Name})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/query", query.Request{Index: "nope", Keys: []string{"x"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndGetIndexes(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/indexes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Indexes []indexer.IndexInfo `json:"indexes"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Indexes, 2)
	assert.Equal(t, wordindex.Name, list.Indexes[0].Name)
	assert.Equal(t, "ok", list.Indexes[0].Status)

	rec = s.do(t, http.MethodGet, "/api/v1/indexes/"+trigram.Name, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info indexer.IndexInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, trigram.Version, info.Version)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/indexes/nope", nil).Code)
}

func TestFlushAndBuffering(t *testing.T) {
	s := newServer(t)
	require.Positive(t, s.words.BufferedKeys())

	rec := s.do(t, http.MethodPost, "/admin/indexes/"+wordindex.Name+"/flush", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.words.BufferedKeys())

	rec = s.do(t, http.MethodPost, "/admin/indexes/"+wordindex.Name+"/buffering", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"buffering":false}`, rec.Body.String())
	assert.False(t, s.words.IsBufferingEnabled())

	rec = s.do(t, http.MethodPost, "/admin/indexes/"+wordindex.Name+"/buffering", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/admin/flush", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/admin/indexes/nope/flush", nil).Code)
}

func TestRebuildLifecycle(t *testing.T) {
	s := newServer(t)
	check := IndexCheck(s.reg)
	assert.Equal(t, health.StatusUp, check(context.Background()).Status)

	rec := s.do(t, http.MethodPost, "/admin/indexes/"+wordindex.Name+"/rebuild", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	status, err := s.reg.Status(wordindex.Name)
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusRequiresRebuild, status)
	assert.Equal(t, health.StatusDegraded, check(context.Background()).Status)

	rec = s.do(t, http.MethodPost, "/api/v1/query", query.Request{Index: wordindex.Name, Keys: []string{"parse"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/admin/indexes/"+wordindex.Name+"/rebuild/complete", nil).Code)

	rec = s.do(t, http.MethodPost, "/admin/indexes/"+wordindex.Name+"/rebuild?start=true", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	status, err = s.reg.Status(wordindex.Name)
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusRebuildInProgress, status)

	rec = s.do(t, http.MethodPost, "/admin/indexes/"+wordindex.Name+"/rebuild/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, health.StatusUp, check(context.Background()).Status)

	rec = s.do(t, http.MethodPost, "/api/v1/query", query.Request{Index: wordindex.Name, Keys: []string{"parse"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var res query.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Empty(t, res.InputIDs, "a started rebuild clears the index")
}

func TestClearCaches(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/admin/indexes/"+wordindex.Name+"/caches/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":true}`, rec.Body.String())
}

func (s *server) search(t *testing.T, word string) []uint32 {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/query", query.Request{Index: wordindex.Name, Keys: []string{word}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res query.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res.InputIDs
}

func TestPutAndDeleteInput(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/inputs/3", extensions.Document{Path: "cache.go", Text: "func evict() { parse() }"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []uint32{3}, s.search(t, "evict"))
	assert.Equal(t, []uint32{1, 2, 3}, s.search(t, "parse"))

	rec = s.do(t, http.MethodDelete, "/api/v1/inputs/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.search(t, "evict"))
	assert.Equal(t, []uint32{1, 2}, s.search(t, "parse"))
}

func TestPutInputRejects(t *testing.T) {
	s := newServer(t)
	doc := extensions.Document{Path: "a.go", Text: "x"}

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/v1/inputs/0", doc).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/v1/inputs/abc", doc).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/v1/inputs/4294967296", doc).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/v1/inputs/5?index=nope", doc).Code)
}
