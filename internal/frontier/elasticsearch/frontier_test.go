package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/imagecrawler/internal/crawler"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// mockTransport implements http.RoundTripper for mocking Elasticsearch responses.
type mockTransport struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(req recordedRequest) (int, string)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	rec := recordedRequest{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery, Body: string(body)}
	m.mu.Lock()
	m.requests = append(m.requests, rec)
	m.mu.Unlock()

	status, payload := http.StatusOK, `{}`
	if m.respond != nil {
		status, payload = m.respond(rec)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(payload)),
		Header: http.Header{
			"X-Elastic-Product": []string{"Elasticsearch"},
			"Content-Type":      []string{"application/json"},
		},
	}, nil
}

func (m *mockTransport) last() recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func newMockFrontier(t *testing.T, respond func(recordedRequest) (int, string)) (*Frontier, *mockTransport) {
	t.Helper()
	transport := &mockTransport{respond: respond}
	client, err := es.NewClient(es.Config{Transport: transport})
	require.NoError(t, err)
	return NewWithClient(client, "run1_"), transport
}

func TestNewRequiresAddresses(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureIndicesCreatesMissing(t *testing.T) {
	t.Parallel()

	f, transport := newMockFrontier(t, func(req recordedRequest) (int, string) {
		if req.Method == http.MethodHead {
			if req.Path == "/run1_url" {
				return http.StatusOK, ``
			}
			return http.StatusNotFound, ``
		}
		return http.StatusOK, `{"acknowledged":true}`
	})

	require.NoError(t, f.EnsureIndices(context.Background()))

	var created []string
	for _, req := range transport.requests {
		if req.Method == http.MethodPut {
			created = append(created, req.Path)
			assert.Contains(t, req.Body, `"mappings"`)
		}
	}
	assert.ElementsMatch(t, []string{"/run1_pic_url", "/run1_stored_pic"}, created)
}

func TestEnqueueSendsBulkCreate(t *testing.T) {
	t.Parallel()

	f, transport := newMockFrontier(t, func(_ recordedRequest) (int, string) {
		return http.StatusOK, `{"errors":true,"items":[{"create":{"status":201}},{"create":{"status":409,"error":{"type":"version_conflict_engine_exception"}}}]}`
	})

	err := f.EnqueuePictures(context.Background(), []string{"http://x.test/1.png", "http://x.test/2.png", "http://x.test/1.png"})
	require.NoError(t, err)

	req := transport.last()
	assert.Equal(t, "/_bulk", req.Path)
	assert.Contains(t, req.Query, "refresh=true")
	lines := strings.Split(strings.TrimSpace(req.Body), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"create"`)
	assert.Contains(t, lines[0], `"_index":"run1_pic_url"`)
	assert.Contains(t, lines[0], docID("http://x.test/1.png"))
	assert.Contains(t, lines[1], `"visited":false`)
}

func TestEnqueueReportsItemFailures(t *testing.T) {
	t.Parallel()

	f, _ := newMockFrontier(t, func(_ recordedRequest) (int, string) {
		return http.StatusOK, `{"errors":true,"items":[{"create":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}]}`
	})

	err := f.EnqueueContent(context.Background(), []string{"http://x.test/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestNextPicturesQueriesUnvisited(t *testing.T) {
	t.Parallel()

	f, transport := newMockFrontier(t, func(_ recordedRequest) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[{"_source":{"location":"http://x.test/1.png"}},{"_source":{"location":"http://x.test/2.png"}}]}}`
	})

	urls, err := f.NextPictures(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://x.test/1.png", "http://x.test/2.png"}, urls)

	req := transport.last()
	assert.Equal(t, "/run1_pic_url/_search", req.Path)
	var query map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &query))
	assert.EqualValues(t, 25, query["size"])
	assert.Equal(t, map[string]any{"term": map[string]any{"visited": false}}, query["query"])
}

func TestNextContentEmpty(t *testing.T) {
	t.Parallel()

	f, _ := newMockFrontier(t, func(_ recordedRequest) (int, string) {
		return http.StatusOK, `{"hits":{"hits":[]}}`
	})

	_, ok, err := f.NextContent(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkUsesNoopScript(t *testing.T) {
	t.Parallel()

	f, transport := newMockFrontier(t, func(_ recordedRequest) (int, string) {
		return http.StatusOK, `{"result":"noop"}`
	})

	require.NoError(t, f.MarkPictureVisited(context.Background(), "http://x.test/p.png", "HTTP_STATUS:404"))

	req := transport.last()
	assert.Equal(t, "/run1_pic_url/_update/"+docID("http://x.test/p.png"), req.Path)
	assert.Contains(t, req.Body, "ctx.op = 'noop'")
	assert.Contains(t, req.Body, `"error":"HTTP_STATUS:404"`)
}

func TestMarkUnknownURLIsNoop(t *testing.T) {
	t.Parallel()

	f, transport := newMockFrontier(t, func(_ recordedRequest) (int, string) {
		return http.StatusNotFound, `{"error":{"type":"document_missing_exception"}}`
	})

	require.NoError(t, f.MarkContentVisited(context.Background(), "http://x.test/", ""))
	assert.Contains(t, transport.last().Body, `"error":null`)
}

func TestRecordStoredPictureConflictIsNoop(t *testing.T) {
	t.Parallel()

	f, transport := newMockFrontier(t, func(_ recordedRequest) (int, string) {
		return http.StatusConflict, `{"error":{"type":"version_conflict_engine_exception"}}`
	})

	pic := crawler.StoredPicture{ContentHash: "0123456789abcde", SourceURL: "http://x.test/p.png", RelativePath: "01/23/45/0123456789abcde.png"}
	require.NoError(t, f.RecordStoredPicture(context.Background(), pic))
	assert.Equal(t, "/run1_stored_pic/_create/0123456789abcde", transport.last().Path)
}

func TestLookupDecodesDocument(t *testing.T) {
	t.Parallel()

	f, _ := newMockFrontier(t, func(req recordedRequest) (int, string) {
		if strings.Contains(req.Path, docID("http://x.test/missing")) {
			return http.StatusNotFound, `{"found":false}`
		}
		return http.StatusOK, `{"_source":{"location":"http://x.test/p.png","visited":true,"error":"TIMEOUT"}}`
	})

	rec, found, err := f.Lookup(context.Background(), crawler.KindPicture, "http://x.test/p.png")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, crawler.URLRecord{Location: "http://x.test/p.png", Visited: true, Error: "TIMEOUT"}, rec)

	_, found, err = f.Lookup(context.Background(), crawler.KindPicture, "http://x.test/missing")
	require.NoError(t, err)
	assert.False(t, found)
}
