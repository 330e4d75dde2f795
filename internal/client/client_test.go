package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/HerbHall/omicsview/internal/fetch"
	"github.com/HerbHall/omicsview/internal/query"
	"github.com/HerbHall/omicsview/internal/testutil"
	"github.com/HerbHall/omicsview/pkg/models"
)

func newClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithLogger(testutil.Logger())}, opts...)
	c, err := New(srv.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New("ftp://example.org")
	assert.Error(t, err)
	_, err = New("://nope")
	assert.Error(t, err)

	c, err := New("http://api.test///")
	require.NoError(t, err)
	assert.Equal(t, "http://api.test", c.BaseURL())
}

func TestHTTPSource_FetchResultsEnvelope(t *testing.T) {
	var got url.Values
	var headers http.Header
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/biomarkers/molecules/", r.URL.Path)
		got = r.URL.Query()
		headers = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 42, "next": null, "results": [{"id": 1, "identifier": "BRCA1", "type": "MRNA"}]}`))
	})

	desc, err := query.New(2, 25)
	require.NoError(t, err)
	desc = desc.WithSort("identifier", false).
		WithSearch("brca").
		WithFilter("type", string(models.MoleculeMRNA)).
		WithExtraParam("biomarker_pk", "7")

	src := NewSource[models.BiomarkerMolecule](c, "/api/biomarkers/molecules/")
	page, err := src.Fetch(context.Background(), desc)
	require.NoError(t, err)

	assert.Equal(t, 42, page.TotalCount)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "BRCA1", page.Items[0].Identifier)
	assert.Equal(t, models.MoleculeMRNA, page.Items[0].Type)

	assert.Equal(t, "2", got.Get("page"))
	assert.Equal(t, "25", got.Get("page_size"))
	assert.Equal(t, "-identifier", got.Get("ordering"))
	assert.Equal(t, "brca", got.Get("search"))
	assert.Equal(t, "MRNA", got.Get("type"))
	assert.Equal(t, "7", got.Get("biomarker_pk"))

	assert.True(t, strings.HasPrefix(headers.Get("User-Agent"), "omicsview/"))
	_, err = uuid.Parse(headers.Get(HeaderRequestID))
	assert.NoError(t, err, "request id must be a uuid")
}

func TestHTTPSource_FetchDataEnvelope(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data": [1, 2, 3], "count": 3}`))
	})
	desc, _ := query.New(1, 10)
	page, err := NewSource[int](c, "numbers").Fetch(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, page.Items)
	assert.Equal(t, 3, page.TotalCount)
}

func TestHTTPSource_EmptyResultsAreNotNil(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"count": 0}`))
	})
	desc, _ := query.New(1, 10)
	page, err := NewSource[int](c, "numbers").Fetch(context.Background(), desc)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.True(t, page.Empty())
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantDetail string
	}{
		{
			name: "problem json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"type":"about:blank","title":"Not Found","status":404,"detail":"biomarker 7 not found"}`))
			},
			wantStatus: http.StatusNotFound,
			wantDetail: "biomarker 7 not found",
		},
		{
			name: "plain text",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Internal Server Error",
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"count": 3, "results": [`))
			},
		},
		{
			name: "missing count",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"results": []}`))
			},
		},
		{
			name: "negative count",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"count": -3, "results": []}`))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, tt.handler)
			desc, _ := query.New(1, 10)
			_, err := NewSource[int](c, "numbers").Fetch(context.Background(), desc)

			var se *fetch.ServerError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantStatus, se.StatusCode)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, se.Detail)
			}
		})
	}
}

func TestHTTPSource_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(base)
	require.NoError(t, err)
	desc, _ := query.New(1, 10)
	_, err = NewSource[int](c, "numbers").Fetch(context.Background(), desc)

	var ne *fetch.NetworkError
	assert.ErrorAs(t, err, &ne)
}

func TestHTTPSource_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		desc, _ := query.New(1, 10)
		_, err := NewSource[int](c, "numbers").Fetch(ctx, desc)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, fetch.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
}

func TestClient_LimiterAbortsOnCancel(t *testing.T) {
	var hits atomic.Int32
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}, WithLimiter(limiter))

	var out map[string]any
	require.NoError(t, c.Get(context.Background(), "health", nil, &out))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Get(ctx, "health", nil, &out)
	assert.ErrorIs(t, err, fetch.ErrCancelled)
	assert.Equal(t, int32(1), hits.Load(), "throttled request must never reach the server")
}

func TestClient_GetDecodes(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BRCA1", r.URL.Query().Get("gene_id"))
		_, _ = w.Write([]byte(`{"nodes":[{"data":{"id":"1","name":"BRCA1"}}],"edges":[]}`))
	})
	var g models.GeneNetwork
	err := c.Get(context.Background(), "/api/gene-associations-network", url.Values{"gene_id": {"BRCA1"}}, &g)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "BRCA1", g.Nodes[0].Data.Name)
}

func TestWithRate(t *testing.T) {
	c, err := New("http://api.test", WithRate(0, 0))
	require.NoError(t, err)
	assert.Nil(t, c.limiter)

	c, err = New("http://api.test", WithRate(5, 0))
	require.NoError(t, err)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 1, c.limiter.Burst())
}
