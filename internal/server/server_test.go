package server

import (
	"cmp"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/omicsview/internal/client"
	"github.com/HerbHall/omicsview/internal/collection"
	"github.com/HerbHall/omicsview/internal/event"
	"github.com/HerbHall/omicsview/internal/fetch"
	"github.com/HerbHall/omicsview/internal/push"
	"github.com/HerbHall/omicsview/internal/query"
	"github.com/HerbHall/omicsview/internal/tables"
	"github.com/HerbHall/omicsview/internal/testutil"
	"github.com/HerbHall/omicsview/pkg/models"
)

type sample struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func sampleCollection() *Collection[sample] {
	rows := make([]sample, 0, 12)
	for i, n := range []string{"kiwi", "apple", "fig", "banana", "cherry", "date", "elder", "grape", "honeydew", "jackfruit", "lemon", "lime"} {
		kind := "fruit"
		if i%3 == 0 {
			kind = "citrus"
		}
		rows = append(rows, sample{Name: n, Kind: kind})
	}
	return NewCollection(Schema[sample]{
		Path: "/samples",
		Fields: map[string]Field[sample]{
			"name": {Compare: func(a, b sample) int { return cmp.Compare(a.Name, b.Name) }},
			"kind": {Match: func(s sample, v string) bool { return s.Kind == v }},
		},
		Search:          func(s sample, q string) bool { return strings.Contains(s.Name, q) },
		DefaultPageSize: 5,
	}, rows)
}

type listBody struct {
	Count    int      `json:"count"`
	Next     *string  `json:"next"`
	Previous *string  `json:"previous"`
	Results  []sample `json:"results"`
}

func list(t *testing.T, h http.Handler, rawQuery string) (*httptest.ResponseRecorder, listBody) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/samples?"+rawQuery, nil))
	var body listBody
	if w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	}
	return w, body
}

func names(rows []sample) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func TestCollection_Paging(t *testing.T) {
	c := sampleCollection()

	w, body := list(t, c, "ordering=name")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12, body.Count)
	assert.Equal(t, []string{"apple", "banana", "cherry", "date", "elder"}, names(body.Results))
	require.NotNil(t, body.Next)
	assert.Contains(t, *body.Next, "page=2")
	assert.Nil(t, body.Previous)

	_, body = list(t, c, "ordering=-name&page=3&page_size=5")
	assert.Equal(t, []string{"banana", "apple"}, names(body.Results))
	assert.Nil(t, body.Next)
	require.NotNil(t, body.Previous)
	assert.Contains(t, *body.Previous, "page=2")

	_, body = list(t, c, "page=9")
	assert.Equal(t, 12, body.Count, "past the end still reports the count")
	assert.Empty(t, body.Results)
	assert.NotNil(t, body.Results)
}

func TestCollection_SearchFiltersAndUnknownParams(t *testing.T) {
	c := sampleCollection()

	_, body := list(t, c, "search=l&ordering=name&page_size=10")
	assert.Equal(t, []string{"apple", "elder", "lemon", "lime"}, names(body.Results))

	_, body = list(t, c, "kind=citrus&ordering=name&biomarker_pk=3&ordering_typo=x")
	assert.Equal(t, 4, body.Count)
	for _, r := range body.Results {
		assert.Equal(t, "citrus", r.Kind)
	}

	_, body = list(t, c, "ordering=kind")
	assert.Equal(t, "kiwi", body.Results[0].Name, "unsortable field keeps insertion order")

	c.Truncate(2)
	assert.Equal(t, 2, c.Len())
	c.Replace([]sample{{Name: "only"}})
	_, body = list(t, c, "")
	assert.Equal(t, []string{"only"}, names(body.Results))
}

func TestCollection_BadParams(t *testing.T) {
	c := sampleCollection()
	for _, q := range []string{"page=abc", "page=0", "page_size=-1"} {
		t.Run(q, func(t *testing.T) {
			w, _ := list(t, c, q)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		})
	}
}

func TestNetworkHandler(t *testing.T) {
	genes := NewFixtures(60).Genes()
	require.NotEmpty(t, genes)
	n := NewNetworkHandler(genes)

	loose := n.Graph("BRCA1", 1)
	strict := n.Graph("BRCA1", 800)
	assert.True(t, loose.Nodes[0].Data.Query)
	assert.Len(t, loose.Edges, len(genes)-1, "every other gene passes the lowest threshold")
	assert.Less(t, len(strict.Edges), len(loose.Edges))
	for _, e := range strict.Edges {
		assert.GreaterOrEqual(t, e.Data.Weight, 0.8)
		assert.NotEmpty(t, e.Data.Group)
	}
	assert.Equal(t, strict, n.Graph("BRCA1", 800), "graphs are deterministic")

	for _, q := range []string{"", "gene_id=BRCA1&min_combined_score=0", "gene_id=BRCA1&min_combined_score=x"} {
		w := httptest.NewRecorder()
		n.ServeHTTP(w, httptest.NewRequest(http.MethodGet, PathNetwork+"?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w := httptest.NewRecorder()
	n.ServeHTTP(w, httptest.NewRequest(http.MethodGet, PathNetwork+"?gene_id=TP53", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data models.GeneNetwork `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, n.Graph("TP53", 500), env.Data)
}

func newStub(t *testing.T, rows int, opts ...Option) (*Server, *httptest.Server, Fixtures) {
	t.Helper()
	fx := NewFixtures(rows)
	s := New("", fx.Collections(), NewNetworkHandler(fx.Genes()), testutil.Logger(), opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Hub().Close()
		srv.Close()
	})
	return s, srv, fx
}

func TestServer_HealthAndRequestID(t *testing.T) {
	_, srv, _ := newStub(t, 10)

	req, err := http.NewRequest(http.MethodGet, srv.URL+PathHealth, nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get(HeaderRequestID))
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	resp2, err := http.Get(srv.URL + "/nowhere")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
	assert.NotEmpty(t, resp2.Header.Get(HeaderRequestID))
}

func TestServer_DescriptorRoundTrip(t *testing.T) {
	fx := NewFixtures(120)
	s := New("", fx.Collections(), nil, testutil.Logger())
	def := tables.Molecules(1)

	var mu sync.Mutex
	var parsed query.RequestDescriptor
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := query.Parse(r.URL.Query(), 10, "type")
		assert.NoError(t, err)
		mu.Lock()
		parsed = d
		mu.Unlock()
		s.Handler().ServeHTTP(w, r)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL)
	require.NoError(t, err)
	src := client.NewSource[models.BiomarkerMolecule](c, def.Config.Endpoint)

	desc, err := query.New(1, 3)
	require.NoError(t, err)
	desc = desc.WithSort("identifier", true).
		WithFilter("type", string(models.MoleculeMRNA)).
		WithExtraParam(tables.ParamBiomarker, "1")

	page, err := src.Fetch(context.Background(), desc)
	require.NoError(t, err)

	mu.Lock()
	assert.True(t, desc.Equal(parsed), "sent %s, parsed %s", desc, parsed)
	mu.Unlock()

	var want []string
	for _, m := range fx.Molecules {
		if m.Biomarker == 1 && m.Row.Type == models.MoleculeMRNA {
			want = append(want, m.Row.Identifier)
		}
	}
	slices.Sort(want)
	require.Equal(t, len(want), page.TotalCount)
	require.Len(t, page.Items, 3)
	for i, m := range page.Items {
		assert.Equal(t, want[i], m.Identifier)
		assert.Equal(t, models.MoleculeMRNA, m.Type)
	}
}

func TestServer_LatencyHonoursCancellation(t *testing.T) {
	_, srv, _ := newStub(t, 10, WithLatency(time.Hour))
	c, err := client.New(srv.URL)
	require.NoError(t, err)
	slot := fetch.NewSlot[models.Biomarker](client.NewSource[models.Biomarker](c, tables.Biomarkers().Config.Endpoint))

	desc, err := query.New(1, 10)
	require.NoError(t, err)
	first, err := slot.Begin(context.Background(), desc)
	require.NoError(t, err)
	second, err := slot.Begin(context.Background(), desc.WithPage(2))
	require.NoError(t, err)

	_, err = first.Wait(context.Background())
	assert.ErrorIs(t, err, fetch.ErrCancelled)

	slot.Close()
	_, err = second.Wait(context.Background())
	assert.True(t, fetch.IsCancelled(err))
}

func TestServer_RateLimit(t *testing.T) {
	_, srv, _ := newStub(t, 10, WithRateLimit(0.001, 1))
	path := srv.URL + tables.Biomarkers().Config.Endpoint

	resp, err := http.Get(path)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func touch(t *testing.T, srv *httptest.Server, topic string, params url.Values) (int, touchResponse) {
	t.Helper()
	u := srv.URL + strings.Replace(PathTouch, "{topic}", topic, 1)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	resp, err := http.Post(u, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body touchResponse
	if resp.StatusCode == http.StatusAccepted {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp.StatusCode, body
}

func TestServer_TouchValidatesKeep(t *testing.T) {
	_, srv, _ := newStub(t, 10)
	code, _ := touch(t, srv, push.TopicBiomarkers, url.Values{"keep": {"-1"}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := touch(t, srv, push.TopicBiomarkers, url.Values{"keep": {"4"}})
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, map[string]int{tables.Biomarkers().Config.Endpoint: 4}, body.Truncated)
	assert.Zero(t, body.Clients)
}

// A view over the stub follows a push signal: the collection shrinks, the
// silent refresh learns the new count and the view steps back to the last page.
func TestServer_PushClampsLiveView(t *testing.T) {
	s, srv, _ := newStub(t, 120)

	bus := event.NewBus(testutil.Logger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := push.NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http")+PathPush, bus,
		push.WithLogger(testutil.Logger()),
		push.WithReconnectDelay(10*time.Millisecond),
	)
	wsDone := make(chan error, 1)
	go func() { wsDone <- ws.Run(ctx) }()
	require.Eventually(t, func() bool { return s.Hub().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	c, err := client.New(srv.URL, client.WithLogger(testutil.Logger()))
	require.NoError(t, err)
	def := tables.Biomarkers()
	v, err := collection.New(def.Config, client.NewSource[models.Biomarker](c, def.Config.Endpoint),
		collection.WithLogger(testutil.Logger()),
		collection.WithBus(bus),
	)
	require.NoError(t, err)
	defer v.Close()
	require.NoError(t, v.Start(ctx))

	settled := func(page int) func() bool {
		return func() bool {
			st := v.Snapshot()
			return st.Resolved && !st.Loading && st.Descriptor.Page() == page
		}
	}
	require.Eventually(t, settled(1), 2*time.Second, 10*time.Millisecond)
	require.NoError(t, v.SetPage(5))
	require.Eventually(t, settled(5), 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 12, v.Snapshot().PageCount)

	code, body := touch(t, srv, push.TopicBiomarkers, url.Values{"keep": {"25"}})
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, 1, body.Clients)

	require.Eventually(t, func() bool {
		st := v.Snapshot()
		return st.Descriptor.Page() == 3 && st.Page.TotalCount == 25 && len(st.Page.Items) == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-wsDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("push client did not stop")
	}
}
