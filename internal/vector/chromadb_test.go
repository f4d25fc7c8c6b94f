// File path: internal/vector/chromadb_test.go
package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

type fakeChroma struct {
	mu          sync.Mutex
	collections map[string]string
	upserts     int
	queryFails  bool
	created     int
}

func newFakeChroma() *fakeChroma {
	return &fakeChroma{collections: make(map[string]string)}
}

func (f *fakeChroma) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"nanosecond heartbeat": 1}`))
	})
	mux.HandleFunc("/api/v1/collections", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			name := r.URL.Query().Get("name")
			type col struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			var cols []col
			for n, id := range f.collections {
				if name == "" || n == name {
					cols = append(cols, col{ID: id, Name: n})
				}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"collections": cols})
		case http.MethodPost:
			var payload struct {
				Name string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			if _, ok := f.collections[payload.Name]; ok {
				w.WriteHeader(http.StatusConflict)
				return
			}
			id := "col-" + payload.Name
			f.collections[payload.Name] = id
			f.created++
			json.NewEncoder(w).Encode(map[string]string{"id": id})
		}
	})
	mux.HandleFunc("/api/v1/collections/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/collections/")
		switch {
		case strings.HasSuffix(rest, "/upsert"):
			f.upserts++
			w.Write([]byte(`{}`))
		case strings.HasSuffix(rest, "/query"):
			if f.queryFails {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ids":       [][]string{{"chunk-1", "chunk-2"}},
				"distances": [][]float64{{0.1, 0.4}},
				"documents": [][]string{{"func A() {}", "func B() {}"}},
				"metadatas": [][]map[string]interface{}{{
					{"file_path": "a.go"}, {"file_path": "b.go"},
				}},
			})
		case r.Method == http.MethodDelete:
			name, _ := url.PathUnescape(rest)
			if _, ok := f.collections[name]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(f.collections, name)
			w.Write([]byte(`{}`))
		}
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakeChroma) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	client, err := New(context.Background(), Config{
		Host:   parsed.Hostname(),
		Port:   parsed.Port(),
		Scheme: "http",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if !client.Available() {
		t.Fatalf("client should be available against fake server")
	}
	return client
}

func TestCollectionNameIsDeterministicAndSanitized(t *testing.T) {
	first := CollectionName("Proj 42/Alpha")
	second := CollectionName("Proj 42/Alpha")
	if first != second {
		t.Fatalf("collection name must be deterministic: %q vs %q", first, second)
	}
	if first != "codeindex-proj-42-alpha" {
		t.Fatalf("unexpected sanitized name %q", first)
	}
}

func TestEnsureCollectionCreatesOnlyOnce(t *testing.T) {
	fake := newFakeChroma()
	client := newTestClient(t, fake)
	ctx := context.Background()

	if err := client.EnsureCollection(ctx, "proj-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := client.EnsureCollection(ctx, "proj-1"); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if fake.created != 1 {
		t.Fatalf("expected one collection creation, got %d", fake.created)
	}
}

func TestUpsertSoftFailsOnEmptyBatch(t *testing.T) {
	fake := newFakeChroma()
	client := newTestClient(t, fake)

	docs := []Document{
		{ID: "c1", Content: "   "},
		{ID: "c2", Content: "func X() {}"},
	}
	// Second doc has no vector, so nothing valid remains.
	if err := client.Upsert(context.Background(), "proj-1", docs, [][]float32{nil, nil}); err != nil {
		t.Fatalf("empty batch must succeed, got %v", err)
	}
	if fake.upserts != 0 {
		t.Fatalf("no request should be sent for an empty batch")
	}
}

func TestUpsertSendsValidDocuments(t *testing.T) {
	fake := newFakeChroma()
	client := newTestClient(t, fake)

	docs := []Document{
		{ID: "c1", Content: "func X() {}", Metadata: map[string]interface{}{"file_path": "x.go"}},
	}
	if err := client.Upsert(context.Background(), "proj-1", docs, [][]float32{{0.1, 0.2}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if fake.upserts != 1 {
		t.Fatalf("expected one upsert request, got %d", fake.upserts)
	}
}

func TestQueryReturnsResultsWithDistances(t *testing.T) {
	fake := newFakeChroma()
	client := newTestClient(t, fake)

	results := client.Query(context.Background(), "proj-1", []float32{0.1}, 5, nil)
	if len(results) != 2 {
		t.Fatalf("expected two hits, got %d", len(results))
	}
	if results[0].ID != "chunk-1" || results[0].Distance != 0.1 {
		t.Fatalf("unexpected first hit %+v", results[0])
	}
	if results[0].Metadata["file_path"] != "a.go" {
		t.Fatalf("metadata not decoded: %+v", results[0])
	}
}

func TestQueryReturnsEmptyOnBackendFailure(t *testing.T) {
	fake := newFakeChroma()
	client := newTestClient(t, fake)
	if err := client.EnsureCollection(context.Background(), "proj-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	fake.queryFails = true
	results := client.Query(context.Background(), "proj-1", []float32{0.1}, 5, nil)
	if len(results) != 0 {
		t.Fatalf("backend failure must return empty results, got %d", len(results))
	}
}

func TestDropCollectionTolerantOfMissing(t *testing.T) {
	fake := newFakeChroma()
	client := newTestClient(t, fake)
	ctx := context.Background()

	if err := client.DropCollection(ctx, "never-created"); err != nil {
		t.Fatalf("dropping a missing collection must succeed, got %v", err)
	}
	if err := client.EnsureCollection(ctx, "proj-1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := client.DropCollection(ctx, "proj-1"); err != nil {
		t.Fatalf("drop: %v", err)
	}
}

func TestUnreachableServerYieldsUnavailableClient(t *testing.T) {
	client, err := New(context.Background(), Config{
		Host: "127.0.0.1", Port: "1", Scheme: "http",
	})
	if err != nil {
		t.Fatalf("unreachable server must not error at construction, got %v", err)
	}
	if client.Available() {
		t.Fatalf("client should report unavailable")
	}
	results := client.Query(context.Background(), "proj-1", []float32{0.1}, 5, nil)
	if len(results) != 0 {
		t.Fatalf("unavailable client must return empty results")
	}
}
