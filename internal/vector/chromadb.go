// File path: internal/vector/chromadb.go
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lfg-hq/codeindex/internal/common"
	"github.com/lfg-hq/codeindex/internal/common/telemetry"
)

// Document is one chunk projection stored in a collection.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
}

// SearchResult carries one query hit with its raw distance; similarity
// conversion is the caller's concern.
type SearchResult struct {
	ID       string
	Distance float64
	Content  string
	Metadata map[string]interface{}
}

// Store is the vector backend contract consumed by the indexer and the
// retrieval engine. Implementations are injected, never global.
type Store interface {
	Available() bool
	EnsureCollection(ctx context.Context, projectID string) error
	Upsert(ctx context.Context, projectID string, docs []Document, vectors [][]float32) error
	Query(ctx context.Context, projectID string, vector []float32, limit int, filter map[string]interface{}) []SearchResult
	DropCollection(ctx context.Context, projectID string) error
}

// Client talks to a Chroma server over its HTTP API. One collection per
// project, derived deterministically so re-runs reuse it.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport

	baseURL   string
	apiKey    string
	available bool

	// collection name -> server-side collection id
	collections map[string]string

	mu sync.RWMutex
}

var _ Store = (*Client)(nil)

func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New constructs a client and probes the server. An unreachable server
// yields a usable client in unavailable mode rather than an error, so
// the rest of the system can run lexical-only.
func New(ctx context.Context, cfg Config) (*Client, error) {
	baseURL := fmt.Sprintf("%s://%s:%s/api/v1", cfg.Scheme, cfg.Host, cfg.Port)
	logger := common.Logger()
	logger.Info("vector: initializing chromadb client",
		"host", cfg.Host, "port", cfg.Port, "timeout", cfg.Timeout)

	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		MaxConnsPerHost:     cfg.HTTPMaxConnsPerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}
	client := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		transport:   transport,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
		collections: make(map[string]string),
	}
	if err := client.probe(ctx); err != nil {
		logger.Warn("vector: chromadb unreachable, continuing without vector search", "error", err)
		return client, nil
	}
	client.available = true
	logger.Info("vector: chromadb connection established")
	return client, nil
}

func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// CollectionName derives the deterministic per-project collection name.
func CollectionName(projectID string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, strings.TrimSpace(projectID))
	return "codeindex-" + sanitized
}

// EnsureCollection finds the project's collection and creates it only
// when the lookup shows it does not exist yet.
func (c *Client) EnsureCollection(ctx context.Context, projectID string) error {
	_, err := c.collectionID(ctx, projectID)
	return err
}

// Upsert stores document projections with their vectors. A batch that is
// empty after cleaning is a success: there was nothing valid to store.
func (c *Client) Upsert(ctx context.Context, projectID string, docs []Document, vectors [][]float32) error {
	valid := make([]Document, 0, len(docs))
	validVectors := make([][]float32, 0, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" || i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		valid = append(valid, doc)
		validVectors = append(validVectors, vectors[i])
	}
	if len(valid) == 0 {
		return nil
	}

	id, err := c.collectionID(ctx, projectID)
	if err != nil {
		return err
	}
	ids := make([]string, len(valid))
	documents := make([]string, len(valid))
	metadatas := make([]map[string]interface{}, len(valid))
	for i, doc := range valid {
		ids[i] = doc.ID
		documents[i] = doc.Content
		metadatas[i] = doc.Metadata
	}
	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": validVectors,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, url.PathEscape(id))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			fallback := fmt.Sprintf("%s/collections/%s/add", c.baseURL, url.PathEscape(id))
			return c.doRequest(ctx, http.MethodPost, fallback, payload, nil)
		}
		return err
	}
	return nil
}

// Query runs a similarity search. Provider failures are logged and
// return an empty result set, never an error: callers treat "no results"
// and "backend down" uniformly.
func (c *Client) Query(ctx context.Context, projectID string, vector []float32, limit int, filter map[string]interface{}) []SearchResult {
	if limit <= 0 {
		limit = 5
	}
	start := time.Now()
	id, err := c.collectionID(ctx, projectID)
	if err != nil {
		telemetry.RecordVectorSearch(false, time.Since(start))
		common.Logger().Warn("vector: collection lookup failed",
			"project", projectID, "error", err)
		return nil
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        limit,
	}
	if len(filter) > 0 {
		body["where"] = filter
	}
	endpoint := fmt.Sprintf("%s/collections/%s/query", c.baseURL, url.PathEscape(id))
	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
		Documents [][]string                 `json:"documents"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		telemetry.RecordVectorSearch(false, time.Since(start))
		common.Logger().Warn("vector: query failed",
			"project", projectID, "error", err)
		return nil
	}
	telemetry.RecordVectorSearch(true, time.Since(start))
	if len(resp.IDs) == 0 {
		return nil
	}
	results := make([]SearchResult, 0, len(resp.IDs[0]))
	for idx, docID := range resp.IDs[0] {
		result := SearchResult{ID: docID}
		if len(resp.Distances) > 0 && idx < len(resp.Distances[0]) {
			result.Distance = resp.Distances[0][idx]
		}
		if len(resp.Documents) > 0 && idx < len(resp.Documents[0]) {
			result.Content = resp.Documents[0][idx]
		}
		if len(resp.Metadatas) > 0 && idx < len(resp.Metadatas[0]) {
			result.Metadata = resp.Metadatas[0][idx]
		}
		results = append(results, result)
	}
	return results
}

// DropCollection deletes the project's collection; a collection that
// never existed is not an error.
func (c *Client) DropCollection(ctx context.Context, projectID string) error {
	name := CollectionName(projectID)
	endpoint := fmt.Sprintf("%s/collections/%s", c.baseURL, url.PathEscape(name))
	err := c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	c.mu.Lock()
	delete(c.collections, name)
	c.mu.Unlock()
	return nil
}

func (c *Client) collectionID(ctx context.Context, projectID string) (string, error) {
	if c == nil {
		return "", errors.New("chromadb client not configured")
	}
	if !c.Available() {
		if err := c.probe(ctx); err != nil {
			return "", fmt.Errorf("chromadb unavailable: %w", err)
		}
		c.mu.Lock()
		c.available = true
		c.mu.Unlock()
	}
	name := CollectionName(projectID)
	c.mu.RLock()
	id, ok := c.collections[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}
	id, err := c.findCollection(ctx, name)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = c.createCollection(ctx, name)
		if err != nil {
			return "", err
		}
	}
	c.mu.Lock()
	c.collections[name] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) findCollection(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/collections?name=%s", c.baseURL, url.QueryEscape(name))
	var resp struct {
		Collections []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", nil
		}
		// Enumerate when the server does not support the name filter.
		endpoint = fmt.Sprintf("%s/collections", c.baseURL)
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return "", err
		}
	}
	for _, col := range resp.Collections {
		if strings.EqualFold(col.Name, name) {
			return col.ID, nil
		}
	}
	return "", nil
}

func (c *Client) createCollection(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{"name": name}
	endpoint := fmt.Sprintf("%s/collections", c.baseURL)
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		if errors.Is(err, errConflict) {
			return c.findCollection(ctx, name)
		}
		return "", err
	}
	return resp.ID, nil
}

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")
)

func (c *Client) probe(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/heartbeat", c.baseURL)
	return c.doRequest(ctx, http.MethodGet, endpoint, nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	if c == nil {
		return errors.New("chromadb client not configured")
	}
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode == http.StatusConflict:
		return errConflict
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chromadb %s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Close releases pooled transport resources.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}
