package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/coach-dss/coach/internal/errors"
)

// ErrNotFound is returned when no document is published for a case.
var ErrNotFound = errors.New("not found")

// Fact is one published statement, each term in N-Triples notation.
type Fact struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Document is a published case.
type Document struct {
	CaseID      string    `json:"case_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Content     string    `json:"content"`
	Facts       []Fact    `json:"facts"`
}

// Summary describes a document without its content.
type Summary struct {
	CaseID      string    `json:"case_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Facts       int       `json:"facts"`
}

func (d Document) Summary() Summary {
	return Summary{CaseID: d.CaseID, Title: d.Title, PublishedAt: d.PublishedAt, Facts: len(d.Facts)}
}

// Store persists published documents keyed by case id.
type Store interface {
	// Put stores doc, replacing any earlier publication of the same case.
	Put(ctx context.Context, doc Document) error
	Get(ctx context.Context, caseID string) (Document, error)
	// List returns every document ordered by case id.
	List(ctx context.Context) ([]Document, error)
	Delete(ctx context.Context, caseID string) error
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Memory
// =============================================================================

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (m *MemoryStore) Put(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.CaseID] = doc
	return nil
}

func (m *MemoryStore) Get(_ context.Context, caseID string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[caseID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (m *MemoryStore) List(context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	sortDocuments(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[caseID]; !ok {
		return ErrNotFound
	}
	delete(m.docs, caseID)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

// =============================================================================
// Redis
// =============================================================================

// RedisStore keeps documents as JSON values of a single Redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the hash holding the documents.
	Key string
}

// NewRedisStore connects to Redis.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	if cfg.Key == "" {
		cfg.Key = "coach:knowledge"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key: cfg.Key,
	}
}

func (r *RedisStore) Put(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key, doc.CaseID, data).Err()
}

func (r *RedisStore) Get(ctx context.Context, caseID string) (Document, error) {
	data, err := r.client.HGet(ctx, r.key, caseID).Bytes()
	if errors.IsError(err, redis.Nil) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", caseID, err)
	}
	return doc, nil
}

func (r *RedisStore) List(ctx context.Context) ([]Document, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(all))
	for id, data := range all {
		var doc Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		out = append(out, doc)
	}
	sortDocuments(out)
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, caseID string) error {
	n, err := r.client.HDel(ctx, r.key, caseID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func sortDocuments(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].CaseID < docs[j].CaseID })
}
