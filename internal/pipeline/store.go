package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/xmlgest/internal/convert"
	"github.com/dgallion1/xmlgest/internal/doctree"
	"github.com/dgallion1/xmlgest/internal/pathstore"
)

// ErrNotFound is returned for unknown documents.
var ErrNotFound = errors.New("document not found")

// DocumentRecord is one stored version of an ingested document.
type DocumentRecord struct {
	DocID       string            `json:"doc_id"`
	UserID      string            `json:"user_id"`
	Version     string            `json:"version"`
	Filename    string            `json:"filename"`
	Title       string            `json:"title"`
	ContentHash string            `json:"content_hash"`
	CreatedAt   time.Time         `json:"created_at"`
	Report      convert.Report    `json:"report"`
	Document    *doctree.Document `json:"document"`
}

// Summary drops the document body.
func (r *DocumentRecord) Summary() DocumentSummary {
	return DocumentSummary{
		DocID:       r.DocID,
		Version:     r.Version,
		Filename:    r.Filename,
		Title:       r.Title,
		ContentHash: r.ContentHash,
		CreatedAt:   r.CreatedAt,
		Units:       r.Report.Units,
		Elements:    r.Report.Elements,
		Segments:    r.Report.Segments,
	}
}

// DocumentSummary is the listing form of a record.
type DocumentSummary struct {
	DocID       string    `json:"doc_id"`
	Version     string    `json:"version"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	Units       int       `json:"units"`
	Elements    int       `json:"elements"`
	Segments    int       `json:"segments"`
}

// DocumentStore keeps ingested documents per user. Put replaces the latest
// version of a document.
type DocumentStore interface {
	Put(ctx context.Context, rec *DocumentRecord) error
	Get(ctx context.Context, userID, docID string) (*DocumentRecord, error)
	List(ctx context.Context, userID string, limit int) ([]DocumentSummary, error)
	Delete(ctx context.Context, userID, docID string) error
	// FindByHash returns the id of a document with the given content hash.
	FindByHash(ctx context.Context, userID, hash string) (string, bool, error)
}

// MemoryStore is a DocumentStore held in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]*DocumentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]*DocumentRecord)}
}

func (m *MemoryStore) Put(_ context.Context, rec *DocumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.docs[rec.UserID]
	if user == nil {
		user = make(map[string]*DocumentRecord)
		m.docs[rec.UserID] = user
	}
	user[rec.DocID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, userID, docID string) (*DocumentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.docs[userID][docID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context, userID string, limit int) ([]DocumentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DocumentSummary, 0, len(m.docs[userID]))
	for _, rec := range m.docs[userID] {
		out = append(out, rec.Summary())
	}
	sortSummaries(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, userID, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[userID][docID]; !ok {
		return ErrNotFound
	}
	delete(m.docs[userID], docID)
	return nil
}

func (m *MemoryStore) FindByHash(_ context.Context, userID, hash string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, rec := range m.docs[userID] {
		if rec.ContentHash == hash {
			return id, true, nil
		}
	}
	return "", false, nil
}

// sortSummaries orders newest first; versions are ULIDs so they sort by
// creation time.
func sortSummaries(s []DocumentSummary) {
	sort.Slice(s, func(i, j int) bool { return s[i].Version > s[j].Version })
}

// PathstoreStore keeps documents in pathstore under
//
//	xmlgest/users/{user}/documents/{doc}/meta
//	xmlgest/users/{user}/documents/{doc}/versions/{version}
//	xmlgest/users/{user}/by_hash/{hash}/{doc}
type PathstoreStore struct {
	ps *pathstore.Client
}

func NewPathstoreStore(ps *pathstore.Client) *PathstoreStore {
	return &PathstoreStore{ps: ps}
}

func userPrefix(userID string) string { return "xmlgest/users/" + userID }

func docPrefix(userID, docID string) string {
	return userPrefix(userID) + "/documents/" + docID
}

func (p *PathstoreStore) Put(ctx context.Context, rec *DocumentRecord) error {
	prefix := docPrefix(rec.UserID, rec.DocID)
	source := "xmlgest:" + rec.DocID

	// The version body goes first so meta never points at a missing version.
	if err := p.ps.PutNode(ctx, prefix+"/versions/"+rec.Version, pathstore.NodeRequest{
		Value:      rec,
		MemoryType: "document",
		Salience:   0.5,
		Source:     source,
	}); err != nil {
		return fmt.Errorf("store version: %w", err)
	}
	if err := p.ps.PutNode(ctx, prefix+"/meta", pathstore.NodeRequest{
		Value:      rec.Summary(),
		MemoryType: "metacognitive",
		Salience:   0.5,
		Source:     source,
	}); err != nil {
		return fmt.Errorf("store meta: %w", err)
	}
	hashPath := fmt.Sprintf("%s/by_hash/%s/%s", userPrefix(rec.UserID), rec.ContentHash, rec.DocID)
	if err := p.ps.PutNode(ctx, hashPath, pathstore.NodeRequest{
		Value: map[string]any{
			"filename":   rec.Filename,
			"version":    rec.Version,
			"created_at": rec.CreatedAt.Format(time.RFC3339),
		},
		MemoryType: "metacognitive",
		Salience:   0.1,
		Source:     source,
	}); err != nil {
		return fmt.Errorf("store hash index: %w", err)
	}
	return nil
}

func (p *PathstoreStore) meta(ctx context.Context, userID, docID string) (*DocumentSummary, error) {
	node, err := p.ps.GetNode(ctx, docPrefix(userID, docID)+"/meta")
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNotFound
	}
	var s DocumentSummary
	if err := json.Unmarshal(node.Value, &s); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return &s, nil
}

func (p *PathstoreStore) Get(ctx context.Context, userID, docID string) (*DocumentRecord, error) {
	meta, err := p.meta(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	node, err := p.ps.GetNode(ctx, docPrefix(userID, docID)+"/versions/"+meta.Version)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, ErrNotFound
	}
	var rec DocumentRecord
	if err := json.Unmarshal(node.Value, &rec); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &rec, nil
}

func (p *PathstoreStore) List(ctx context.Context, userID string, limit int) ([]DocumentSummary, error) {
	nodes, err := p.ps.ListChildren(ctx, userPrefix(userID)+"/documents", 0)
	if err != nil {
		return nil, err
	}
	var out []DocumentSummary
	for _, n := range nodes {
		if lastSegment(n.Key) != "meta" {
			continue
		}
		var s DocumentSummary
		if err := json.Unmarshal(n.Value, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	sortSummaries(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *PathstoreStore) Delete(ctx context.Context, userID, docID string) error {
	meta, err := p.meta(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := p.ps.DeleteNode(ctx, docPrefix(userID, docID), true); err != nil {
		return err
	}
	hashPath := fmt.Sprintf("%s/by_hash/%s/%s", userPrefix(userID), meta.ContentHash, docID)
	return p.ps.DeleteNode(ctx, hashPath, false)
}

func (p *PathstoreStore) FindByHash(ctx context.Context, userID, hash string) (string, bool, error) {
	children, err := p.ps.ListChildren(ctx, userPrefix(userID)+"/by_hash/"+hash, 1)
	if err != nil {
		return "", false, err
	}
	if len(children) == 0 {
		return "", false, nil
	}
	return lastSegment(children[0].Key), true, nil
}

// lastSegment returns the final component of a pathstore key, which may use
// either '/' or '.' as the separator.
func lastSegment(key string) string {
	if i := strings.LastIndexAny(key, "/."); i >= 0 {
		return key[i+1:]
	}
	return key
}
