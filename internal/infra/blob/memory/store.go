// Package memory implements an in-process document store used by tests and
// the default service wiring.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"navisol/internal/blob/core"
)

type document struct {
	info core.Info
	data []byte
}

// Store keeps documents in a map guarded by a read/write mutex.
type Store struct {
	mu   sync.RWMutex
	docs map[string]document
	now  func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[string]document), now: func() time.Time { return time.Now().UTC() }}
}

// Driver reports core.DriverMemory.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a new document. Existing keys are never overwritten.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	clean, err := core.CleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, fmt.Errorf("read %s: %w", clean, err)
	}
	sum := sha256.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[clean]; exists {
		return core.Info{}, fmt.Errorf("%w: %s", core.ErrExists, clean)
	}
	info := core.Info{
		Key:          clean,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.now(),
	}
	s.docs[clean] = document{info: info, data: data}
	return copyInfo(info), nil
}

// Get returns the document metadata and a reader over a private copy of its bytes.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	doc, err := s.lookup(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	return copyInfo(doc.info), io.NopCloser(bytes.NewReader(bytes.Clone(doc.data))), nil
}

// Head returns document metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	doc, err := s.lookup(key)
	if err != nil {
		return core.Info{}, err
	}
	return copyInfo(doc.info), nil
}

// Delete removes the document and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	clean, err := core.CleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[clean]; !ok {
		return false, nil
	}
	delete(s.docs, clean)
	return true, nil
}

// List returns documents whose key starts with prefix, ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.docs))
	for key, doc := range s.docs {
		if strings.HasPrefix(key, prefix) {
			out = append(out, copyInfo(doc.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is not available for in-memory documents.
func (s *Store) PresignURL(context.Context, string, core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func (s *Store) lookup(key string) (document, error) {
	clean, err := core.CleanKey(key)
	if err != nil {
		return document{}, err
	}
	s.mu.RLock()
	doc, ok := s.docs[clean]
	s.mu.RUnlock()
	if !ok {
		return document{}, fmt.Errorf("%w: %s", core.ErrNotFound, clean)
	}
	return doc, nil
}

func copyInfo(info core.Info) core.Info {
	info.Metadata = core.CloneMetadata(info.Metadata)
	return info
}
