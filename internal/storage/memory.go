// Package storage holds the submitted images. S3 is used in deployments and
// the in-memory store in development and tests.
package storage

import (
	"bytes"
	"context"
	"sync"

	"kycverify/internal/evidence"
	"kycverify/pkg/platform/sentinel"
)

// InMemory keeps objects in a map under a fixed bucket name.
type InMemory struct {
	bucket  string
	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	contentType string
	body        []byte
}

func NewInMemory(bucket string) *InMemory {
	return &InMemory{bucket: bucket, objects: make(map[string]object)}
}

func (s *InMemory) Put(_ context.Context, key, contentType string, body []byte) (evidence.ObjectRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{contentType: contentType, body: bytes.Clone(body)}
	return evidence.ObjectRef{Bucket: s.bucket, Key: key}, nil
}

func (s *InMemory) Get(_ context.Context, ref evidence.ObjectRef) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ref.Bucket != s.bucket {
		return nil, sentinel.ErrNotFound
	}
	o, ok := s.objects[ref.Key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return bytes.Clone(o.body), nil
}

// ContentType returns the stored content type of key.
func (s *InMemory) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key].contentType
}

func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
