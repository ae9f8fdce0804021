package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and by the local development
// mode. Presigned URLs use the mem:// scheme and carry no signature.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte // "<bucket>/<key>" -> content
	bucket  string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store with the given default bucket.
func NewMemory(bucket string) *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		bucket:  bucket,
	}
}

func (m *Memory) path(bucket, key string) string { return bucket + "/" + key }

func (m *Memory) Put(_ context.Context, key string, body io.Reader, opts ...Option) error {
	bucket := applyOptions(m.bucket, opts)
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[m.path(bucket, key)] = data
	return nil
}

func (m *Memory) Get(_ context.Context, key string, opts ...Option) (io.ReadCloser, error) {
	bucket := applyOptions(m.bucket, opts)
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[m.path(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("storage: get %s/%s: not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Delete(_ context.Context, key string, opts ...Option) error {
	bucket := applyOptions(m.bucket, opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, m.path(bucket, key))
	return nil
}

func (m *Memory) List(_ context.Context, prefix string, opts ...Option) ([]ObjectInfo, error) {
	bucket := applyOptions(m.bucket, opts)
	full := m.path(bucket, prefix)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var infos []ObjectInfo
	for p, data := range m.objects {
		if strings.HasPrefix(p, full) {
			infos = append(infos, ObjectInfo{
				Key:  strings.TrimPrefix(p, bucket+"/"),
				Size: int64(len(data)),
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *Memory) PresignGet(_ context.Context, key string, _ time.Duration, opts ...Option) (string, error) {
	bucket := applyOptions(m.bucket, opts)
	return "mem://" + m.path(bucket, key), nil
}

func (m *Memory) PresignPut(_ context.Context, key string, _ time.Duration, opts ...Option) (string, error) {
	bucket := applyOptions(m.bucket, opts)
	return "mem://" + m.path(bucket, key), nil
}

// Exists reports whether an object is present; test helper.
func (m *Memory) Exists(bucket, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[m.path(bucket, key)]
	return ok
}
