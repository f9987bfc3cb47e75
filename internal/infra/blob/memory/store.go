// Package memory implements the blob port in process memory.
package memory

import (
	"bytes"
	"context"
	"farmvault/internal/blob/core"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type object struct {
	info core.Info
	data []byte
}

// Store keeps blobs in a map guarded by a mutex.
type Store struct {
	mu   sync.RWMutex
	now  func() time.Time
	objs map[string]object
}

// New returns an empty store.
func New() *Store {
	return &Store{objs: make(map[string]object), now: func() time.Time { return time.Now().UTC() }}
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put implements core.Store.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; ok {
		return core.Info{}, core.Exists(key)
	}
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.now(),
	}
	s.objs[key] = object{info: info, data: data}
	return copyInfo(info), nil
}

// Get implements core.Store.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, core.NotFound(key)
	}
	return copyInfo(obj.info), io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Head implements core.Store.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, core.NotFound(key)
	}
	return copyInfo(obj.info), nil
}

// Delete implements core.Store.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}

// List implements core.Store.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Info
	for k, v := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyInfo(v.info))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL is not available in memory.
func (s *Store) PresignURL(context.Context, string, core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func copyInfo(in core.Info) core.Info {
	in.Metadata = core.CloneMetadata(in.Metadata)
	return in
}
