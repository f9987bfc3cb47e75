// Package fs implements the blob port on an afero filesystem. Each blob is a
// file under the root with a JSON sidecar (name + ".meta") holding its
// content type, metadata and digest.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"farmvault/internal/blob/core"
	"fmt"
	"io"
	iofs "io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const metaSuffix = ".meta"

// Store implements core.Store. Writers are only serialised per key by the
// create-then-rename sequence.
type Store struct {
	fsys afero.Fs
	root string
}

// New returns a store rooted at root on fsys, creating the directory.
func New(fsys afero.Fs, root string) (*Store, error) {
	if root == "" {
		root = "blobdata"
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{fsys: fsys, root: root}, nil
}

// Driver implements core.Store.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// cleanKey refuses empty, absolute and escaping keys and normalises separators.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty blob key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	if strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("blob key %q uses reserved suffix", key)
	}
	return path.Clean(filepath.ToSlash(key)), nil
}

func (s *Store) paths(key string) (data, meta string, err error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	data = filepath.Join(s.root, filepath.FromSlash(k))
	return data, data + metaSuffix, nil
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (m sidecar) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.CreatedAt,
	}
}

// Put streams r to a temporary file, then renames it into place.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := s.fsys.Stat(dataPath); err == nil {
		return core.Info{}, core.Exists(key)
	}
	dir := filepath.Dir(dataPath)
	if err := s.fsys.MkdirAll(dir, 0o755); err != nil {
		return core.Info{}, err
	}
	tmp, err := afero.TempFile(s.fsys, dir, ".tmp-*")
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = s.fsys.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := s.fsys.Rename(tmp.Name(), dataPath); err != nil {
		return core.Info{}, err
	}
	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
	buf, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := afero.WriteFile(s.fsys, metaPath, buf, 0o644); err != nil {
		return core.Info{}, err
	}
	return meta.info(key), nil
}

func (s *Store) readMeta(key, metaPath string) (sidecar, error) {
	buf, err := afero.ReadFile(s.fsys, metaPath)
	if errors.Is(err, iofs.ErrNotExist) {
		return sidecar{}, core.NotFound(key)
	}
	if err != nil {
		return sidecar{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(buf, &meta); err != nil {
		return sidecar{}, fmt.Errorf("decode metadata for %s: %w", key, err)
	}
	return meta, nil
}

// Get implements core.Store.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := s.fsys.Open(dataPath)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, nil, core.NotFound(key)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	meta, err := s.readMeta(key, metaPath)
	if err != nil {
		_ = f.Close()
		return core.Info{}, nil, err
	}
	return meta.info(key), f, nil
}

// Head implements core.Store.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	_, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	meta, err := s.readMeta(key, metaPath)
	if err != nil {
		return core.Info{}, err
	}
	return meta.info(key), nil
}

// Delete implements core.Store.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if err := s.fsys.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = s.fsys.Remove(metaPath)
	return true, nil
}

// List walks the root for sidecars whose key has prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	err := afero.Walk(s.fsys, s.root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := s.readMeta(key, p)
		if err != nil {
			return err
		}
		out = append(out, meta.info(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns an unauthenticated local URL. Only GET is supported.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: "/" + path.Join(filepath.ToSlash(s.root), k)}).String(), nil
}
