package core

import (
	"context"
	"farmvault/pkg/domain"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Files belonging to a producer are named "{type}_{producerID}", optionally
// followed by "_" or "." and a suffix, e.g. "financial_7_q1.pdf".

func fileGroup(fileType string, producerID uint64) string {
	return fileType + "_" + strconv.FormatUint(producerID, 10)
}

func inGroup(name, group string) bool {
	rest, ok := strings.CutPrefix(name, group)
	return ok && (rest == "" || rest[0] == '_' || rest[0] == '.')
}

// ownedByProducer matches any file type grouped under producerID.
func ownedByProducer(name string, producerID uint64) bool {
	fileType, _, ok := strings.Cut(name, "_")
	return ok && inGroup(name, fileGroup(fileType, producerID))
}

func validateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &domain.ValidationError{Entity: domain.EntityFile, Fields: []string{"name"}}
	}
	return nil
}

// UploadFile stores data under name, replacing any previous content.
func (s *Store) UploadFile(ctx context.Context, name string, data []byte) error {
	return s.run(ctx, "upload_file", func() error {
		if err := validateFileName(name); err != nil {
			return err
		}
		_, _, err := s.files.Insert(name, data)
		return err
	})
}

// GetFile returns a copy of the named file.
func (s *Store) GetFile(ctx context.Context, name string) ([]byte, error) {
	var out []byte
	err := s.run(ctx, "get_file", func() error {
		data, ok, err := s.files.Get(name)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Entity: domain.EntityFile, Key: name}
		}
		out = data
		return nil
	})
	return out, err
}

func (s *Store) collectFiles(match func(string) bool) ([]domain.StoredFile, error) {
	var out []domain.StoredFile
	for p, err := range s.files.All() {
		if err != nil {
			return nil, err
		}
		if match(p.Key) {
			out = append(out, domain.StoredFile{Name: p.Key, Data: p.Value})
		}
	}
	return out, nil
}

// ListFiles returns every stored file in name order.
func (s *Store) ListFiles(ctx context.Context) ([]domain.StoredFile, error) {
	var out []domain.StoredFile
	err := s.run(ctx, "list_files", func() error {
		var err error
		out, err = s.collectFiles(func(string) bool { return true })
		return err
	})
	return out, err
}

// ListFilesByType returns the files of one type grouped under a producer.
func (s *Store) ListFilesByType(ctx context.Context, producerID uint64, fileType string) ([]domain.StoredFile, error) {
	var out []domain.StoredFile
	err := s.run(ctx, "list_files_by_type", func() error {
		group := fileGroup(fileType, producerID)
		var err error
		out, err = s.collectFiles(func(name string) bool { return inGroup(name, group) })
		return err
	})
	return out, err
}

// DeleteFile removes a file. Missing files are reported as not found.
func (s *Store) DeleteFile(ctx context.Context, name string) error {
	return s.run(ctx, "delete_file", func() error {
		_, ok, err := s.files.Remove(name)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.NotFoundError{Entity: domain.EntityFile, Key: name}
		}
		return nil
	})
}

// AddImage stores an image for a producer and records its file name on the
// producer. The stored name is returned.
func (s *Store) AddImage(ctx context.Context, producerID uint64, name string, data []byte) (string, error) {
	key := fmt.Sprintf("%s_%s", fileGroup("image", producerID), name)
	err := s.run(ctx, "add_image", func() error {
		if err := validateFileName(name); err != nil {
			return err
		}
		if !s.producers.Contains(producerID) {
			return domain.NotFound(domain.EntityProducer, producerID)
		}
		if _, _, err := s.files.Insert(key, data); err != nil {
			return err
		}
		_, err := updateRecord(s.producers, domain.EntityProducer, producerID, func(p *domain.Producer) error {
			if !slices.Contains(p.Images, key) {
				p.Images = append(p.Images, key)
			}
			return nil
		})
		if err != nil {
			_, _, _ = s.files.Remove(key)
		}
		return err
	})
	return key, err
}

// removeProducerFiles drops the producer's images and every file grouped
// under its id.
func (s *Store) removeProducerFiles(p domain.Producer) error {
	doomed := slices.Clone(p.Images)
	for _, name := range s.files.Keys() {
		if ownedByProducer(name, p.ID) {
			doomed = append(doomed, name)
		}
	}
	for _, name := range doomed {
		if _, _, err := s.files.Remove(name); err != nil {
			return fmt.Errorf("remove file %s: %w", name, err)
		}
	}
	return nil
}
