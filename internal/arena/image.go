package arena

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
)

var imageMagic = [8]byte{'F', 'V', 'A', 'R', 'E', 'N', 'A', '1'}

// maxHeaderSize guards against allocating for a garbage header length.
const maxHeaderSize = 16 << 20

type imageHeader struct {
	BucketSize int                         `cbor:"1,keyasint"`
	Buckets    int                         `cbor:"2,keyasint"`
	Partitions map[PartitionID]imageExtent `cbor:"3,keyasint"`
}

type imageExtent struct {
	Length  int64    `cbor:"1,keyasint"`
	Buckets []uint32 `cbor:"2,keyasint"`
}

// WriteTo serializes the partition table followed by the raw arena bytes.
func (m *Manager) WriteTo(w io.Writer) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hdr := imageHeader{
		BucketSize: m.bucketSize,
		Buckets:    len(m.mem) / m.bucketSize,
		Partitions: make(map[PartitionID]imageExtent, len(m.table)),
	}
	for id, ext := range m.table {
		hdr.Partitions[id] = imageExtent{Length: ext.length, Buckets: append([]uint32(nil), ext.buckets...)}
	}
	raw, err := cbor.Marshal(hdr)
	if err != nil {
		return 0, fmt.Errorf("encode arena header: %w", err)
	}
	var written int64
	var lenBuf [binary.MaxVarintLen64]byte
	for _, chunk := range [][]byte{imageMagic[:], lenBuf[:binary.PutUvarint(lenBuf[:], uint64(len(raw)))], raw, m.mem} {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReadFrom rebuilds a Manager from an image produced by WriteTo. The bucket
// size stored in the image wins over opts.BucketSize.
func ReadFrom(r io.Reader, opts Options) (*Manager, error) {
	br := bufio.NewReader(r)
	var magic [8]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("read arena magic: %w", err)
	}
	if magic != imageMagic {
		return nil, errors.New("arena: not an arena image")
	}
	size, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("read arena header length: %w", err)
	}
	if size > maxHeaderSize {
		return nil, fmt.Errorf("arena: header length %d too large", size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("read arena header: %w", err)
	}
	var hdr imageHeader
	if err := cbor.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("decode arena header: %w", err)
	}
	if hdr.BucketSize <= 0 {
		return nil, fmt.Errorf("arena: invalid bucket size %d", hdr.BucketSize)
	}
	opts.BucketSize = hdr.BucketSize
	m := New(opts)
	m.mem = make([]byte, hdr.Buckets*hdr.BucketSize)
	if _, err := io.ReadFull(br, m.mem); err != nil {
		return nil, fmt.Errorf("read arena body: %w", err)
	}
	for id, ext := range hdr.Partitions {
		if int64(len(ext.Buckets))*int64(hdr.BucketSize) < ext.Length {
			return nil, fmt.Errorf("arena: partition %d length %d exceeds its buckets", id, ext.Length)
		}
		for _, b := range ext.Buckets {
			if int(b) >= hdr.Buckets {
				return nil, fmt.Errorf("arena: partition %d references bucket %d of %d", id, b, hdr.Buckets)
			}
		}
		m.table[id] = &extent{buckets: ext.Buckets, length: ext.Length}
	}
	return m, nil
}

// SaveFile writes the arena image to path through a temporary file and rename.
func (m *Manager) SaveFile(fsys afero.Fs, path string) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create arena dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := fsys.Create(tmp)
	if err != nil {
		return fmt.Errorf("create arena image: %w", err)
	}
	bw := bufio.NewWriter(f)
	if _, err := m.WriteTo(bw); err != nil {
		_ = f.Close()
		return fmt.Errorf("write arena image: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush arena image: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync arena image: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close arena image: %w", err)
	}
	return fsys.Rename(tmp, path)
}

// LoadFile opens the arena image at path. A missing file yields a fresh arena
// and loaded == false.
func LoadFile(fsys afero.Fs, path string, opts Options) (m *Manager, loaded bool, err error) {
	f, err := fsys.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(opts), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open arena image: %w", err)
	}
	defer func() { _ = f.Close() }()
	m, err = ReadFrom(f, opts)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}
