package arena

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"
)

func TestPartitionsGrowIndependently(t *testing.T) {
	m := New(Options{BucketSize: 8})
	a := m.Partition(1)
	b := m.Partition(2)

	if a.Len() != 0 || b.Len() != 0 {
		t.Fatalf("expected empty partitions")
	}
	if _, err := a.Append([]byte("aaaaaa")); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if _, err := b.Append([]byte("bbbbbbbbbbbb")); err != nil {
		t.Fatalf("append b: %v", err)
	}
	off, err := a.Append([]byte("AAAAAA"))
	if err != nil {
		t.Fatalf("append a again: %v", err)
	}
	if off != 6 {
		t.Fatalf("expected offset 6, got %d", off)
	}

	got := make([]byte, a.Len())
	if _, err := a.ReadAt(got, 0); err != nil {
		t.Fatalf("read a: %v", err)
	}
	if string(got) != "aaaaaaAAAAAA" {
		t.Fatalf("partition a interleaved with b: %q", got)
	}
	got = make([]byte, b.Len())
	if _, err := b.ReadAt(got, 0); err != nil {
		t.Fatalf("read b: %v", err)
	}
	if string(got) != "bbbbbbbbbbbb" {
		t.Fatalf("partition b corrupted: %q", got)
	}
	if m.Size() != 32 {
		t.Fatalf("expected four buckets handed out, got %d bytes", m.Size())
	}
}

func TestReadPastEnd(t *testing.T) {
	m := New(Options{BucketSize: 4})
	r := m.Partition(3)
	if _, err := r.Append([]byte("xyz")); err != nil {
		t.Fatalf("append: %v", err)
	}
	buf := make([]byte, 5)
	n, err := r.ReadAt(buf, 1)
	if n != 2 || !errors.Is(err, io.EOF) {
		t.Fatalf("expected short read with EOF, got n=%d err=%v", n, err)
	}
	if _, err := r.ReadAt(buf, 3); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF at end, got %v", err)
	}
}

func TestOutOfSpaceLeavesOtherPartitionsIntact(t *testing.T) {
	m := New(Options{BucketSize: 4, MaxBytes: 8})
	a := m.Partition(1)
	b := m.Partition(2)
	if _, err := a.Append([]byte("1234")); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if _, err := b.Append([]byte("5678")); err != nil {
		t.Fatalf("append b: %v", err)
	}
	if _, err := a.Append([]byte("9")); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("expected ErrOutOfSpace, got %v", err)
	}
	if a.Len() != 4 {
		t.Fatalf("failed append changed length to %d", a.Len())
	}
	got := make([]byte, 4)
	if _, err := b.ReadAt(got, 0); err != nil || string(got) != "5678" {
		t.Fatalf("partition b changed: %q %v", got, err)
	}
}

func TestWriteAtOverwritesAndGrows(t *testing.T) {
	m := New(Options{BucketSize: 4})
	r := m.Partition(9)
	if _, err := r.WriteAt([]byte("hello world"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := r.WriteAt([]byte("HELLO"), 0); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got := make([]byte, r.Len())
	if _, err := r.ReadAt(got, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "HELLO world" {
		t.Fatalf("unexpected contents %q", got)
	}
	if _, err := r.WriteAt([]byte("x"), -1); err == nil {
		t.Fatalf("expected negative offset error")
	}
}

func TestImageRoundTrip(t *testing.T) {
	m := New(Options{BucketSize: 16})
	if _, err := m.Partition(1).Append([]byte("producers")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m.Partition(8).Append(bytes.Repeat([]byte{0xAB}, 40)); err != nil {
		t.Fatalf("append: %v", err)
	}

	fsys := afero.NewMemMapFs()
	if err := m.SaveFile(fsys, "/data/arena.img"); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := LoadFile(fsys, "/data/arena.img", Options{BucketSize: 1024})
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.BucketSize() != 16 {
		t.Fatalf("expected bucket size from image, got %d", loaded.BucketSize())
	}
	usage := loaded.Usage()
	if usage[1] != 9 || usage[8] != 40 {
		t.Fatalf("unexpected usage %v", usage)
	}
	got := make([]byte, 40)
	if _, err := loaded.Partition(8).ReadAt(got, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{0xAB}, 40)) {
		t.Fatalf("image body mismatch")
	}
	if ids := loaded.Partitions(); len(ids) != 2 || ids[0] != 1 || ids[1] != 8 {
		t.Fatalf("unexpected partitions %v", ids)
	}
}

func TestLoadFileMissingAndCorrupt(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, ok, err := LoadFile(fsys, "/nope.img", Options{})
	if err != nil || ok || m == nil {
		t.Fatalf("expected fresh arena for missing image, got ok=%v err=%v", ok, err)
	}
	if err := afero.WriteFile(fsys, "/bad.img", []byte("garbage!garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := LoadFile(fsys, "/bad.img", Options{}); err == nil {
		t.Fatalf("expected error for corrupt image")
	}
}

func TestCapBelowOneBucketAdmitsNothing(t *testing.T) {
	m := New(Options{BucketSize: 1024, MaxBytes: 512})
	p := m.Partition(1)
	if _, err := p.Append(make([]byte, 4096)); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("expected ErrOutOfSpace, got %v", err)
	}
	if _, err := p.Append([]byte("x")); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("expected ErrOutOfSpace for a single byte, got %v", err)
	}
	if m.Size() != 0 || p.Len() != 0 {
		t.Fatalf("capped arena grew: size %d len %d", m.Size(), p.Len())
	}
}
