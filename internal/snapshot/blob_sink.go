package snapshot

import (
	"context"
	"farmvault/internal/blob/core"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	keyTimeLayout   = "20060102T150405.000000000Z"
	snapshotSuffix  = ".cbor"
	defaultPrefix   = "snapshots/"
	cborContentType = "application/cbor"
)

// BlobSink stores each envelope as its own blob named
// <prefix><taken_at>-<generation>.cbor, so key order is age order.
type BlobSink struct {
	store  core.Store
	prefix string
	keep   int
}

// NewBlobSink returns a sink writing under prefix (default "snapshots/").
// When keep is positive only the newest keep snapshots are retained.
func NewBlobSink(store core.Store, prefix string, keep int) *BlobSink {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BlobSink{store: store, prefix: prefix, keep: keep}
}

// Name implements Sink.
func (b *BlobSink) Name() string { return "blob:" + string(b.store.Driver()) }

func (b *BlobSink) key(env Envelope) string {
	return b.prefix + env.TakenAt.UTC().Format(keyTimeLayout) + "-" + env.Generation.String() + snapshotSuffix
}

// parseKey recovers the envelope header from a blob key.
func (b *BlobSink) parseKey(key string) (Envelope, bool) {
	name := strings.TrimSuffix(strings.TrimPrefix(key, b.prefix), snapshotSuffix)
	if len(name) != len(keyTimeLayout)+1+36 || name[len(keyTimeLayout)] != '-' {
		return Envelope{}, false
	}
	takenAt, err := time.Parse(keyTimeLayout, name[:len(keyTimeLayout)])
	if err != nil {
		return Envelope{}, false
	}
	gen, err := uuid.Parse(name[len(keyTimeLayout)+1:])
	if err != nil {
		return Envelope{}, false
	}
	return Envelope{Generation: gen, TakenAt: takenAt}, true
}

// Save implements Sink.
func (b *BlobSink) Save(ctx context.Context, env Envelope) error {
	_, err := core.PutBytes(ctx, b.store, b.key(env), env.Payload, core.PutOptions{
		ContentType: cborContentType,
		Metadata: map[string]string{
			"generation": env.Generation.String(),
			"taken-at":   env.TakenAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", env.Generation, err)
	}
	if b.keep > 0 {
		return b.prune(ctx)
	}
	return nil
}

func (b *BlobSink) snapshots(ctx context.Context) ([]string, error) {
	infos, err := b.store.List(ctx, b.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, in := range infos {
		if _, ok := b.parseKey(in.Key); ok {
			keys = append(keys, in.Key)
		}
	}
	return keys, nil
}

func (b *BlobSink) prune(ctx context.Context) error {
	keys, err := b.snapshots(ctx)
	if err != nil {
		return err
	}
	for len(keys) > b.keep {
		if _, err := b.store.Delete(ctx, keys[0]); err != nil {
			return fmt.Errorf("prune %s: %w", keys[0], err)
		}
		keys = keys[1:]
	}
	return nil
}

// Load implements Sink.
func (b *BlobSink) Load(ctx context.Context) (Envelope, error) {
	keys, err := b.snapshots(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if len(keys) == 0 {
		return Envelope{}, ErrNoSnapshot
	}
	latest := keys[len(keys)-1]
	env, _ := b.parseKey(latest)
	payload, _, err := core.ReadAll(ctx, b.store, latest)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = payload
	return env, nil
}
