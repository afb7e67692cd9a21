// Package storage archives published read indexes as snappy-compressed JSON
// snapshots, on the local filesystem or in S3, and loads them back.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"commodities/domain/readindex"

	"github.com/golang/snappy"
	"go.uber.org/zap"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
)

const (
	snapshotSuffix = ".json.sz"
	latestObject   = "LATEST"
)

// ObjectStore is the minimal blob interface snapshots need
type ObjectStore interface {
	// Put writes body under key and returns a URI for the object
	Put(ctx context.Context, key string, body []byte) (string, error)
	// Get reads the object under key
	Get(ctx context.Context, key string) ([]byte, error)
}

// snapshotDocument is the archived form of an index
type snapshotDocument struct {
	Version    string                 `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Entries    []readindex.IndexEntry `json:"entries"`
}

// EncodeSnapshot serialises entries in canonical order and compresses them
func EncodeSnapshot(version string, entries []readindex.IndexEntry, at time.Time) ([]byte, error) {
	sorted := make([]readindex.IndexEntry, len(entries))
	copy(sorted, entries)
	readindex.SortEntries(sorted)

	raw, err := json.Marshal(snapshotDocument{Version: version, ExportedAt: at.UTC(), Entries: sorted})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot
func DecodeSnapshot(data []byte) (string, []readindex.IndexEntry, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return "", nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var doc snapshotDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version == "" {
		return "", nil, errors.New("snapshot has no version")
	}
	return doc.Version, doc.Entries, nil
}

// SnapshotArchive writes and reads index snapshots under a key prefix.
// Each export also moves a LATEST marker holding the exported version.
type SnapshotArchive struct {
	store  ObjectStore
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewSnapshotArchive creates an archive over store
func NewSnapshotArchive(store ObjectStore, prefix string, logger *zap.Logger) *SnapshotArchive {
	return &SnapshotArchive{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
		now:    time.Now,
	}
}

func (a *SnapshotArchive) key(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Export implements ports.SnapshotExporter
func (a *SnapshotArchive) Export(ctx context.Context, version string, entries []readindex.IndexEntry) (string, error) {
	body, err := EncodeSnapshot(version, entries, a.now())
	if err != nil {
		return "", err
	}
	uri, err := a.store.Put(ctx, a.key(version+snapshotSuffix), body)
	if err != nil {
		return "", err
	}
	if _, err := a.store.Put(ctx, a.key(latestObject), []byte(version)); err != nil {
		return "", fmt.Errorf("move latest marker: %w", err)
	}

	a.logger.Info("Index snapshot exported",
		zap.String("version", version),
		zap.String("uri", uri),
		zap.Int("entries", len(entries)),
		zap.Int("bytes", len(body)),
	)
	return uri, nil
}

// Load reads one archived version
func (a *SnapshotArchive) Load(ctx context.Context, version string) ([]readindex.IndexEntry, error) {
	body, err := a.store.Get(ctx, a.key(version+snapshotSuffix))
	if err != nil {
		return nil, err
	}
	stored, entries, err := DecodeSnapshot(body)
	if err != nil {
		return nil, err
	}
	if stored != version {
		return nil, fmt.Errorf("snapshot %s holds version %s", version, stored)
	}
	return entries, nil
}

// LoadLatest reads the most recently exported snapshot
func (a *SnapshotArchive) LoadLatest(ctx context.Context) (string, []readindex.IndexEntry, error) {
	marker, err := a.store.Get(ctx, a.key(latestObject))
	if err != nil {
		return "", nil, err
	}
	version := strings.TrimSpace(string(marker))
	entries, err := a.Load(ctx, version)
	if err != nil {
		return "", nil, err
	}
	return version, entries, nil
}
