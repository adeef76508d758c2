// Package artifact is the content-addressed, write-once store for binary
// outputs produced by either execution path.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/telemetry"
	"github.com/af-corp/janus-gateway/internal/types"
)

// ErrNotFound is returned for unknown and expired artifact ids.
var ErrNotFound = errors.New("artifact not found")

// Store persists artifacts on disk, addressed by id. Blobs are write-once:
// created with O_EXCL, never overwritten, only expired.
type Store struct {
	cfg     func() config.ArtifactConfig
	metrics *telemetry.Metrics
}

// NewStore creates the storage root if needed. metrics may be nil.
func NewStore(cfg func() config.ArtifactConfig, metrics *telemetry.Metrics) (*Store, error) {
	if err := os.MkdirAll(cfg().Root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{cfg: cfg, metrics: metrics}, nil
}

func (s *Store) blobPath(id string) string {
	return filepath.Join(s.cfg().Root, id[:2], id)
}

func (s *Store) metaPath(id string) string {
	return s.blobPath(id) + ".meta.json"
}

// Put stores the reader's bytes as a new artifact and returns its metadata.
// The write is durable (synced and renamed into place) before Put returns.
func (s *Store) Put(r io.Reader, mimeType, displayName string) (types.Artifact, error) {
	cfg := s.cfg()
	id := uuid.NewString()

	dir := filepath.Dir(s.blobPath(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Artifact{}, s.fail(fmt.Errorf("create artifact dir: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+id+"-*")
	if err != nil {
		return types.Artifact{}, s.fail(fmt.Errorf("create temp file: %w", err))
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return types.Artifact{}, s.fail(fmt.Errorf("write artifact bytes: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return types.Artifact{}, s.fail(fmt.Errorf("sync artifact: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return types.Artifact{}, s.fail(fmt.Errorf("close temp file: %w", err))
	}

	// Write-once: the id slot must not exist yet.
	if err := os.Link(tmp.Name(), s.blobPath(id)); err != nil {
		return types.Artifact{}, s.fail(fmt.Errorf("publish artifact %s: %w", id, err))
	}

	now := time.Now().UTC()
	art := types.Artifact{
		ID:          id,
		Type:        classifyType(mimeType),
		MimeType:    mimeType,
		DisplayName: displayName,
		SizeBytes:   size,
		CreatedAt:   now,
		ExpiresAt:   now.Add(cfg.TTL),
		URL:         strings.TrimSuffix(cfg.BaseURL, "/") + "/artifacts/" + id,
	}

	meta, err := json.Marshal(art)
	if err != nil {
		return types.Artifact{}, s.fail(fmt.Errorf("marshal artifact metadata: %w", err))
	}
	if err := os.WriteFile(s.metaPath(id), meta, 0o644); err != nil {
		os.Remove(s.blobPath(id))
		return types.Artifact{}, s.fail(fmt.Errorf("write artifact metadata: %w", err))
	}

	if s.metrics != nil {
		s.metrics.RecordArtifactStore("ok", size)
	}
	return art, nil
}

func (s *Store) fail(err error) error {
	if s.metrics != nil {
		s.metrics.RecordArtifactStore("error", 0)
	}
	return err
}

// Open resolves an artifact id to its metadata and an open blob handle.
// Expiry is checked lazily: an expired artifact resolves to ErrNotFound and
// its files are removed. The caller closes the returned file.
func (s *Store) Open(id string) (*os.File, types.Artifact, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.Artifact{}, ErrNotFound
	}

	art, err := s.readMeta(id)
	if err != nil {
		return nil, types.Artifact{}, ErrNotFound
	}

	if art.Expired(time.Now()) {
		s.remove(id)
		return nil, types.Artifact{}, ErrNotFound
	}

	f, err := os.Open(s.blobPath(id))
	if err != nil {
		return nil, types.Artifact{}, ErrNotFound
	}
	return f, art, nil
}

func (s *Store) readMeta(id string) (types.Artifact, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return types.Artifact{}, err
	}
	var art types.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return types.Artifact{}, err
	}
	return art, nil
}

func (s *Store) remove(id string) {
	os.Remove(s.blobPath(id))
	os.Remove(s.metaPath(id))
}

// Sweep removes all expired artifacts. Expiry also happens lazily on Open,
// so the sweep only reclaims disk space.
func (s *Store) Sweep() (removed int) {
	now := time.Now()
	root := s.cfg().Root

	entries, err := os.ReadDir(root)
	if err != nil {
		return 0
	}
	for _, dir := range entries {
		if !dir.IsDir() {
			continue
		}
		metas, err := filepath.Glob(filepath.Join(root, dir.Name(), "*.meta.json"))
		if err != nil {
			continue
		}
		for _, metaPath := range metas {
			id := strings.TrimSuffix(filepath.Base(metaPath), ".meta.json")
			art, err := s.readMeta(id)
			if err != nil {
				continue
			}
			if art.Expired(now) {
				s.remove(id)
				removed++
			}
		}
	}
	return removed
}

// StartSweeper runs Sweep on the configured interval until ctx is done.
func (s *Store) StartSweeper(ctx context.Context) {
	interval := s.cfg().SweepInterval
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					slog.Info("artifact sweep", "removed", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ContentType returns the stable content type for an artifact: stored
// metadata first, filename-extension inference as fallback.
func ContentType(art types.Artifact) string {
	if art.MimeType != "" {
		return art.MimeType
	}
	if ext := filepath.Ext(art.DisplayName); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

func classifyType(mimeType string) types.ArtifactType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return types.ArtifactImage
	case strings.HasPrefix(mimeType, "audio/"), strings.HasPrefix(mimeType, "video/"),
		mimeType == "application/octet-stream":
		return types.ArtifactBinary
	case mimeType == "text/csv", mimeType == "application/json",
		mimeType == "application/x-ndjson", mimeType == "application/parquet":
		return types.ArtifactDataset
	default:
		return types.ArtifactFile
	}
}
