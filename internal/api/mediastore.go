package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"wabridge/internal/metrics"
)

// MediaStore persists inbound media payloads to a temp directory before
// sending. Files are removed on a delay after a confirmed send so the chat
// client has time to read them, or immediately when the send fails.
type MediaStore struct {
	dir          string
	maxBytes     int64
	cleanupDelay time.Duration
	client       *http.Client
	logger       *slog.Logger
}

// TempMedia is one staged payload.
type TempMedia struct {
	Path     string
	Data     []byte
	Mimetype string
	Filename string

	store *MediaStore
}

func NewMediaStore(dir string, maxBytes int64, cleanupDelay time.Duration, logger *slog.Logger) *MediaStore {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &MediaStore{
		dir:          dir,
		maxBytes:     maxBytes,
		cleanupDelay: cleanupDelay,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// FromUpload stages a multipart file upload.
func (s *MediaStore) FromUpload(file multipart.File, header *multipart.FileHeader) (*TempMedia, error) {
	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("file exceeds the %d byte limit", s.maxBytes)
	}
	mimetype := header.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = http.DetectContentType(data)
	}
	return s.stage(data, mimetype, header.Filename)
}

// FromURL fetches a remote payload and stages it.
func (s *MediaStore) FromURL(ctx context.Context, rawURL string) (*TempMedia, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("remote file exceeds the %d byte limit", s.maxBytes)
	}
	mimetype := resp.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = http.DetectContentType(data)
	}
	name := filepath.Base(req.URL.Path)
	if name == "/" || name == "." {
		name = "media"
	}
	return s.stage(data, mimetype, name)
}

// FromBase64 decodes an inlined payload and stages it. The first bytes are
// checked against known image signatures; a mismatch against the declared
// mimetype only logs a warning.
func (s *MediaStore) FromBase64(encoded, mimetype, filename string) (*TempMedia, error) {
	// Tolerate data URL prefixes from browser callers.
	if idx := strings.Index(encoded, ","); idx != -1 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("decoded payload exceeds the %d byte limit", s.maxBytes)
	}
	if strings.HasPrefix(mimetype, "image/") {
		if sniffed := sniffImage(data); sniffed == "" {
			s.logger.Warn("payload does not look like a known image format", "declared", mimetype)
		} else if !strings.Contains(mimetype, sniffed) {
			s.logger.Warn("payload signature does not match declared mimetype",
				"declared", mimetype, "sniffed", sniffed)
		}
	}
	if filename == "" {
		filename = "media"
	}
	return s.stage(data, mimetype, filename)
}

// stage writes the payload to a uniquely named temp file and verifies the
// round-tripped byte count before handing it out.
func (s *MediaStore) stage(data []byte, mimetype, filename string) (*TempMedia, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	path := filepath.Join(s.dir, uuid.NewString()+filepath.Ext(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("verify temp file: %w", err)
	}
	if info.Size() != int64(len(data)) {
		os.Remove(path)
		return nil, fmt.Errorf("temp file size mismatch: wrote %d, on disk %d", len(data), info.Size())
	}
	metrics.TempFiles.Inc()
	return &TempMedia{
		Path:     path,
		Data:     data,
		Mimetype: mimetype,
		Filename: filename,
		store:    s,
	}, nil
}

// ScheduleCleanup removes the temp file after the grace period.
func (t *TempMedia) ScheduleCleanup() {
	time.AfterFunc(t.store.cleanupDelay, func() {
		if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
			t.store.logger.Warn("failed to remove temp media file", "path", t.Path, "error", err)
		}
		metrics.TempFiles.Dec()
	})
}

// Discard removes the temp file right away. Used on send failure.
func (t *TempMedia) Discard() {
	if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
		t.store.logger.Warn("failed to remove temp media file", "path", t.Path, "error", err)
	}
	metrics.TempFiles.Dec()
}

var imageSignatures = []struct {
	name   string
	prefix []byte
}{
	{"jpeg", []byte{0xFF, 0xD8, 0xFF}},
	{"png", []byte{0x89, 0x50, 0x4E, 0x47}},
	{"gif", []byte("GIF8")},
	{"webp", []byte("RIFF")},
}

func sniffImage(data []byte) string {
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(data, sig.prefix) {
			return sig.name
		}
	}
	return ""
}
