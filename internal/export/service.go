package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"polarlab/api/internal/store"
)

// StateSource supplies the workspace to export.
type StateSource interface {
	Snapshot() store.State
}

// ObjectStore receives published exports.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Service provides workspace export functionality
type Service struct {
	source  StateSource
	objects ObjectStore
	now     func() time.Time
	logger  *zap.Logger
}

// NewService creates a new export service. objects may be nil, which
// disables Publish.
func NewService(source StateSource, objects ObjectStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{source: source, objects: objects, now: time.Now, logger: logger.Named("export")}
}

// Export renders the current workspace as an xlsx download.
func (s *Service) Export(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Write(&buf, s.source.Snapshot()); err != nil {
		return nil, err
	}
	return &Result{Data: buf.Bytes(), Filename: Filename, MimeType: MimeType}, nil
}

// Publish exports the workspace and stores it under
// exports/<timestamp>-polarization-measures.xlsx, returning the object key.
func (s *Service) Publish(ctx context.Context) (string, error) {
	if s.objects == nil {
		return "", ErrUploadDisabled
	}
	res, err := s.Export(ctx)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("exports/%s-%s", s.now().UTC().Format("20060102T150405Z"), res.Filename)
	if err := s.objects.Put(ctx, key, res.Data, res.MimeType); err != nil {
		return "", fmt.Errorf("export: publish %s: %w", key, err)
	}
	s.logger.Info("export published", zap.String("key", key), zap.Int("bytes", len(res.Data)))
	return key, nil
}
