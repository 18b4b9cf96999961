// Package publishing uploads run reports to object storage.
package publishing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aristath/greenfin/internal/modules/reporting"
	"github.com/rs/zerolog"
)

// Uploader stores one object
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Publisher uploads report artifacts under <prefix>/<run-id>/
type Publisher struct {
	uploader Uploader
	prefix   string
	log      zerolog.Logger
}

// NewPublisher creates a new publisher
func NewPublisher(uploader Uploader, prefix string, log zerolog.Logger) *Publisher {
	return &Publisher{
		uploader: uploader,
		prefix:   prefix,
		log:      log.With().Str("service", "publishing").Logger(),
	}
}

// ObjectKey returns the storage key of a run artifact
func ObjectKey(prefix, runID, name string) string {
	return path.Join(prefix, runID, name)
}

// Publish uploads every artifact and returns the keys written
func (p *Publisher) Publish(ctx context.Context, runID string, artifacts []reporting.Artifact) ([]string, error) {
	keys := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		key := ObjectKey(p.prefix, runID, a.Name)
		if err := p.uploadFile(ctx, key, a); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	p.log.Info().
		Str("run_id", runID).
		Strs("keys", keys).
		Msg("Report published")

	return keys, nil
}

func (p *Publisher) uploadFile(ctx context.Context, key string, a reporting.Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", a.Path, err)
	}
	defer f.Close()

	return p.uploader.Upload(ctx, key, f, a.ContentType)
}
