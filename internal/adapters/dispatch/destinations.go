package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"pressflow/internal/domain"
	"pressflow/internal/ports"
)

// DefaultPublishers returns one publisher per destination kind. Dispatch is
// by the destination's kind tag; the core never branches on strings.
func DefaultPublishers(docs ports.DocumentStore) []ports.DestinationPublisher {
	return []ports.DestinationPublisher{
		&PortalPublisher{BaseURL: "https://portal.example.com"},
		&EmailPublisher{},
		&PrintPublisher{},
		&FileSharePublisher{docs: docs},
		&APIPushPublisher{client: &http.Client{Timeout: 30 * time.Second}},
	}
}

// PortalPublisher exposes the document on the internal review portal.
type PortalPublisher struct {
	BaseURL string
}

func (p *PortalPublisher) Kind() domain.DestinationKind { return domain.DestinationPortal }

func (p *PortalPublisher) Publish(_ context.Context, inst *domain.PublishingInstance, dest domain.Destination, _ []byte) (string, error) {
	location := fmt.Sprintf("%s/documents/%s", p.BaseURL, inst.DocumentID)
	log.Printf("Published document %s to portal destination %q", inst.DocumentID, dest.Name)
	return location, nil
}

// EmailPublisher hands the document off to the email distribution
// collaborator. Recipients come from the destination config.
type EmailPublisher struct{}

type emailConfig struct {
	Recipients []string `json:"recipients"`
}

func (p *EmailPublisher) Kind() domain.DestinationKind { return domain.DestinationEmail }

func (p *EmailPublisher) Publish(_ context.Context, inst *domain.PublishingInstance, dest domain.Destination, _ []byte) (string, error) {
	var cfg emailConfig
	if len(dest.Config) > 0 {
		if err := json.Unmarshal(dest.Config, &cfg); err != nil {
			return "", fmt.Errorf("invalid email destination config: %w", err)
		}
	}
	log.Printf("Queued document %s for email distribution to %d recipients (%q)", inst.DocumentID, len(cfg.Recipients), dest.Name)
	return "", nil
}

// PrintPublisher queues the document for the print facility.
type PrintPublisher struct{}

func (p *PrintPublisher) Kind() domain.DestinationKind { return domain.DestinationPrint }

func (p *PrintPublisher) Publish(_ context.Context, inst *domain.PublishingInstance, dest domain.Destination, _ []byte) (string, error) {
	log.Printf("Queued document %s for print destination %q", inst.DocumentID, dest.Name)
	return "", nil
}

// FileSharePublisher persists the published content as a new version in
// the document store's shared area.
type FileSharePublisher struct {
	docs ports.DocumentStore
}

func (p *FileSharePublisher) Kind() domain.DestinationKind { return domain.DestinationFileShare }

func (p *FileSharePublisher) Publish(ctx context.Context, inst *domain.PublishingInstance, dest domain.Destination, content []byte) (string, error) {
	if p.docs == nil {
		return "", fmt.Errorf("no document store configured for file share destination %q", dest.Name)
	}
	versionID, err := p.docs.PersistVersion(ctx, inst.DocumentID, content, map[string]string{
		"publishedBy": inst.SubmittedBy,
		"destination": dest.Name,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("fileshare://%s/%s", inst.DocumentID, versionID), nil
}

// APIPushPublisher POSTs the published content to a configured endpoint.
type APIPushPublisher struct {
	client *http.Client
}

type apiPushConfig struct {
	URL string `json:"url"`
}

func (p *APIPushPublisher) Kind() domain.DestinationKind { return domain.DestinationAPIPush }

func (p *APIPushPublisher) Publish(ctx context.Context, inst *domain.PublishingInstance, dest domain.Destination, content []byte) (string, error) {
	var cfg apiPushConfig
	if err := json.Unmarshal(dest.Config, &cfg); err != nil || cfg.URL == "" {
		return "", fmt.Errorf("api push destination %q requires a url in its config", dest.Name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Document-ID", inst.DocumentID)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("api push to %s returned %s", cfg.URL, resp.Status)
	}
	return cfg.URL, nil
}
