// Package ingestion holds the external feed adapters and the periodic sync
// scheduler that drives them.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/models"
)

// Source is one external hazard feed. FetchAlerts performs the outbound call
// and converts the payload into canonical alerts; record-level conversion
// failures are logged and skipped inside the adapter, so a non-nil error
// always means the whole fetch failed.
type Source interface {
	Name() string
	FetchAlerts(ctx context.Context) ([]*models.Alert, error)
}

// getJSON performs a GET against a feed endpoint and decodes the JSON body.
func getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", "emergency-alert-hub")

	client := &http.Client{
		Timeout: 30 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return nil
}
