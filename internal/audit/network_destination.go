package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NetworkDestination POSTs each flush batch as a JSON array to a collector
// URL" destination). A one-shot JSON POST has
// no dedicated client library in the dependency pack worth pulling in over
// net/http, which is the idiomatic choice for this shape of call.
type NetworkDestination struct {
	url    string
	client *http.Client
}

func NewNetworkDestination(url string) *NetworkDestination {
	return &NetworkDestination{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *NetworkDestination) Write(ctx context.Context, batch []Event) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshaling audit batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building audit network request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting audit batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("audit collector returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *NetworkDestination) Close() error { return nil }
