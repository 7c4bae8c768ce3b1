package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
)

// BeaconSender is the best-effort transport used for the final flush. It
// makes one attempt, never compresses, and cannot set custom headers, so
// signing goes into a presigned URL. The response status is not observed.
type BeaconSender struct {
	client *http.Client
	url    string
	signer *Signer
}

// NewBeaconSender creates the best-effort transport.
func NewBeaconSender(endpoint, appID string, client *http.Client, signer *Signer) (*BeaconSender, error) {
	u, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if appID == "" {
		return nil, errors.New("application id is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &BeaconSender{client: client, url: appMonitorURL(u, appID), signer: signer}, nil
}

// Send hands req to the network. Only a failure to do so is reported.
func (b *BeaconSender) Send(ctx context.Context, req *v1.PutRumEventsRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build beacon: %w", err)
	}
	if b.signer != nil {
		signed, err := b.signer.Presign(ctx, httpReq, body)
		if err != nil {
			return err
		}
		if httpReq.URL, err = url.Parse(signed); err != nil {
			return fmt.Errorf("failed to parse presigned url: %w", err)
		}
	}
	httpReq.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send beacon: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}
