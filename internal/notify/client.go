// Package notify delivers user notifications. Delivery is best effort: a
// notification that cannot be sent is logged and counted, never retried by
// the caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

// HTTPNotifier posts notifications to the notification service.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPNotifier) Send(ctx context.Context, n interfaces.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", xerrors.ErrNotificationDeliveryFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrNotificationDeliveryFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrNotificationDeliveryFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: notification service returned %d", xerrors.ErrNotificationDeliveryFailure, resp.StatusCode)
	}
	return nil
}

var _ interfaces.Notifier = (*HTTPNotifier)(nil)
