package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
)

// Directory finds the parents to notify about a new request. It asks the user
// directory first and falls back to the account store when the directory is
// unreachable or knows no parents.
type Directory struct {
	baseURL  string
	client   *http.Client
	accounts interfaces.AccountStore
	logger   *zap.Logger
}

// NewDirectory with an empty baseURL only consults the account store.
func NewDirectory(baseURL string, timeout time.Duration, accounts interfaces.AccountStore, logger *zap.Logger) *Directory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		accounts: accounts,
		logger:   logger,
	}
}

// directoryUser ids may be JSON strings or numbers.
type directoryUser struct {
	ID any `json:"id"`
}

func (d *Directory) ParentIDs(ctx context.Context) ([]string, error) {
	if d.baseURL != "" {
		ids, err := d.fetch(ctx)
		if err != nil {
			d.logger.Warn("user directory unavailable, using account store", zap.Error(err))
		}
		if len(ids) > 0 {
			return ids, nil
		}
	}

	parents, err := d.accounts.ListByRole(ctx, models.RoleParent)
	if err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (d *Directory) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/users/parents", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned %d", resp.StatusCode)
	}

	var users []directoryUser
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&users); err != nil {
		return nil, fmt.Errorf("decode parents: %w", err)
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID == nil {
			continue
		}
		if id := fmt.Sprint(u.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var _ interfaces.ParentDirectory = (*Directory)(nil)
