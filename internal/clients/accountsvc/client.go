// Package accountsvc is an AccountStore backed by a remote account service.
// The remote side serializes mutations per account; this client only maps
// the wire format and status codes back to domain errors.
package accountsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type balanceBody struct {
	Balance decimal.Decimal `json:"balance"`
}

type changeBody struct {
	Amount decimal.Decimal `json:"amount"`
	Type   models.Kind     `json:"type"`
}

func (c *Client) CreateAccount(ctx context.Context, account models.Account) error {
	if account.ID == "" {
		return xerrors.ErrInvalidInput
	}
	return c.do(ctx, http.MethodPut, "/accounts/"+url.PathEscape(account.ID), account, nil)
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	var account models.Account
	err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID), nil, &account)
	return account, err
}

func (c *Client) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var body balanceBody
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID)+"/balance", nil, &body); err != nil {
		return decimal.Zero, err
	}
	return body.Balance, nil
}

func (c *Client) ListByRole(ctx context.Context, role models.Role) ([]models.Account, error) {
	var accounts []models.Account
	err := c.do(ctx, http.MethodGet, "/accounts?role="+url.QueryEscape(string(role)), nil, &accounts)
	return accounts, err
}

func (c *Client) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.change(ctx, accountID, amount, models.KindIncome)
}

func (c *Client) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.change(ctx, accountID, amount, models.KindExpense)
}

func (c *Client) change(ctx context.Context, accountID string, amount decimal.Decimal, kind models.Kind) (decimal.Decimal, error) {
	if !models.ValidAmount(amount) {
		return decimal.Zero, xerrors.ErrInvalidAmount
	}
	var body balanceBody
	path := "/accounts/" + url.PathEscape(accountID) + "/balance"
	if err := c.do(ctx, http.MethodPatch, path, changeBody{Amount: amount, Type: kind}, &body); err != nil {
		return decimal.Zero, err
	}
	return body.Balance, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if neverSent(err) {
			return fmt.Errorf("account service %s %s: %v: %w", method, path, err, xerrors.ErrNotApplied)
		}
		return fmt.Errorf("account service %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("account service %s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}

	if resp.StatusCode >= 300 {
		return remoteError(resp.StatusCode, env)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// neverSent is true when no connection was made, so the request cannot have
// reached the service. Timeouts and resets after that are not.
func neverSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func remoteError(status int, env envelope) error {
	if sentinel := xerrors.FromCode(env.Code); sentinel != nil {
		return fmt.Errorf("account service: %s: %w", env.Message, sentinel)
	}
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("account service: %s: %w", env.Message, xerrors.ErrAccountNotFound)
	case http.StatusConflict:
		return fmt.Errorf("account service: %s: %w", env.Message, xerrors.ErrInsufficientFunds)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return fmt.Errorf("account service: %s: %w", env.Message, xerrors.ErrInvalidInput)
	}
	return fmt.Errorf("account service returned %d: %s", status, env.Message)
}

var _ interfaces.AccountStore = (*Client)(nil)
