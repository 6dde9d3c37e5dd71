// Package funds is the household funds API independent of any transport.
package funds

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/household-funds-ledger/internal/fanout"
	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/ledger"
	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models"
	"github.com/sheikh-saqib/household-funds-ledger/internal/models/events"
	"github.com/sheikh-saqib/household-funds-ledger/internal/notify"
	"github.com/sheikh-saqib/household-funds-ledger/internal/requests"
	"github.com/sheikh-saqib/household-funds-ledger/internal/saga"
	"github.com/sheikh-saqib/household-funds-ledger/internal/xerrors"
)

type Config struct {
	OpeningBalanceParent decimal.Decimal
	OpeningBalanceChild  decimal.Decimal
	StepTimeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		OpeningBalanceParent: decimal.NewFromInt(15_000_000),
		OpeningBalanceChild:  decimal.NewFromInt(3_000_000),
		StepTimeout:          5 * time.Second,
	}
}

type Deps struct {
	Accounts  interfaces.AccountStore
	Registry  *requests.Registry
	Saga      *saga.Saga
	Ledger    *ledger.Ledger
	Hub       *fanout.Hub
	Notifier  interfaces.Notifier
	Directory interfaces.ParentDirectory
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

type Service struct {
	accounts  interfaces.AccountStore
	registry  *requests.Registry
	saga      *saga.Saga
	ledger    *ledger.Ledger
	hub       *fanout.Hub
	notifier  interfaces.Notifier
	directory interfaces.ParentDirectory
	logger    *zap.Logger
	metrics   *metrics.Collector
	cfg       Config
}

func New(d Deps, cfg Config) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultConfig().StepTimeout
	}
	return &Service{
		accounts:  d.Accounts,
		registry:  d.Registry,
		saga:      d.Saga,
		ledger:    d.Ledger,
		hub:       d.Hub,
		notifier:  d.Notifier,
		directory: d.Directory,
		logger:    d.Logger,
		metrics:   d.Metrics,
		cfg:       cfg,
	}
}

// CreateRequest opens a PENDING request and tells every parent about it.
func (s *Service) CreateRequest(ctx context.Context, in requests.CreateInput) (models.FundRequest, error) {
	req, err := s.registry.Create(ctx, in, requests.Announce(func(req models.FundRequest) {
		s.hub.Publish(events.TopicRequestLifecycle, events.TypeRequestCreated, req.ID, req)
	}))
	if err != nil {
		return models.FundRequest{}, err
	}
	s.notifyParents(ctx, req, notify.RequestCreated)
	return req, nil
}

func (s *Service) ApproveRequest(ctx context.Context, requestID, approverID string) (models.ApproveResult, error) {
	return s.saga.Approve(ctx, requestID, approverID)
}

func (s *Service) RejectRequest(ctx context.Context, requestID, approverID string) (models.FundRequest, error) {
	return s.saga.Reject(ctx, requestID, approverID)
}

func (s *Service) CancelRequest(ctx context.Context, requestID, requesterID string) (bool, error) {
	req, err := s.saga.Cancel(ctx, requestID, requesterID)
	if err != nil {
		return false, err
	}
	s.notifyParents(ctx, req, notify.RequestCancelled)
	return true, nil
}

func (s *Service) GetRequest(ctx context.Context, requestID string) (models.FundRequest, error) {
	return s.registry.Get(ctx, requestID)
}

func (s *Service) ListPendingRequests(ctx context.Context) ([]models.FundRequest, error) {
	return s.registry.ListPending(ctx)
}

func (s *Service) ListMyRequests(ctx context.Context, requesterID string) ([]models.FundRequest, error) {
	return s.registry.ListByRequester(ctx, requesterID)
}

func (s *Service) ListRequests(ctx context.Context, status models.RequestStatus) ([]models.FundRequest, error) {
	return s.registry.List(ctx, status)
}

// SubscribeRequestEvents streams request lifecycle events until ctx is done.
func (s *Service) SubscribeRequestEvents(ctx context.Context) *fanout.Subscription {
	return s.hub.Subscribe(ctx, events.TopicRequestLifecycle)
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return s.accounts.GetBalance(ctx, accountID)
}

func (s *Service) GetHistory(ctx context.Context, accountID string) ([]models.TransactionRecord, error) {
	return s.ledger.History(ctx, accountID)
}

type AddTransactionInput struct {
	AccountID      string          `json:"account_id"`
	Title          string          `json:"title"`
	Amount         decimal.Decimal `json:"amount"`
	Kind           models.Kind     `json:"type"`
	IdempotencyKey string          `json:"-"`
}

// AddTransaction records income or an expense on one account.
func (s *Service) AddTransaction(ctx context.Context, in AddTransactionInput) (models.TransactionResult, error) {
	return s.ledger.Record(ctx, ledger.RecordInput{
		AccountID:      in.AccountID,
		Title:          in.Title,
		Amount:         in.Amount,
		Kind:           in.Kind,
		IdempotencyKey: in.IdempotencyKey,
	})
}

// OpenAccount creates an account funded with the role's opening balance.
func (s *Service) OpenAccount(ctx context.Context, name string, role models.Role) (models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || !role.Valid() {
		return models.Account{}, xerrors.ErrInvalidInput
	}

	balance := s.cfg.OpeningBalanceChild
	if role == models.RoleParent {
		balance = s.cfg.OpeningBalanceParent
	}
	account := models.Account{
		ID:      uuid.NewString(),
		Name:    name,
		Role:    role,
		Balance: balance,
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return models.Account{}, err
	}
	s.logger.Info("account opened",
		zap.String("account_id", account.ID),
		zap.String("role", string(role)),
		zap.String("balance", balance.String()),
	)
	return s.accounts.GetAccount(ctx, account.ID)
}

func (s *Service) ListChildren(ctx context.Context) ([]models.Account, error) {
	children, err := s.accounts.ListByRole(ctx, models.RoleChild)
	if err != nil {
		return nil, err
	}
	if children == nil {
		children = []models.Account{}
	}
	return children, nil
}

func (s *Service) notifyParents(ctx context.Context, req models.FundRequest, build func(string, models.FundRequest) interfaces.Notification) {
	if s.notifier == nil || s.directory == nil {
		return
	}
	log := s.logger.With(zap.String("request_id", req.ID))

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	parents, err := s.directory.ParentIDs(lookupCtx)
	cancel()
	if err != nil {
		log.Warn("could not resolve parents to notify", zap.Error(err))
	}
	if len(parents) == 0 {
		s.metrics.RecordNoApprover()
		log.Warn("no parent available to notify")
		return
	}

	for _, id := range parents {
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
		err := s.notifier.Send(sendCtx, build(id, req))
		cancel()
		if err != nil {
			s.metrics.RecordNotificationFailure("parents")
			log.Warn("notification failed", zap.String("user_id", id), zap.Error(err))
		}
	}
}
