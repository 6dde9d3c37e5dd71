package funds

import (
	"go.uber.org/zap"

	"github.com/sheikh-saqib/household-funds-ledger/internal/fanout"
	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/ledger"
	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
	"github.com/sheikh-saqib/household-funds-ledger/internal/requests"
	"github.com/sheikh-saqib/household-funds-ledger/internal/saga"
)

type Stores struct {
	Accounts interfaces.AccountStore
	Ledger   interfaces.LedgerStore
	Requests interfaces.FundRequestStore
}

// Options are optional collaborators. A nil Hub gets a default one, a nil
// Notifier or Directory turns notifications off.
type Options struct {
	Hub       *fanout.Hub
	Retrier   *ledger.Retrier
	Notifier  interfaces.Notifier
	Directory interfaces.ParentDirectory
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	Config    Config
	Saga      saga.Config
}

// Assemble builds the registry, ledger and saga over the given stores.
func Assemble(st Stores, opt Options) *Service {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.Hub == nil {
		opt.Hub = fanout.NewHub(64, fanout.DropOldest, opt.Metrics)
	}
	if opt.Saga.StepTimeout <= 0 {
		opt.Saga.StepTimeout = opt.Config.StepTimeout
	}

	registry := requests.NewRegistry(st.Requests, st.Accounts, opt.Logger.Named("requests"))
	led := ledger.NewLedger(st.Ledger, st.Accounts, opt.Retrier, opt.Logger.Named("ledger"))
	sg := saga.New(saga.Deps{
		Registry: registry,
		Accounts: st.Accounts,
		Ledger:   led,
		Hub:      opt.Hub,
		Notifier: opt.Notifier,
		Logger:   opt.Logger.Named("saga"),
		Metrics:  opt.Metrics,
	}, opt.Saga)

	return New(Deps{
		Accounts:  st.Accounts,
		Registry:  registry,
		Saga:      sg,
		Ledger:    led,
		Hub:       opt.Hub,
		Notifier:  opt.Notifier,
		Directory: opt.Directory,
		Logger:    opt.Logger,
		Metrics:   opt.Metrics,
	}, opt.Config)
}
