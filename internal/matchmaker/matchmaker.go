// Package matchmaker pairs exactly opposite intents and settles each pair
// with a transaction submitted through the mempool.
//
// Intents are kept per topic in arrival order. When a new intent arrives
// the oldest pending counter-intent wins. The pair leaves the working set
// before its transaction is submitted and is not restored if the ledger
// rejects it.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/tendermint/intentd/config"
	"github.com/tendermint/intentd/crypto"
	"github.com/tendermint/intentd/internal/ledger"
	"github.com/tendermint/intentd/internal/mempool"
	"github.com/tendermint/intentd/libs/log"
	"github.com/tendermint/intentd/libs/service"
	"github.com/tendermint/intentd/types"
	"github.com/tendermint/intentd/vm"
)

var (
	// ErrMatchSubmission is returned when the tx settling a match can't be
	// crafted or is rejected. The matched intents are not requeued.
	ErrMatchSubmission = errors.New("match submission failed")
	// ErrMatchUnconfirmed is returned when the tx settling a match was
	// accepted by the mempool but not committed before the wait ended. It may
	// still commit.
	ErrMatchUnconfirmed = errors.New("match submitted but not confirmed")
)

// Submitter hands a tx to the ledger and waits until it is committed or
// rejected. *mempool.TxMempool is a Submitter.
type Submitter interface {
	BroadcastTxCommit(ctx context.Context, tx types.Tx) (*mempool.BroadcastResult, error)
}

// MatchResult describes the settlement of one matched pair.
type MatchResult struct {
	// Intents in arrival order: the pending intent first.
	Intents [2]*types.Intent
	TxHash  []byte
	Height  int64
	Code    uint32
	Log     string
	Err     error
}

func (r *MatchResult) OK() bool { return r.Err == nil }

// Option sets an optional parameter on the Matchmaker.
type Option func(*Matchmaker)

func WithMetrics(m *Metrics) Option {
	return func(mm *Matchmaker) { mm.metrics = m }
}

// WithFilter sets the intent filter, replacing any configured script.
func WithFilter(f *Filter) Option {
	return func(mm *Matchmaker) { mm.filter = f }
}

// WithProgram replaces the default exact swap program.
func WithProgram(p *Program) Option {
	return func(mm *Matchmaker) { mm.program = p }
}

// WithTxCode sets the code of the settlement txs, which run the program's
// output as their data. The default is tx_intent_transfers.
func WithTxCode(code []byte) Option {
	return func(mm *Matchmaker) { mm.txCode = code }
}

// WithIntentSource sets the channel the service consumes, usually
// Gossiper.Intents.
func WithIntentSource(ch <-chan *types.Intent) Option {
	return func(mm *Matchmaker) { mm.source = ch }
}

func WithClock(now func() time.Time) Option {
	return func(mm *Matchmaker) { mm.now = now }
}

// Matchmaker keeps the working set and settles the matches it finds.
type Matchmaker struct {
	*service.BaseService
	logger log.Logger

	key       crypto.PrivKey
	submitter Submitter
	program   *Program
	txCode    []byte
	filter    *Filter
	filterTTL time.Duration
	ws        *WorkingSet
	ttl       time.Duration
	metrics   *Metrics
	now       func() time.Time

	source  <-chan *types.Intent
	results chan *MatchResult

	// held from the match search until the pair is out of the working set
	mtx   sync.Mutex
	tasks *taskgroup.Group
}

// NewMatchmaker creates a matchmaker signing its txs with key. Unless
// WithProgram is given, pairs are settled by the exact swap program run
// under params.
func NewMatchmaker(
	logger log.Logger,
	cfg *config.MatchmakerConfig,
	params vm.Params,
	key crypto.PrivKey,
	submitter Submitter,
	options ...Option,
) (*Matchmaker, error) {
	mm := &Matchmaker{
		logger:    logger,
		key:       key,
		submitter: submitter,
		ws:        NewWorkingSet(cfg.IntentTTL),
		ttl:       cfg.IntentTTL,
		txCode:    ledger.TxIntentTransfersCode,
		filterTTL: cfg.FilterTimeout,
		metrics:   NopMetrics(),
		now:       time.Now,
		results:   make(chan *MatchResult, cfg.ResultsBufferSize),
	}
	mm.BaseService = service.NewBaseService(logger, "Matchmaker", mm)
	for _, opt := range options {
		opt(mm)
	}

	if mm.program == nil {
		p, err := NewProgram(logger, params, ExactSwapCode)
		if err != nil {
			return nil, err
		}
		mm.program = p
	}
	if mm.filter == nil && cfg.FilterFile() != "" {
		f, err := LoadFilter(cfg.FilterFile())
		if err != nil {
			return nil, err
		}
		mm.filter = f
	}
	return mm, nil
}

// WorkingSet returns the matchmaker's working set.
func (mm *Matchmaker) WorkingSet() *WorkingSet { return mm.ws }

// Results returns the channel on which every settlement attempt is
// reported. Results are dropped when nobody drains it.
func (mm *Matchmaker) Results() <-chan *MatchResult { return mm.results }

// OnStart consumes the intent source, if any.
func (mm *Matchmaker) OnStart(ctx context.Context) error {
	mm.tasks = taskgroup.New(nil)
	if mm.source != nil {
		mm.tasks.Go(func() error {
			mm.consume(ctx)
			return nil
		})
	}
	return nil
}

func (mm *Matchmaker) OnStop() {
	if mm.tasks != nil {
		_ = mm.tasks.Wait()
	}
	if mm.filter != nil {
		mm.filter.Close()
	}
}

func (mm *Matchmaker) consume(ctx context.Context) {
	var prune <-chan time.Time
	if mm.ttl > 0 {
		ticker := time.NewTicker(mm.ttl)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-prune:
			if n := mm.ws.Prune(); n > 0 {
				mm.logger.Debug("expired intents", "count", n)
				mm.metrics.DroppedIntents.With("reason", "expired").Add(float64(n))
				mm.metrics.Pending.Set(float64(mm.ws.Len()))
			}
		case intent := <-mm.source:
			if _, err := mm.AddIntent(ctx, intent); err != nil {
				mm.logger.Error("failed to settle match", "intent", intent.ID(), "err", err)
			}
		}
	}
}

// AddIntent filters, dedups and matches intent. Unmatched intents are
// queued and (nil, nil) is returned. For a match the crafted tx is
// submitted and its result returned. A rejected tx yields an error
// wrapping ErrMatchSubmission along with the result, one that is still
// waiting for a block an error wrapping ErrMatchUnconfirmed.
func (mm *Matchmaker) AddIntent(ctx context.Context, intent *types.Intent) (*MatchResult, error) {
	if err := intent.ValidateBasic(); err != nil {
		mm.drop(intent, "invalid", err)
		return nil, nil
	}
	if err := intent.VerifySignature(); err != nil {
		mm.drop(intent, "invalid", err)
		return nil, nil
	}
	if mm.filter != nil {
		ok, err := mm.allow(ctx, intent)
		if err != nil {
			mm.drop(intent, "filter", err)
			return nil, nil
		}
		if !ok {
			mm.drop(intent, "filtered", nil)
			return nil, nil
		}
	}

	mm.mtx.Lock()
	if mm.ws.Seen(intent.ID()) {
		mm.mtx.Unlock()
		mm.drop(intent, "duplicate", nil)
		return nil, nil
	}
	counter := FindMatch(mm.ws, intent)
	if counter == nil {
		mm.ws.Add(intent)
		mm.mtx.Unlock()
		mm.metrics.Pending.Set(float64(mm.ws.Len()))
		mm.logger.Debug("queued intent", "intent", intent.ID(), "topic", intent.Topic)
		return nil, nil
	}
	mm.ws.MarkSeen(intent)
	mm.ws.Remove(counter)
	mm.mtx.Unlock()

	mm.metrics.Pending.Set(float64(mm.ws.Len()))
	mm.metrics.Matches.Add(1)
	mm.logger.Info("found match", "pending", counter.ID(), "incoming", intent.ID())

	res := mm.settle(ctx, counter, intent)
	mm.publish(res)
	return res, res.Err
}

// allow runs the filter for at most the configured filter timeout.
func (mm *Matchmaker) allow(ctx context.Context, intent *types.Intent) (bool, error) {
	if mm.filterTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mm.filterTTL)
		defer cancel()
	}
	return mm.filter.Allow(ctx, intent)
}

func (mm *Matchmaker) drop(intent *types.Intent, reason string, err error) {
	mm.metrics.DroppedIntents.With("reason", reason).Add(1)
	mm.logger.Debug("dropping intent", "intent", intent.ID(), "reason", reason, "err", err)
}

// settle crafts, signs and submits the tx for the pair (a, b).
func (mm *Matchmaker) settle(ctx context.Context, a, b *types.Intent) *MatchResult {
	start := time.Now()
	res := &MatchResult{Intents: [2]*types.Intent{a, b}}
	fail := func(err error) *MatchResult {
		mm.metrics.FailedSubmissions.Add(1)
		res.Err = fmt.Errorf("%w: %v", ErrMatchSubmission, err)
		return res
	}

	data, err := mm.program.Craft(a, b)
	if err != nil {
		return fail(fmt.Errorf("crafting tx: %w", err))
	}
	tx := &types.Transaction{
		Code:      mm.txCode,
		Data:      data,
		Timestamp: mm.now(),
	}
	if err := tx.Sign(mm.key); err != nil {
		return fail(fmt.Errorf("signing tx: %w", err))
	}
	raw := tx.Marshal()
	res.TxHash = raw.Hash()

	out, err := mm.submitter.BroadcastTxCommit(ctx, raw)
	var notCommitted mempool.ErrTxNotCommitted
	switch {
	case errors.As(err, &notCommitted):
		mm.metrics.UnconfirmedSubmissions.Add(1)
		res.Err = fmt.Errorf("%w: %v", ErrMatchUnconfirmed, err)
		return res
	case err != nil:
		return fail(err)
	}
	res.Height = out.Height
	switch {
	case out.CheckTx.IsErr():
		res.Code, res.Log = out.CheckTx.Code, out.CheckTx.Log
		return fail(fmt.Errorf("check tx failed with code %d: %s", res.Code, res.Log))
	case out.DeliverTx != nil:
		res.Code, res.Log = out.DeliverTx.Code, out.DeliverTx.Log
		if out.DeliverTx.IsErr() {
			return fail(fmt.Errorf("tx %s at height %d: %s", out.DeliverTx.State, out.Height, res.Log))
		}
	}

	mm.metrics.SubmitDuration.Observe(time.Since(start).Seconds())
	mm.logger.Info("settled match", "tx", fmt.Sprintf("%X", res.TxHash), "height", res.Height)
	return res
}

func (mm *Matchmaker) publish(res *MatchResult) {
	select {
	case mm.results <- res:
	default:
		mm.logger.Error("results channel full; dropping match result", "tx", fmt.Sprintf("%X", res.TxHash))
	}
}
