package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wardenbridge/config"
	"wardenbridge/metrics"
	"wardenbridge/registry"
	"wardenbridge/types"
	"wardenbridge/wallet"
)

// RelayStore persists relay records by idempotency key. Claim must be atomic:
// exactly one caller gets true for a key.
type RelayStore interface {
	Get(key string) (*types.RelayRecord, error)
	Claim(rec *types.RelayRecord) (bool, error)
	Update(rec *types.RelayRecord) error
	Release(key string) error
	ListByStatus(status string) ([]*types.RelayRecord, error)
}

// Relayer runs relay passes. Its state between passes lives in the store only.
type Relayer struct {
	registry *registry.Registry
	signer   wallet.Signer
	store    RelayStore
	relay    config.RelayConfig

	connect Connector
	scanner EventSource
	metrics *metrics.Metrics
	log     zerolog.Logger

	last atomic.Pointer[types.RelayReport]
}

type Option func(*Relayer)

func WithConnector(c Connector) Option {
	return func(r *Relayer) { r.connect = c }
}

func WithScanner(s EventSource) Option {
	return func(r *Relayer) { r.scanner = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relayer) { r.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Relayer) { r.log = l }
}

func NewRelayer(reg *registry.Registry, signer wallet.Signer, store RelayStore, relay config.RelayConfig, opts ...Option) *Relayer {
	r := &Relayer{
		registry: reg,
		signer:   signer,
		store:    store,
		relay:    relay,
		connect:  DialLedger,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scanner == nil {
		r.scanner = NewScanner(relay.ScanMode, r.log)
	}
	return r
}

// LastReport is the report of the last finished pass, nil before the first one.
func (r *Relayer) LastReport() *types.RelayReport {
	return r.last.Load()
}

// Relay runs the source and destination passes in parallel. A failure of one
// role never stops the other; everything is reported, nothing is returned as error.
func (r *Relayer) Relay(ctx context.Context, window uint64) *types.RelayReport {
	if window == 0 {
		window = config.DEFAULT_SCAN_WINDOW
	}
	report := &types.RelayReport{
		StartedAt: time.Now(),
		Window:    window,
		Roles:     make([]*types.RoleReport, len(types.AllRoles)),
	}
	exec := NewExecutor(r.signer, r.relay, r.log)

	var g errgroup.Group
	for i, role := range types.AllRoles {
		i, role := i, role
		g.Go(func() error {
			rr := r.rolePass(ctx, exec, role, window)
			r.metrics.ObserveRole(rr)
			report.Roles[i] = rr
			return nil
		})
	}
	_ = g.Wait()

	r.metrics.ObservePass(time.Since(report.StartedAt))
	r.last.Store(report)
	return report
}

// rolePass relays the events emitted on role to its counterpart.
func (r *Relayer) rolePass(ctx context.Context, exec *Executor, role types.ChainRole, window uint64) *types.RoleReport {
	rr := &types.RoleReport{Role: role.String(), Actions: []types.ActionReport{}}
	logger := r.log.With().Str("role", role.String()).Logger()

	fail := func(err error, msg string) *types.RoleReport {
		logger.Error().Err(err).Msg(msg)
		rr.Error = err.Error()
		return rr
	}

	origin, err := r.registry.Resolve(role)
	if err != nil {
		return fail(err, "no binding")
	}
	target, err := r.registry.Resolve(role.Counterpart())
	if err != nil {
		return fail(err, "no binding")
	}

	originLedger, err := r.connect(ctx, origin)
	if err != nil {
		return fail(err, "connecting to origin chain")
	}
	defer originLedger.Close()

	targetLedger, err := r.connect(ctx, target)
	if err != nil {
		return fail(err, "connecting to target chain")
	}
	defer targetLedger.Close()

	res, err := r.scanner.Scan(ctx, originLedger, origin, window)
	if err != nil {
		return fail(err, "scanning")
	}
	rr.Head = res.Head
	rr.FromBlock = res.From
	rr.EventsFound = len(res.Events)
	rr.Malformed = res.Malformed

	logger.Info().
		Uint64("from", res.From).
		Uint64("to", res.To).
		Int("events", len(res.Events)).
		Int("malformed", len(res.Malformed)).
		Msg("scan done")

	seen := make(map[string]bool, len(res.Events))
	for i := range res.Events {
		ev := &res.Events[i]
		if ctx.Err() != nil {
			rr.Actions = append(rr.Actions, skipped(ev, ctx.Err()))
			continue
		}
		ar := r.processEvent(ctx, exec, ev, target, targetLedger, seen, logger)
		rr.Actions = append(rr.Actions, ar)
	}

	rr.Actions = append(rr.Actions, r.recheckUnresolved(ctx, exec, role, targetLedger, seen, logger)...)
	return rr
}

func (r *Relayer) processEvent(ctx context.Context, exec *Executor, ev *types.BridgeEvent, target *registry.Binding, ledger Ledger, seen map[string]bool, logger zerolog.Logger) types.ActionReport {
	key := ev.Key()
	elog := logger.With().
		Str("originTx", ev.TxHash.Hex()).
		Uint("logIndex", ev.LogIndex).
		Str("kind", string(ev.Kind)).
		Logger()

	if seen[key] {
		return report(ev, types.OutcomeAlreadyRelayed, "duplicate in scan")
	}
	seen[key] = true

	existing, err := r.store.Get(key)
	if err != nil {
		elog.Error().Err(err).Msg("reading relay store")
		return skipped(ev, errors.Wrap(err, "reading relay store"))
	}
	if existing != nil {
		return r.revisit(ctx, exec, existing, ledger, elog)
	}

	action, err := Translate(ev, target.Address)
	if err != nil {
		elog.Warn().Err(err).Msg("skipping event")
		return skipped(ev, err)
	}

	call, err := exec.Prepare(ctx, ledger, target, action)
	if err != nil {
		elog.Warn().Err(err).Msg("skipping event")
		return skipped(ev, err)
	}

	rec := newRecord(ev, target.Role)
	claimed, err := r.store.Claim(rec)
	if err != nil {
		// the claim may have landed even though the call failed
		elog.Error().Err(err).Msg("claiming relay")
		if rerr := r.store.Release(key); rerr != nil {
			elog.Error().Err(rerr).Msg("releasing claim")
		}
		return skipped(ev, errors.Wrap(err, "claiming relay"))
	}
	if !claimed {
		return report(ev, types.OutcomeAlreadyRelayed, "claimed by another relayer")
	}

	sub, err := exec.Submit(ctx, ledger, target, call)
	if sub == nil {
		// nothing was signed, the event can be relayed on a later pass
		elog.Error().Err(err).Msg("building relay transaction")
		if rerr := r.store.Release(key); rerr != nil {
			elog.Error().Err(rerr).Msg("releasing claim")
			r.persist(rec, types.StatusUnresolved, rerr, elog)
		}
		return skipped(ev, err)
	}

	rec.DestTxHash = sub.Hash.Hex()
	rec.Nonce = sub.Nonce
	if err != nil {
		elog.Error().Err(err).Str("destTx", rec.DestTxHash).Msg("sending relay transaction")
		r.persist(rec, types.StatusUnresolved, err, elog)
		return r.resolved(ev, rec, types.OutcomeUnresolved, err)
	}
	r.persist(rec, types.StatusSubmitting, nil, elog)

	outcome, receipt, err := exec.Await(ctx, ledger, sub)
	switch outcome {
	case types.OutcomeConfirmed:
		elog.Info().Str("destTx", rec.DestTxHash).Uint64("gasUsed", receipt.GasUsed).Msg("relay confirmed")
	case types.OutcomeReverted:
		elog.Error().Err(err).Str("destTx", rec.DestTxHash).Msg("relay reverted")
	default:
		elog.Warn().Err(err).Str("destTx", rec.DestTxHash).Msg("relay unresolved, re-checked on a later pass")
	}
	r.persist(rec, statusOf(outcome), err, elog)
	return r.resolved(ev, rec, outcome, err)
}

// revisit handles an event that already has a record. Unresolved relays are
// re-checked by receipt, never resubmitted.
func (r *Relayer) revisit(ctx context.Context, exec *Executor, rec *types.RelayRecord, ledger Ledger, elog zerolog.Logger) types.ActionReport {
	ar := recordReport(rec)
	switch rec.Status {
	case types.StatusConfirmed, types.StatusReverted:
		ar.Outcome = types.OutcomeAlreadyRelayed
		ar.Reason = "already " + rec.Status
		return ar
	}

	outcome, _, err := exec.Recheck(ctx, ledger, rec)
	elog.Info().Str("destTx", rec.DestTxHash).Str("outcome", string(outcome)).Msg("re-checked relay")
	if statusOf(outcome) != rec.Status {
		r.persist(rec, statusOf(outcome), err, elog)
	}
	ar.Outcome = outcome
	ar.Reason = reason("re-checked", err)
	return ar
}

// recheckUnresolved re-checks relays of role that fell out of the scan window
// without a final status: unresolved ones, and signed ones left submitting by
// an interrupted pass.
func (r *Relayer) recheckUnresolved(ctx context.Context, exec *Executor, role types.ChainRole, ledger Ledger, seen map[string]bool, logger zerolog.Logger) []types.ActionReport {
	var records []*types.RelayRecord
	for _, status := range []string{types.StatusUnresolved, types.StatusSubmitting} {
		recs, err := r.store.ListByStatus(status)
		if err != nil {
			logger.Error().Err(err).Str("status", status).Msg("listing open relays")
			continue
		}
		records = append(records, recs...)
	}

	var reports []types.ActionReport
	for _, rec := range records {
		if rec.OriginRole != role.String() || seen[rec.Key] || ctx.Err() != nil {
			continue
		}
		if rec.Status == types.StatusSubmitting && rec.DestTxHash == "" {
			continue
		}
		seen[rec.Key] = true
		elog := logger.With().Str("originTx", rec.OriginTxHash).Uint("logIndex", rec.LogIndex).Str("kind", rec.Kind).Logger()
		reports = append(reports, r.revisit(ctx, exec, rec, ledger, elog))
	}
	return reports
}

func (r *Relayer) persist(rec *types.RelayRecord, status string, cause error, elog zerolog.Logger) {
	rec.Status = status
	if cause != nil {
		rec.Message = appendMessage(rec.Message, cause.Error())
	}
	if err := r.store.Update(rec); err != nil {
		elog.Error().Err(err).Str("status", status).Msg("error saving relay record")
	}
}

func (r *Relayer) resolved(ev *types.BridgeEvent, rec *types.RelayRecord, outcome types.Outcome, err error) types.ActionReport {
	ar := report(ev, outcome, reason("", err))
	ar.DestTxHash = rec.DestTxHash
	nonce := rec.Nonce
	ar.Nonce = &nonce
	return ar
}

func newRecord(ev *types.BridgeEvent, target types.ChainRole) *types.RelayRecord {
	amount := ""
	if ev.Amount != nil {
		amount = ev.Amount.String()
	}
	return &types.RelayRecord{
		Key:          ev.Key(),
		Status:       types.StatusSubmitting,
		OriginRole:   ev.Role.String(),
		OriginTxHash: ev.TxHash.Hex(),
		LogIndex:     ev.LogIndex,
		OriginBlock:  ev.BlockNumber,
		Kind:         string(ev.Kind),
		Amount:       amount,
		TargetRole:   target.String(),
		TsFound:      time.Now().Unix(),
	}
}

func report(ev *types.BridgeEvent, outcome types.Outcome, reason string) types.ActionReport {
	return types.ActionReport{
		Key:      ev.Key(),
		Kind:     ev.Kind,
		OriginTx: ev.TxHash.Hex(),
		Outcome:  outcome,
		Reason:   reason,
	}
}

func skipped(ev *types.BridgeEvent, err error) types.ActionReport {
	return report(ev, types.OutcomeSkipped, err.Error())
}

func recordReport(rec *types.RelayRecord) types.ActionReport {
	nonce := rec.Nonce
	ar := types.ActionReport{
		Key:        rec.Key,
		Kind:       types.EventKind(rec.Kind),
		OriginTx:   rec.OriginTxHash,
		DestTxHash: rec.DestTxHash,
	}
	if rec.DestTxHash != "" {
		ar.Nonce = &nonce
	}
	return ar
}

func statusOf(o types.Outcome) string {
	switch o {
	case types.OutcomeConfirmed:
		return types.StatusConfirmed
	case types.OutcomeReverted:
		return types.StatusReverted
	}
	return types.StatusUnresolved
}

func reason(prefix string, err error) string {
	switch {
	case err == nil:
		return prefix
	case prefix == "":
		return err.Error()
	}
	return prefix + ": " + err.Error()
}

func appendMessage(msg, add string) string {
	if msg == "" {
		return add
	}
	return msg + "; " + add
}

// Worker_relay runs a relay pass every interval until ctx is cancelled.
func Worker_relay(ctx context.Context, r *Relayer, window uint64, interval time.Duration) {
	for {
		report := r.Relay(ctx, window)
		for _, rr := range report.Roles {
			r.log.Info().
				Str("role", rr.Role).
				Uint64("head", rr.Head).
				Int("events", rr.EventsFound).
				Int("confirmed", rr.Count(types.OutcomeConfirmed)).
				Int("reverted", rr.Count(types.OutcomeReverted)).
				Int("unresolved", rr.Count(types.OutcomeUnresolved)).
				Int("skipped", rr.Count(types.OutcomeSkipped)).
				Str("error", rr.Error).
				Msg("relay pass done")
		}

		select {
		case <-ctx.Done():
			r.log.Info().Msg("relay worker stopped")
			return
		case <-time.After(interval):
		}
	}
}
