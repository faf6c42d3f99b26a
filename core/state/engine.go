// Package state implements C6, the transactional state-transition engine:
// per-kind stateful validation, block-level conflict detection, and atomic
// commit against the C5 box store (spec §4.6, §5).
package state

import (
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nhbchain/boxchain/core/codec"
	boxerrors "github.com/nhbchain/boxchain/core/errors"
	"github.com/nhbchain/boxchain/core/types"
	"github.com/nhbchain/boxchain/native/contract"
	"github.com/nhbchain/boxchain/storage/boxstore"
)

// timestampSentinelID is the box-store key the engine uses to persist the
// last-applied block timestamp across restarts, alongside the version head
// boxstore.Store already tracks. It is never exposed as a Box to callers.
var timestampSentinelID = codec.H([]byte("timestamp"))

// Engine is the single-writer state-transition engine described by spec §5:
// every ApplyBlock call is serialized by mu, matching native/escrow's
// pattern of a mutex-guarded engine over an injected store.
type Engine struct {
	mu sync.Mutex

	store    *boxstore.Store
	contract *contract.Engine
	nowFn    func() uint64
	tracer   trace.Tracer
	metrics  *Metrics
	log      *slog.Logger

	ts         uint64
	version    [32]byte
	hasVersion bool
}

// NewEngine wraps store as C6, recovering the last committed timestamp and
// version head so a restarted process resumes exactly where it left off.
func NewEngine(store *boxstore.Store) *Engine {
	e := &Engine{
		store:    store,
		contract: contract.NewEngine(nil),
		nowFn:    func() uint64 { return uint64(time.Now().UnixMilli()) },
		tracer:   defaultTracer(),
		metrics:  DefaultMetrics(),
		log:      slog.Default().With("component", "state.Engine"),
	}
	e.recover()
	return e
}

func (e *Engine) recover() {
	if version, ok := e.store.LastVersionID(); ok {
		e.version = version
		e.hasVersion = true
	}
	if raw, ok, err := e.store.Get(timestampSentinelID); err == nil && ok && len(raw) == 8 {
		e.ts = decodeUint64(raw)
	}
}

// SetNowFunc overrides the engine's wall-clock source, for deterministic
// tests (native/escrow/engine_milestone.go's injectable-clock pattern).
func (e *Engine) SetNowFunc(fn func() uint64) {
	if fn != nil {
		e.nowFn = fn
	}
}

// SetContractEngine overrides the native/contract dispatcher this engine
// hands ContractMethodExecution calls to.
func (e *Engine) SetContractEngine(c *contract.Engine) {
	if c != nil {
		e.contract = c
	}
}

// SetTracer overrides the engine's tracer.
func (e *Engine) SetTracer(t trace.Tracer) {
	if t != nil {
		e.tracer = t
	}
}

// SetMetrics overrides the engine's metrics sink.
func (e *Engine) SetMetrics(m *Metrics) {
	e.metrics = m
}

// SetLogger overrides the engine's structured logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.log = l
	}
}

// Timestamp returns the timestamp of the last block this engine committed,
// or 0 if none has been applied yet.
func (e *Engine) Timestamp() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ts
}

// Version returns the current version head, or ok=false before the first
// block is applied.
func (e *Engine) Version() (version [32]byte, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version, e.hasVersion
}

// ClosedBox looks up the live box with id, decoding it from the store.
func (e *Engine) ClosedBox(id [32]byte) (box types.Box, ok bool, err error) {
	data, ok, gerr := e.store.Get(id)
	if gerr != nil {
		return nil, false, boxerrors.New(boxerrors.StoreError, "state.ClosedBox", gerr)
	}
	if !ok {
		return nil, false, nil
	}
	decoded, derr := codec.DecodeBox(data)
	if derr != nil {
		return nil, false, boxerrors.New(boxerrors.StoreError, "state.ClosedBox", derr)
	}
	return decoded, true, nil
}

// Genesis commits the initial snapshot directly, bypassing ApplyBlock's
// signature/conservation checks since genesis boxes have no spending
// transaction behind them. It must be called at most once, before any
// ApplyBlock or RollbackTo (spec §6: genesis seeds the version the first
// real block's parent points at).
func (e *Engine) Genesis(boxes []types.Box, timestamp uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasVersion {
		return boxerrors.Errorf(boxerrors.StateInvalid, "state.Genesis", "store already has a version head")
	}

	produced := make(map[[32]byte][]byte, len(boxes)+1)
	for _, b := range boxes {
		encoded, err := codec.EncodeBox(b)
		if err != nil {
			return boxerrors.New(boxerrors.Malformed, "state.Genesis", err)
		}
		produced[b.BoxID()] = encoded
	}
	produced[timestampSentinelID] = codec.PutUint64(timestamp)

	version := codec.H([]byte("genesis"), codec.PutUint64(timestamp))
	if err := e.store.Update(version, nil, produced); err != nil {
		return err
	}

	e.ts = timestamp
	e.version = version
	e.hasVersion = true
	e.log.Info("genesis committed", "version", version, "box_count", len(boxes))
	return nil
}

// RollbackTo discards every version strictly after target, restoring the
// store and re-deriving (ts, version) from the surviving state (spec §4.5).
func (e *Engine) RollbackTo(target [32]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Rollback(target); err != nil {
		e.log.Debug("rollback failed", "target", target, "error", err)
		return err
	}
	e.ts, e.version, e.hasVersion = 0, [32]byte{}, false
	e.recover()
	e.metrics.observeRollback()
	e.log.Info("rolled back", "target", target)
	return nil
}

func decodeUint64(b []byte) uint64 {
	var n uint64
	for _, c := range b[:8] {
		n = n<<8 | uint64(c)
	}
	return n
}
