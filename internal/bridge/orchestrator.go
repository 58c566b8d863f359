package bridge

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/wrapgate/bridge/internal/config"
	"github.com/wrapgate/bridge/internal/gateway"
	"github.com/wrapgate/bridge/internal/ledger"
	"github.com/wrapgate/bridge/pkg/notify"
)

// AssetRef identifies a bridgeable asset. Immutable, parameter only.
type AssetRef struct {
	Contract common.Address
	TokenId  *big.Int
	Standard string
}

func (a AssetRef) key() string {
	return a.Contract.Hex() + "/" + a.TokenId.String()
}

// Session is the chain session manager surface the orchestrator drives.
type Session interface {
	SwitchTo(ctx context.Context, chainKey string) error
	Endpoint(chainKey string) (*config.ChainEndpoint, error)
	CheckFunds(ctx context.Context) error
}

// Gateway is the typed contract-call surface of whatever chain is active.
type Gateway interface {
	OwnerOf(ctx context.Context, assetContract common.Address, tokenId *big.Int) (common.Address, error)
	Approve(ctx context.Context, assetContract, operator common.Address, tokenId *big.Int) (common.Hash, error)
	IsLocked(ctx context.Context, lockContract common.Address, tokenId *big.Int) (bool, error)
	Lock(ctx context.Context, lockContract, assetContract common.Address, tokenId *big.Int, transferId [32]byte) (common.Hash, error)
	Unlock(ctx context.Context, lockContract common.Address, transferId [32]byte) (common.Hash, error)
	MintWrapped(ctx context.Context, mintContract, to, originalContract common.Address, tokenId *big.Int, transferId [32]byte, metadataUri string) (common.Hash, error)
	BurnWrapped(ctx context.Context, mintContract common.Address, tokenId *big.Int, transferId [32]byte) (common.Hash, error)
	Processed(ctx context.Context, contract common.Address, transferId [32]byte) (bool, error)
}

// Eligibility is the allow-list oracle gating the forward path.
type Eligibility interface {
	Verify(ctx context.Context, tokenId *big.Int, principal common.Address) error
}

// Ledger records attempts. Advisory only: failures here never block the
// chain-level protocol.
type Ledger interface {
	Insert(ctx context.Context, record *ledger.TransferRecord) (*ledger.TransferRecord, error)
	Update(ctx context.Context, id string, patch ledger.Patch) error
	FindActiveTransfer(ctx context.Context, tokenId, targetChain string) (*ledger.WrappedInfo, error)
	FindTransfersByOwner(ctx context.Context, owner string, status ledger.Status) ([]ledger.TransferRecord, error)
}

// Orchestrator drives the multi-step transfer protocol across two chains.
// One attempt is strictly sequential; concurrent attempts on the same asset
// are rejected up front.
type Orchestrator struct {
	initiator common.Address
	session   Session
	gateway   Gateway
	verifier  Eligibility
	ledger    Ledger
	sink      notify.Sink
	log       log15.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}

	// attempt serializes every switch-dependent sequence. The wallet's active
	// network is process-wide mutable state; two interleaved attempts would
	// resolve Conn() against each other's chain.
	attempt sync.Mutex
}

func New(initiator common.Address, session Session, gw Gateway, verifier Eligibility, lg Ledger, sink notify.Sink, log log15.Logger) *Orchestrator {
	return &Orchestrator{
		initiator: initiator,
		session:   session,
		gateway:   gw,
		verifier:  verifier,
		ledger:    lg,
		sink:      sink,
		log:       log,
		now:       time.Now,
		inflight:  make(map[string]struct{}),
	}
}

// Initiator is the signing identity every attempt runs as.
func (o *Orchestrator) Initiator() common.Address { return o.initiator }

// Result of a completed leg.
type Result struct {
	TransferId TransferId
	LockHash   common.Hash
	MintHash   common.Hash
	BurnHash   common.Hash
	UnlockHash common.Hash
	RecordId   string
}

// BridgeForward locks the asset on sourceChain and mints a wrapped copy on
// destChain. The lock is the commitment point: from there the orchestrator
// either completes the mint or explicitly unlocks.
func (o *Orchestrator) BridgeForward(ctx context.Context, asset AssetRef, sourceChain, destChain, metadataUri string) (*Result, error) {
	if err := o.acquire(asset); err != nil {
		return nil, err
	}
	defer o.release(asset)
	o.attempt.Lock()
	defer o.attempt.Unlock()

	srcEp, err := o.session.Endpoint(sourceChain)
	if err != nil {
		return nil, err
	}
	dstEp, err := o.session.Endpoint(destChain)
	if err != nil {
		return nil, err
	}

	st := newMachine(o.log)
	tid := NewTransferId(o.initiator, asset.Contract, dstEp.MintContract, asset.TokenId, o.now())
	st.to(Initiated)
	o.log.Info("Starting forward bridge", "token", asset.TokenId, "source", sourceChain, "dest", destChain, "transferId", tid.Hex())

	// Durable marker that an attempt is underway, before any chain call.
	recId := o.insert(ctx, &ledger.TransferRecord{
		TransferId:     tid.Hex(),
		Type:           ledger.TypeLockAndMint,
		TokenId:        asset.TokenId.String(),
		Standard:       asset.Standard,
		SourceChain:    sourceChain,
		TargetChain:    destChain,
		SourceContract: asset.Contract.Hex(),
		TargetContract: dstEp.MintContract.Hex(),
		Status:         ledger.StatusPending,
		IsActive:       true,
		Sender:         o.initiator.Hex(),
		Receiver:       o.initiator.Hex(),
		Timestamp:      o.now().UnixMilli(),
	})

	// The verifier contract lives on the source chain, so the switch has to
	// happen before the eligibility gate. A network switch spends no gas.
	if err = o.session.SwitchTo(ctx, sourceChain); err != nil {
		o.fail(ctx, recId)
		return nil, errors.Wrap(err, "switch to source chain failed")
	}

	// Eligibility gate. Re-verified every attempt, never cached.
	if err = o.verifier.Verify(ctx, asset.TokenId, o.initiator); err != nil {
		o.fail(ctx, recId)
		return nil, err
	}

	// Remaining source-side preconditions, all before spending any gas.
	owner, err := o.gateway.OwnerOf(ctx, asset.Contract, asset.TokenId)
	if err != nil {
		o.fail(ctx, recId)
		return nil, err
	}
	if owner != o.initiator {
		o.fail(ctx, recId)
		return nil, gateway.ErrNotOwner
	}
	locked, err := o.gateway.IsLocked(ctx, srcEp.LockContract, asset.TokenId)
	if err != nil {
		o.fail(ctx, recId)
		return nil, err
	}
	if locked {
		o.fail(ctx, recId)
		return nil, gateway.ErrAlreadyLocked
	}
	if err = o.session.CheckFunds(ctx); err != nil {
		o.fail(ctx, recId)
		return nil, err
	}
	st.to(SourceVerified)

	// Approve strictly before lock.
	if _, err = o.gateway.Approve(ctx, asset.Contract, srcEp.LockContract, asset.TokenId); err != nil {
		o.fail(ctx, recId)
		return nil, err
	}
	lockHash, err := o.gateway.Lock(ctx, srcEp.LockContract, asset.Contract, asset.TokenId, tid)
	if err != nil {
		o.fail(ctx, recId)
		return nil, err
	}
	st.to(Locked)
	o.update(ctx, recId, ledger.Patch{LockHash: lockHash.Hex()})
	o.sink.Progress("Locked asset on source chain", "chain", sourceChain, "hash", lockHash)

	mintHash, err := o.mintOnDest(ctx, st, dstEp, asset, tid, metadataUri, destChain)
	if err != nil {
		return nil, o.compensate(ctx, st, srcEp, recId, tid, err)
	}
	st.to(Minted)
	o.update(ctx, recId, ledger.Patch{MintHash: mintHash.Hex(), Status: ledger.StatusCompleted})
	o.sink.Progress("Bridge completed, wrapped copy is live", "chain", destChain, "hash", mintHash, "transferId", tid.Hex())

	return &Result{TransferId: tid, LockHash: lockHash, MintHash: mintHash, RecordId: recId}, nil
}

func (o *Orchestrator) mintOnDest(ctx context.Context, st *machine, dstEp *config.ChainEndpoint, asset AssetRef, tid TransferId, metadataUri, destChain string) (common.Hash, error) {
	if err := o.session.SwitchTo(ctx, destChain); err != nil {
		return common.Hash{}, errors.Wrap(err, "switch to destination chain failed")
	}
	processed, err := o.gateway.Processed(ctx, dstEp.MintContract, tid)
	if err != nil {
		return common.Hash{}, err
	}
	if processed {
		return common.Hash{}, gateway.ErrAlreadyProcessed
	}
	st.to(DestVerified)

	return o.gateway.MintWrapped(ctx, dstEp.MintContract, o.initiator, asset.Contract, asset.TokenId, tid, metadataUri)
}

// compensate is the designated reversing action when the mint leg fails after
// a committed lock: switch back and unlock with the very same transfer id.
func (o *Orchestrator) compensate(ctx context.Context, st *machine, srcEp *config.ChainEndpoint, recId string, tid TransferId, cause error) error {
	st.to(MintFailed)
	o.log.Warn("Mint failed after lock, unwinding", "transferId", tid.Hex(), "err", cause)
	st.to(Unlocking)

	unlockErr := o.session.SwitchTo(ctx, srcEp.Key)
	var unlockHash common.Hash
	if unlockErr == nil {
		unlockHash, unlockErr = o.gateway.Unlock(ctx, srcEp.LockContract, tid)
	}
	if unlockErr != nil {
		// Asset locked, no wrapped copy, ledger about to disagree with the
		// chain. Keep the record active so reconciliation can find it.
		o.update(ctx, recId, ledger.Patch{Status: ledger.StatusFailed})
		stranded := &StrandedError{TransferId: tid, State: st.current(), Cause: cause, Compensate: unlockErr}
		o.sink.Alert(ctx, stranded.Error())
		return stranded
	}

	st.to(Unlocked)
	o.fail(ctx, recId)
	o.update(ctx, recId, ledger.Patch{UnlockHash: unlockHash.Hex()})
	o.sink.Progress("Bridge failed, asset was unlocked and returned", "transferId", tid.Hex(), "hash", unlockHash)
	return errors.Wrap(cause, "bridge failed, the asset was unlocked and returned")
}

// BridgeBackward burns the wrapped copy and unlocks the original, using the
// transfer id recorded by the forward leg.
func (o *Orchestrator) BridgeBackward(ctx context.Context, asset AssetRef, info *ledger.WrappedInfo) (*Result, error) {
	if info == nil || !info.IsWrapped || info.Record == nil {
		return nil, ErrNoActiveTransfer
	}
	tid := ParseTransferId(info.TransferId)
	if tid.IsZero() {
		return nil, errors.New("active transfer record carries no transfer id")
	}

	if err := o.acquire(asset); err != nil {
		return nil, err
	}
	defer o.release(asset)
	o.attempt.Lock()
	defer o.attempt.Unlock()

	wrappedEp, err := o.session.Endpoint(info.Record.TargetChain)
	if err != nil {
		return nil, err
	}
	originEp, err := o.session.Endpoint(info.OriginalChain)
	if err != nil {
		return nil, err
	}

	st := newMachine(o.log)
	o.log.Info("Starting backward bridge", "token", asset.TokenId, "wrappedChain", wrappedEp.Key, "originChain", originEp.Key, "transferId", tid.Hex())

	recId := o.insert(ctx, &ledger.TransferRecord{
		TransferId:     tid.Hex(),
		Type:           ledger.TypeBurnAndUnlock,
		TokenId:        asset.TokenId.String(),
		SourceChain:    wrappedEp.Key,
		TargetChain:    originEp.Key,
		SourceContract: wrappedEp.MintContract.Hex(),
		TargetContract: info.OriginalContract,
		Status:         ledger.StatusPending,
		Sender:         o.initiator.Hex(),
		Receiver:       o.initiator.Hex(),
		Timestamp:      o.now().UnixMilli(),
	})

	// Burn strictly before unlock.
	st.to(BurnInitiated)
	if err = o.session.SwitchTo(ctx, wrappedEp.Key); err != nil {
		o.fail(ctx, recId)
		return nil, errors.Wrap(err, "switch to wrapped chain failed")
	}
	burnHash, err := o.gateway.BurnWrapped(ctx, wrappedEp.MintContract, asset.TokenId, tid)
	if err != nil {
		o.fail(ctx, recId)
		return nil, err
	}
	st.to(Burned)
	o.update(ctx, recId, ledger.Patch{BurnHash: burnHash.Hex()})
	o.sink.Progress("Burned wrapped copy", "chain", wrappedEp.Key, "hash", burnHash)

	st.to(UnlockInitiated)
	unlockErr := o.session.SwitchTo(ctx, originEp.Key)
	var unlockHash common.Hash
	if unlockErr == nil {
		unlockHash, unlockErr = o.gateway.Unlock(ctx, originEp.LockContract, tid)
	}
	if unlockErr != nil {
		// The wrapped copy is gone and the original is still locked. There is
		// no compensating re-mint; this must not be silently retried.
		o.update(ctx, recId, ledger.Patch{Status: ledger.StatusFailed})
		stranded := &StrandedError{TransferId: tid, State: st.current(), Cause: unlockErr}
		o.sink.Alert(ctx, stranded.Error())
		return nil, stranded
	}
	st.to(Unlocked)

	// Close out both records: the reversal completes, the originating wrap
	// stops being active.
	o.update(ctx, recId, ledger.Patch{UnlockHash: unlockHash.Hex(), Status: ledger.StatusCompleted})
	o.update(ctx, info.Record.Id, ledger.Patch{IsActive: ledger.BoolPtr(false)})
	o.sink.Progress("Asset returned to origin chain", "chain", originEp.Key, "hash", unlockHash, "transferId", tid.Hex())

	return &Result{TransferId: tid, BurnHash: burnHash, UnlockHash: unlockHash, RecordId: recId}, nil
}

// Wrapped resolves the read-side projection for an asset on its current
// chain, the input of the backward path.
func (o *Orchestrator) Wrapped(ctx context.Context, asset AssetRef, currentChain string) (*ledger.WrappedInfo, error) {
	info, err := o.ledger.FindActiveTransfer(ctx, asset.TokenId.String(), currentChain)
	if err != nil {
		return nil, errors.Wrap(err, "query wrapped projection failed")
	}
	return info, nil
}

// Drift is one ledger record whose state disagrees with on-chain truth.
type Drift struct {
	RecordId    string
	TransferId  string
	Observation string
}

// Reconcile compares the owner's pending ledger records against the chains'
// processedTransfers predicates and reports the drift set. Read-only; the
// ledger is advisory, the chain is authoritative.
func (o *Orchestrator) Reconcile(ctx context.Context, owner string) ([]Drift, error) {
	o.attempt.Lock()
	defer o.attempt.Unlock()

	records, err := o.ledger.FindTransfersByOwner(ctx, owner, ledger.StatusPending)
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for i := range records {
		rec := &records[i]
		tid := ParseTransferId(rec.TransferId)
		if tid.IsZero() {
			continue
		}

		switch rec.Type {
		case ledger.TypeLockAndMint:
			ep, err := o.session.Endpoint(rec.TargetChain)
			if err != nil {
				continue
			}
			if err = o.session.SwitchTo(ctx, rec.TargetChain); err != nil {
				return drifts, err
			}
			processed, err := o.gateway.Processed(ctx, ep.MintContract, tid)
			if err != nil {
				return drifts, err
			}
			if processed {
				drifts = append(drifts, Drift{
					RecordId:    rec.Id,
					TransferId:  rec.TransferId,
					Observation: "mint gateway processed this transfer but the ledger still says Pending",
				})
			}
		case ledger.TypeBurnAndUnlock:
			ep, err := o.session.Endpoint(rec.TargetChain)
			if err != nil {
				continue
			}
			if err = o.session.SwitchTo(ctx, rec.TargetChain); err != nil {
				return drifts, err
			}
			processed, err := o.gateway.Processed(ctx, ep.LockContract, tid)
			if err != nil {
				return drifts, err
			}
			if processed {
				drifts = append(drifts, Drift{
					RecordId:    rec.Id,
					TransferId:  rec.TransferId,
					Observation: "lock gateway released this transfer but the ledger still says Pending",
				})
			}
		}
	}
	for _, d := range drifts {
		o.log.Warn("Ledger drift detected", "record", d.RecordId, "transferId", d.TransferId, "observation", d.Observation)
	}
	return drifts, nil
}

func (o *Orchestrator) acquire(asset AssetRef) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[asset.key()]; busy {
		return ErrTransferInFlight
	}
	o.inflight[asset.key()] = struct{}{}
	return nil
}

func (o *Orchestrator) release(asset AssetRef) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, asset.key())
}

// insert writes the pending record and returns its id, or "" when the ledger
// is unreachable; the attempt proceeds either way.
func (o *Orchestrator) insert(ctx context.Context, record *ledger.TransferRecord) string {
	inserted, err := o.ledger.Insert(ctx, record)
	if err != nil {
		o.log.Warn("Ledger insert failed, proceeding without record", "transferId", record.TransferId, "err", err)
		return ""
	}
	return inserted.Id
}

func (o *Orchestrator) update(ctx context.Context, recId string, patch ledger.Patch) {
	if recId == "" {
		return
	}
	if err := o.ledger.Update(ctx, recId, patch); err != nil {
		o.log.Warn("Ledger update dropped", "id", recId, "err", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, recId string) {
	o.update(ctx, recId, ledger.Patch{Status: ledger.StatusFailed, IsActive: ledger.BoolPtr(false)})
}
