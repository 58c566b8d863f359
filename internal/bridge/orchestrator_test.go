package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/wrapgate/bridge/internal/config"
	"github.com/wrapgate/bridge/internal/gateway"
	"github.com/wrapgate/bridge/internal/ledger"
	"github.com/wrapgate/bridge/pkg/notify"
)

var (
	initiator = common.HexToAddress("0x1111111111111111111111111111111111111111")
	assetAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	amoyLock  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	amoyMint  = common.HexToAddress("0x4444444444444444444444444444444444444444")
	baseLock  = common.HexToAddress("0x5555555555555555555555555555555555555555")
	baseMint  = common.HexToAddress("0x6666666666666666666666666666666666666666")
	testAsset = AssetRef{Contract: assetAddr, TokenId: big.NewInt(42), Standard: "ERC721"}
)

func discardLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

// callLog records fake interactions; attempts may run concurrently.
type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (c *callLog) add(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.entries...)
}

type fakeSession struct {
	endpoints map[string]*config.ChainEndpoint
	calls     *callLog
	switchErr map[string]error
	fundsErr  error
}

func (s *fakeSession) SwitchTo(_ context.Context, chainKey string) error {
	s.calls.add("switch:" + chainKey)
	if err, ok := s.switchErr[chainKey]; ok {
		return err
	}
	return nil
}

func (s *fakeSession) Endpoint(chainKey string) (*config.ChainEndpoint, error) {
	ep, ok := s.endpoints[chainKey]
	if !ok {
		return nil, fmt.Errorf("no endpoint configured for chain %s", chainKey)
	}
	return ep, nil
}

func (s *fakeSession) CheckFunds(_ context.Context) error { return s.fundsErr }

type fakeGateway struct {
	calls     *callLog
	owner     common.Address
	locked    bool
	processed bool

	approveErr error
	lockErr    error
	mintErr    error
	burnErr    error
	unlockErr  error

	lockTid   TransferId
	unlockTid TransferId
	burnTid   TransferId
	mintTid   TransferId
}

func (g *fakeGateway) OwnerOf(_ context.Context, _ common.Address, _ *big.Int) (common.Address, error) {
	g.calls.add("ownerOf")
	return g.owner, nil
}

func (g *fakeGateway) Approve(_ context.Context, _, _ common.Address, _ *big.Int) (common.Hash, error) {
	g.calls.add("approve")
	if g.approveErr != nil {
		return common.Hash{}, g.approveErr
	}
	return common.HexToHash("0xa1"), nil
}

func (g *fakeGateway) IsLocked(_ context.Context, _ common.Address, _ *big.Int) (bool, error) {
	g.calls.add("isLocked")
	return g.locked, nil
}

func (g *fakeGateway) Lock(_ context.Context, _, _ common.Address, _ *big.Int, transferId [32]byte) (common.Hash, error) {
	g.calls.add("lock")
	if g.lockErr != nil {
		return common.Hash{}, g.lockErr
	}
	g.lockTid = transferId
	return common.HexToHash("0xb2"), nil
}

func (g *fakeGateway) Unlock(_ context.Context, _ common.Address, transferId [32]byte) (common.Hash, error) {
	g.calls.add("unlock")
	if g.unlockErr != nil {
		return common.Hash{}, g.unlockErr
	}
	g.unlockTid = transferId
	return common.HexToHash("0xc3"), nil
}

func (g *fakeGateway) MintWrapped(_ context.Context, _, _, _ common.Address, _ *big.Int, transferId [32]byte, _ string) (common.Hash, error) {
	g.calls.add("mint")
	if g.mintErr != nil {
		return common.Hash{}, g.mintErr
	}
	g.mintTid = transferId
	return common.HexToHash("0xd4"), nil
}

func (g *fakeGateway) BurnWrapped(_ context.Context, _ common.Address, _ *big.Int, transferId [32]byte) (common.Hash, error) {
	g.calls.add("burn")
	if g.burnErr != nil {
		return common.Hash{}, g.burnErr
	}
	g.burnTid = transferId
	return common.HexToHash("0xe5"), nil
}

func (g *fakeGateway) Processed(_ context.Context, _ common.Address, _ [32]byte) (bool, error) {
	g.calls.add("processed")
	return g.processed, nil
}

type fakeVerifier struct {
	err    error
	called int
}

func (v *fakeVerifier) Verify(_ context.Context, _ *big.Int, _ common.Address) error {
	v.called++
	return v.err
}

type fakeLedger struct {
	mu        sync.Mutex
	inserted  []*ledger.TransferRecord
	patches   map[string][]ledger.Patch
	insertErr error
	active    *ledger.WrappedInfo
	byOwner   []ledger.TransferRecord
}

func (l *fakeLedger) Insert(_ context.Context, record *ledger.TransferRecord) (*ledger.TransferRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.insertErr != nil {
		return nil, l.insertErr
	}
	rec := *record
	rec.Id = fmt.Sprintf("rec-%d", len(l.inserted)+1)
	l.inserted = append(l.inserted, &rec)
	return &rec, nil
}

func (l *fakeLedger) Update(_ context.Context, id string, patch ledger.Patch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.patches == nil {
		l.patches = make(map[string][]ledger.Patch)
	}
	l.patches[id] = append(l.patches[id], patch)
	return nil
}

func (l *fakeLedger) FindActiveTransfer(_ context.Context, _, _ string) (*ledger.WrappedInfo, error) {
	if l.active == nil {
		return &ledger.WrappedInfo{IsWrapped: false}, nil
	}
	return l.active, nil
}

func (l *fakeLedger) FindTransfersByOwner(_ context.Context, _ string, _ ledger.Status) ([]ledger.TransferRecord, error) {
	return l.byOwner, nil
}

// final applies the recorded patches to the inserted record.
func (l *fakeLedger) final(id string) *ledger.TransferRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var rec *ledger.TransferRecord
	for _, r := range l.inserted {
		if r.Id == id {
			cp := *r
			rec = &cp
		}
	}
	if rec == nil {
		return nil
	}
	for _, p := range l.patches[id] {
		if p.LockHash != "" {
			rec.LockHash = p.LockHash
		}
		if p.MintHash != "" {
			rec.MintHash = p.MintHash
		}
		if p.BurnHash != "" {
			rec.BurnHash = p.BurnHash
		}
		if p.UnlockHash != "" {
			rec.UnlockHash = p.UnlockHash
		}
		if p.Status != "" {
			rec.Status = p.Status
		}
		if p.IsActive != nil {
			rec.IsActive = *p.IsActive
		}
	}
	return rec
}

func testEndpoints() map[string]*config.ChainEndpoint {
	return map[string]*config.ChainEndpoint{
		"amoy": {
			Name: "Polygon Amoy", Key: "amoy", Id: 80002,
			LockContract: amoyLock, MintContract: amoyMint,
			GasLimit: big.NewInt(config.DefaultGasLimit), WaterLine: "0",
		},
		"base": {
			Name: "Base Sepolia", Key: "base", Id: 84532,
			LockContract: baseLock, MintContract: baseMint,
			GasLimit: big.NewInt(config.DefaultGasLimit), WaterLine: "0",
		},
	}
}

type fixture struct {
	orch    *Orchestrator
	session *fakeSession
	gw      *fakeGateway
	ver     *fakeVerifier
	ldg     *fakeLedger
	calls   *callLog
}

func newFixture() *fixture {
	f := &fixture{calls: &callLog{}}
	f.session = &fakeSession{endpoints: testEndpoints(), calls: f.calls, switchErr: map[string]error{}}
	f.gw = &fakeGateway{calls: f.calls, owner: initiator}
	f.ver = &fakeVerifier{}
	f.ldg = &fakeLedger{}
	f.orch = New(initiator, f.session, f.gw, f.ver, f.ldg, &notify.LogSink{Log: discardLogger()}, discardLogger())

	var mu sync.Mutex
	var tick int64
	f.orch.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return time.Unix(1700000000, tick)
	}
	return f
}

var forwardCalls = []string{
	"switch:amoy", "ownerOf", "isLocked", "approve", "lock",
	"switch:base", "processed", "mint",
}

func TestBridgeForwardRoundTrip(t *testing.T) {
	f := newFixture()

	res, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "ipfs://meta/42")
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if res.TransferId.IsZero() {
		t.Fatal("expected a transfer id")
	}
	if f.gw.lockTid != res.TransferId || f.gw.mintTid != res.TransferId {
		t.Fatal("lock and mint must see the same transfer id")
	}

	rec := f.ldg.final(res.RecordId)
	if rec == nil {
		t.Fatal("expected a ledger record")
	}
	if rec.Status != ledger.StatusCompleted || !rec.IsActive {
		t.Errorf("record = %s/active=%v, want Completed/active=true", rec.Status, rec.IsActive)
	}
	if rec.LockHash == "" || rec.MintHash == "" {
		t.Error("record missing receipt hashes")
	}

	// Return leg with the projection the forward leg produced.
	info := &ledger.WrappedInfo{
		IsWrapped:        true,
		OriginalChain:    "amoy",
		OriginalContract: assetAddr.Hex(),
		TransferId:       res.TransferId.Hex(),
		Record:           rec,
	}
	back, err := f.orch.BridgeBackward(context.Background(), testAsset, info)
	if err != nil {
		t.Fatalf("backward failed: %v", err)
	}
	if back.TransferId != res.TransferId {
		t.Fatal("return leg must reuse the original transfer id")
	}
	if f.gw.burnTid != res.TransferId || f.gw.unlockTid != res.TransferId {
		t.Fatal("burn and unlock must see the original transfer id")
	}

	orig := f.ldg.final(rec.Id)
	if orig.IsActive {
		t.Error("originating record must be inactive after the return leg")
	}
	reversal := f.ldg.final(back.RecordId)
	if reversal.Status != ledger.StatusCompleted {
		t.Errorf("reversal record = %s, want Completed", reversal.Status)
	}
}

func TestBridgeForwardOrdering(t *testing.T) {
	f := newFixture()

	_, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	require.NoError(t, err)
	require.Equal(t, forwardCalls, f.calls.list())
	require.Equal(t, 1, f.ver.called)
}

func TestBridgeForwardNotEligible(t *testing.T) {
	f := newFixture()
	f.ver.err = errors.New("principal is not eligible to bridge this asset")

	_, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	if err == nil {
		t.Fatal("expected eligibility failure")
	}
	// The switch to the verifier's chain is the only session interaction; no
	// gateway call, so no gas-spending side effect, may happen.
	if got := f.calls.list(); !reflect.DeepEqual(got, []string{"switch:amoy"}) {
		t.Fatalf("calls = %v, want only the source switch", got)
	}
	rec := f.ldg.final("rec-1")
	if rec.Status != ledger.StatusFailed || rec.IsActive {
		t.Errorf("record = %s/active=%v, want Failed/inactive", rec.Status, rec.IsActive)
	}
}

func TestBridgeForwardNotOwner(t *testing.T) {
	f := newFixture()
	f.gw.owner = common.HexToAddress("0x9999999999999999999999999999999999999999")

	_, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	if !errors.Is(err, gateway.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	for _, c := range f.calls.list() {
		if c == "approve" || c == "lock" || c == "mint" {
			t.Fatalf("mutating call %s issued despite failed ownership check", c)
		}
	}
}

func TestBridgeForwardAlreadyLocked(t *testing.T) {
	f := newFixture()
	f.gw.locked = true

	_, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	if !errors.Is(err, gateway.ErrAlreadyLocked) {
		t.Fatalf("err = %v, want ErrAlreadyLocked", err)
	}
	for _, c := range f.calls.list() {
		if c == "approve" || c == "lock" {
			t.Fatalf("mutating call %s issued for an already locked token", c)
		}
	}
}

func TestMintFailureCompensates(t *testing.T) {
	f := newFixture()
	f.gw.mintErr = errors.New("execution reverted: TokenAlreadyMinted")

	_, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	if err == nil {
		t.Fatal("expected failure")
	}
	var stranded *StrandedError
	if errors.As(err, &stranded) {
		t.Fatal("compensated failure must not be stranded")
	}

	if f.gw.unlockTid != f.gw.lockTid {
		t.Fatal("compensating unlock must reuse the lock's transfer id")
	}
	// Unlock happens back on the source chain.
	require.Equal(t, append(append([]string{}, forwardCalls...), "switch:amoy", "unlock"), f.calls.list())

	rec := f.ldg.final("rec-1")
	if rec.Status != ledger.StatusFailed || rec.IsActive {
		t.Errorf("record = %s/active=%v, want Failed/inactive", rec.Status, rec.IsActive)
	}
}

func TestFailureThenRetryMintsFreshTransferId(t *testing.T) {
	f := newFixture()
	f.gw.mintErr = errors.New("execution reverted: transfer already processed")

	_, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	if err == nil {
		t.Fatal("expected first attempt to fail")
	}
	t1 := f.gw.lockTid

	f.gw.mintErr = nil
	res, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if res.TransferId == t1 {
		t.Fatal("retry after a chain call must derive a fresh transfer id")
	}
}

func TestMintAndUnlockFailureIsStranded(t *testing.T) {
	f := newFixture()
	f.gw.mintErr = errors.New("execution reverted")
	f.gw.unlockErr = errors.New("rpc timeout")

	_, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	var stranded *StrandedError
	if !errors.As(err, &stranded) {
		t.Fatalf("err = %v, want StrandedError", err)
	}
	if stranded.Compensate == nil {
		t.Error("stranded error must carry the compensation failure")
	}

	// Record stays active so reconciliation can find the divergence.
	rec := f.ldg.final("rec-1")
	if rec.Status != ledger.StatusFailed || !rec.IsActive {
		t.Errorf("record = %s/active=%v, want Failed/active", rec.Status, rec.IsActive)
	}
}

func TestBridgeBackwardNoActiveRecord(t *testing.T) {
	f := newFixture()

	_, err := f.orch.BridgeBackward(context.Background(), testAsset, &ledger.WrappedInfo{IsWrapped: false})
	if !errors.Is(err, ErrNoActiveTransfer) {
		t.Fatalf("err = %v, want ErrNoActiveTransfer", err)
	}
	if got := f.calls.list(); len(got) != 0 {
		t.Fatalf("expected zero chain interactions, got %v", got)
	}
}

func TestBridgeBackwardUnlockFailureIsStranded(t *testing.T) {
	f := newFixture()
	f.gw.unlockErr = errors.New("rpc timeout")

	tid := NewTransferId(initiator, assetAddr, baseMint, testAsset.TokenId, time.Unix(1700000000, 0))
	info := &ledger.WrappedInfo{
		IsWrapped:        true,
		OriginalChain:    "amoy",
		OriginalContract: assetAddr.Hex(),
		TransferId:       tid.Hex(),
		Record: &ledger.TransferRecord{
			Id: "orig-1", TransferId: tid.Hex(), Type: ledger.TypeLockAndMint,
			TokenId: "42", SourceChain: "amoy", TargetChain: "base",
			Status: ledger.StatusCompleted, IsActive: true,
		},
	}

	_, err := f.orch.BridgeBackward(context.Background(), testAsset, info)
	var stranded *StrandedError
	if !errors.As(err, &stranded) {
		t.Fatalf("err = %v, want StrandedError", err)
	}
	if stranded.Compensate != nil {
		t.Error("return-path stranding has no compensating call to report")
	}

	// Burn ran before the failed unlock; ordering held.
	require.Equal(t, []string{"switch:base", "burn", "switch:amoy", "unlock"}, f.calls.list())
}

func TestInFlightGuard(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.orch.acquire(testAsset))
	_, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	if !errors.Is(err, ErrTransferInFlight) {
		t.Fatalf("err = %v, want ErrTransferInFlight", err)
	}
	f.orch.release(testAsset)

	// A different asset is not blocked.
	other := AssetRef{Contract: assetAddr, TokenId: big.NewInt(43)}
	require.NoError(t, f.orch.acquire(other))
	f.orch.release(other)
}

func TestConcurrentAttemptsSerialize(t *testing.T) {
	f := newFixture()
	other := AssetRef{Contract: assetAddr, TokenId: big.NewInt(77), Standard: "ERC721"}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", ""); err != nil {
			t.Errorf("amoy attempt failed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := f.orch.BridgeForward(context.Background(), other, "base", "amoy", ""); err != nil {
			t.Errorf("base attempt failed: %v", err)
		}
	}()
	wg.Wait()

	// Both attempts pass the per-asset guard, but the shared session only
	// tolerates one switch-dependent sequence at a time: the call log must be
	// one complete attempt followed by the other, never interleaved.
	got := f.calls.list()
	if len(got) != 2*len(forwardCalls) {
		t.Fatalf("calls = %v", got)
	}
	reverse := []string{
		"switch:base", "ownerOf", "isLocked", "approve", "lock",
		"switch:amoy", "processed", "mint",
	}
	first, second := got[:len(forwardCalls)], got[len(forwardCalls):]
	amoyFirst := reflect.DeepEqual(first, forwardCalls) && reflect.DeepEqual(second, reverse)
	baseFirst := reflect.DeepEqual(first, reverse) && reflect.DeepEqual(second, forwardCalls)
	if !amoyFirst && !baseFirst {
		t.Fatalf("attempts interleaved on the shared session: %v", got)
	}
}

func TestLedgerInsertFailureDoesNotBlockChain(t *testing.T) {
	f := newFixture()
	f.ldg.insertErr = errors.New("ledger unreachable")

	res, err := f.orch.BridgeForward(context.Background(), testAsset, "amoy", "base", "")
	if err != nil {
		t.Fatalf("forward failed: %v", err)
	}
	if res.MintHash == (common.Hash{}) {
		t.Fatal("mint should have completed without the ledger")
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	f := newFixture()
	f.gw.processed = true
	tid := NewTransferId(initiator, assetAddr, baseMint, big.NewInt(7), time.Unix(1700000000, 0))
	f.ldg.byOwner = []ledger.TransferRecord{
		{
			Id: "rec-9", TransferId: tid.Hex(), Type: ledger.TypeLockAndMint,
			TokenId: "7", SourceChain: "amoy", TargetChain: "base",
			Status: ledger.StatusPending, IsActive: true,
		},
	}

	drifts, err := f.orch.Reconcile(context.Background(), initiator.Hex())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, "rec-9", drifts[0].RecordId)
}
