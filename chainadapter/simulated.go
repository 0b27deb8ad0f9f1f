package chainadapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/TEENet-io/watchtower-go/agreement"
	"github.com/TEENet-io/watchtower-go/common"
	"github.com/TEENet-io/watchtower-go/identity"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// This file contains an in-memory bridge contract.
// It follows the contract rules the watchtower relies on and is used
// in tests of the watcher, the verifier and both services.

var (
	ErrSimNonceUsed        = errors.New("nonce already used")
	ErrSimUnauthorized     = errors.New("unauthorized")
	ErrSimNotApproved      = errors.New("withdraw not approved")
	ErrSimCancelled        = errors.New("withdraw approval cancelled")
	ErrSimExecuted         = errors.New("withdraw already executed")
	ErrSimNotCancelled     = errors.New("withdraw approval not cancelled")
	ErrSimDelayNotElapsed  = errors.New("withdraw delay not elapsed")
	ErrSimFeeExceedsAmount = errors.New("fee exceeds amount")
	errSimRpc              = errors.New("simulated rpc failure")
)

type Role string

const (
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
	RoleCanceler Role = "canceler"
	RoleAdmin    Role = "admin"
)

// Fault makes the next Times submissions of Call (any call when empty) fail.
// A Landed timeout applies the call before reporting the timeout.
type Fault struct {
	Call   CallKind
	Kind   FailureKind
	Landed bool
	Times  int
}

type simEvent struct {
	event agreement.Event
}

type SimulatedChain struct {
	mu sync.Mutex

	info   Info
	hasher identity.Hasher
	now    func() time.Time
	delay  time.Duration

	height uint64
	events []RawEvent
	txSeq  uint64

	deposits       map[ethcommon.Hash]*agreement.Deposit
	depositByNonce map[string]ethcommon.Hash
	nextNonce      *big.Int
	approvals      map[ethcommon.Hash]*agreement.WithdrawApproval
	nonceUsed      map[string]bool
	balances       map[ethcommon.Hash]*big.Int

	submitFaults []*Fault
	queryFaults  int
	heightFaults int
	attempts     map[CallKind]int
	landed       map[CallKind]int
}

// NewSimulatedChain creates a chain whose contract enforces delay between
// approval and execution. now is the chain's notion of block time.
func NewSimulatedChain(name string, family agreement.ChainFamily, key agreement.ChainKey, delay time.Duration, now func() time.Time) *SimulatedChain {
	if now == nil {
		now = time.Now
	}
	return &SimulatedChain{
		info:           Info{Name: name, Family: family, ChainKey: key},
		hasher:         identity.Default,
		now:            now,
		delay:          delay,
		deposits:       map[ethcommon.Hash]*agreement.Deposit{},
		depositByNonce: map[string]ethcommon.Hash{},
		nextNonce:      big.NewInt(0),
		approvals:      map[ethcommon.Hash]*agreement.WithdrawApproval{},
		nonceUsed:      map[string]bool{},
		balances:       map[ethcommon.Hash]*big.Int{},
		attempts:       map[CallKind]int{},
		landed:         map[CallKind]int{},
	}
}

// Client returns an adapter that submits calls as the given role.
func (s *SimulatedChain) Client(role Role) *SimulatedClient {
	return &SimulatedClient{chain: s, role: role}
}

func (s *SimulatedChain) Info() Info {
	return s.info
}

// Mine appends n empty blocks.
func (s *SimulatedChain) Mine(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height += uint64(n)
}

func (s *SimulatedChain) CurrentHeight() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// Deposit emits a deposit with the next contract nonce.
func (s *SimulatedChain) Deposit(dest agreement.ChainKey, token, account ethcommon.Hash, amount *big.Int) *agreement.Deposit {
	s.mu.Lock()
	nonce := new(big.Int).Set(s.nextNonce)
	s.mu.Unlock()
	return s.DepositWithNonce(dest, token, account, amount, nonce)
}

// DepositWithNonce emits a deposit with an explicit nonce.
func (s *SimulatedChain) DepositWithNonce(dest agreement.ChainKey, token, account ethcommon.Hash, amount, nonce *big.Int) *agreement.Deposit {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := &agreement.Deposit{
		SrcChainKey:      s.info.ChainKey,
		DestChainKey:     dest,
		DestTokenAddress: token,
		DestAccount:      account,
		Amount:           new(big.Int).Set(amount),
		Nonce:            new(big.Int).Set(nonce),
		DepositedAt:      uint64(s.now().Unix()),
	}
	hash, err := identity.WithdrawHashOf(s.hasher, d)
	if err != nil {
		panic(err)
	}
	s.deposits[hash] = d
	s.depositByNonce[nonce.String()] = hash
	if nonce.Cmp(s.nextNonce) >= 0 {
		s.nextNonce = new(big.Int).Add(nonce, big.NewInt(1))
	}

	s.emitLocked(func(meta agreement.EventMeta) agreement.Event {
		return &agreement.DepositObserved{EventMeta: meta, Deposit: *d.Clone()}
	})
	return d.Clone()
}

// Balance returns what executed withdrawals released to account.
func (s *SimulatedChain) Balance(account ethcommon.Hash) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

// Approval returns a copy of the on-chain approval record.
func (s *SimulatedChain) Approval(hash ethcommon.Hash) (*agreement.WithdrawApproval, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[hash]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

func (s *SimulatedChain) FailSubmit(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := f
	s.submitFaults = append(s.submitFaults, &copied)
}

// ClearFaults drops every pending submit, query and height fault.
func (s *SimulatedChain) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitFaults = nil
	s.queryFaults = 0
	s.heightFaults = 0
}

// FailQueries makes the next n contract queries fail transiently.
func (s *SimulatedChain) FailQueries(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryFaults = n
}

func (s *SimulatedChain) FailHeight(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heightFaults = n
}

// Attempts counts Submit invocations of a call kind.
func (s *SimulatedChain) Attempts(kind CallKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[kind]
}

// Landed counts calls of a kind that changed contract state.
func (s *SimulatedChain) Landed(kind CallKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.landed[kind]
}

func (s *SimulatedChain) emitLocked(build func(meta agreement.EventMeta) agreement.Event) string {
	s.height++
	s.txSeq++
	txHash := fmt.Sprintf("0x%064x", s.txSeq)
	meta := agreement.EventMeta{ChainKey: s.info.ChainKey, Height: s.height, TxHash: txHash}
	ev := build(meta)
	s.events = append(s.events, RawEvent{
		Height: s.height,
		TxHash: txHash,
		Name:   string(ev.Kind()),
		Native: simEvent{event: ev},
	})
	return txHash
}

func (s *SimulatedChain) takeSubmitFaultLocked(kind CallKind) *Fault {
	for i, f := range s.submitFaults {
		if f.Call != "" && f.Call != kind {
			continue
		}
		f.Times--
		if f.Times <= 0 {
			s.submitFaults = append(s.submitFaults[:i], s.submitFaults[i+1:]...)
		}
		return f
	}
	return nil
}

func (s *SimulatedChain) takeQueryFaultLocked() error {
	if s.queryFaults > 0 {
		s.queryFaults--
		return errSimRpc
	}
	return nil
}

func nonceKey(src agreement.ChainKey, nonce *big.Int) string {
	return src.Hex() + "/" + nonce.String()
}

func (s *SimulatedChain) submit(ctx context.Context, role Role, call Call) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(call.Kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[call.Kind]++
	fault := s.takeSubmitFaultLocked(call.Kind)
	if fault != nil && !(fault.Kind == FailureTimeout && fault.Landed) {
		switch fault.Kind {
		case FailureRejected:
			return nil, Rejected(call.Kind, "", errors.New("simulated revert"))
		case FailureTimeout:
			return nil, Timeout(call.Kind, "0xdropped", errors.New("simulated confirmation timeout"))
		default:
			return nil, Transient(call.Kind, errSimRpc)
		}
	}

	txHash, err := s.applyLocked(role, call)
	if err != nil {
		return nil, Rejected(call.Kind, "", err)
	}
	s.landed[call.Kind]++

	if fault != nil {
		return nil, Timeout(call.Kind, txHash, errors.New("simulated confirmation timeout"))
	}
	return &Receipt{TxHash: txHash, Height: s.height}, nil
}

func (s *SimulatedChain) applyLocked(role Role, call Call) (string, error) {
	now := uint64(s.now().Unix())

	switch call.Kind {
	case CallApproveWithdraw:
		if role != RoleOperator {
			return "", ErrSimUnauthorized
		}
		p := call.Approval
		if p == nil {
			return "", errors.New("missing approval parameters")
		}
		if s.nonceUsed[nonceKey(p.SrcChainKey, p.Nonce)] {
			return "", ErrSimNonceUsed
		}
		if p.DeductFromAmount && p.Fee != nil && p.Fee.Cmp(p.Amount) > 0 {
			return "", ErrSimFeeExceedsAmount
		}
		a := p.Clone()
		a.DestChainKey = s.info.ChainKey
		hash, err := identity.ApprovalHashOf(s.hasher, a)
		if err != nil {
			return "", err
		}
		a.WithdrawHash = hash
		a.ApprovedAt = now
		a.Cancelled = false
		a.Executed = false
		s.approvals[hash] = a
		s.nonceUsed[nonceKey(a.SrcChainKey, a.Nonce)] = true
		return s.emitLocked(func(meta agreement.EventMeta) agreement.Event {
			return &agreement.WithdrawApprovedObserved{EventMeta: meta, Approval: *a.Clone()}
		}), nil

	case CallExecuteWithdraw:
		a, ok := s.approvals[call.WithdrawHash]
		if !ok {
			return "", ErrSimNotApproved
		}
		if a.Cancelled {
			return "", ErrSimCancelled
		}
		if a.Executed {
			return "", ErrSimExecuted
		}
		if now < a.ApprovedAt+uint64(s.delay/time.Second) {
			return "", ErrSimDelayNotElapsed
		}
		a.Executed = true
		released := new(big.Int).Set(a.Amount)
		if a.DeductFromAmount && a.Fee != nil {
			released.Sub(released, a.Fee)
		}
		bal, ok := s.balances[a.Recipient]
		if !ok {
			bal = big.NewInt(0)
		}
		s.balances[a.Recipient] = bal.Add(bal, released)
		return s.emitLocked(func(meta agreement.EventMeta) agreement.Event {
			return &agreement.WithdrawExecutedObserved{EventMeta: meta, WithdrawHash: a.WithdrawHash}
		}), nil

	case CallCancelWithdrawApproval:
		if role != RoleCanceler {
			return "", ErrSimUnauthorized
		}
		a, ok := s.approvals[call.WithdrawHash]
		if !ok {
			return "", ErrSimNotApproved
		}
		if a.Executed {
			return "", ErrSimExecuted
		}
		if a.Cancelled {
			return "", ErrSimCancelled
		}
		a.Cancelled = true
		return s.emitLocked(func(meta agreement.EventMeta) agreement.Event {
			return &agreement.WithdrawCancelledObserved{EventMeta: meta, WithdrawHash: a.WithdrawHash}
		}), nil

	case CallReenableWithdrawApproval:
		if role != RoleAdmin {
			return "", ErrSimUnauthorized
		}
		a, ok := s.approvals[call.WithdrawHash]
		if !ok {
			return "", ErrSimNotApproved
		}
		if !a.Cancelled {
			return "", ErrSimNotCancelled
		}
		a.Cancelled = false
		a.ApprovedAt = now
		return s.emitLocked(func(meta agreement.EventMeta) agreement.Event {
			return &agreement.WithdrawReenabledObserved{EventMeta: meta, WithdrawHash: a.WithdrawHash, ApprovedAt: now}
		}), nil
	}

	return "", fmt.Errorf("unknown call %q", call.Kind)
}

// SimulatedClient is a role-bound view of a SimulatedChain.
type SimulatedClient struct {
	chain *SimulatedChain
	role  Role
}

var _ Adapter = (*SimulatedClient)(nil)

func (c *SimulatedClient) Info() Info {
	return c.chain.info
}

func (c *SimulatedClient) Height(ctx context.Context) (uint64, error) {
	s := c.chain
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heightFaults > 0 {
		s.heightFaults--
		return 0, errSimRpc
	}
	return s.height, nil
}

func (c *SimulatedClient) PollEvents(ctx context.Context, from, to uint64) ([]RawEvent, error) {
	s := c.chain
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []RawEvent
	for _, ev := range s.events {
		if ev.Height > from && ev.Height <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *SimulatedClient) SubscribeEvents(ctx context.Context) (<-chan RawEvent, Subscription, error) {
	return nil, nil, ErrSubscriptionUnsupported
}

func (c *SimulatedClient) Decode(ev RawEvent) (agreement.Event, error) {
	native, ok := ev.Native.(simEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev.Native)
	}
	return native.event, nil
}

func (c *SimulatedClient) GetDepositFromHash(ctx context.Context, hash ethcommon.Hash) (*agreement.Deposit, bool, error) {
	s := c.chain
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeQueryFaultLocked(); err != nil {
		return nil, false, err
	}
	d, ok := s.deposits[hash]
	if !ok {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

func (c *SimulatedClient) DepositHash(ctx context.Context, nonce *big.Int) (ethcommon.Hash, bool, error) {
	s := c.chain
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeQueryFaultLocked(); err != nil {
		return ethcommon.Hash{}, false, err
	}
	h, ok := s.depositByNonce[nonce.String()]
	return h, ok, nil
}

func (c *SimulatedClient) WithdrawApproval(ctx context.Context, hash ethcommon.Hash) (*agreement.WithdrawApproval, bool, error) {
	s := c.chain
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeQueryFaultLocked(); err != nil {
		return nil, false, err
	}
	a, ok := s.approvals[hash]
	if !ok {
		return nil, false, nil
	}
	return a.Clone(), true, nil
}

func (c *SimulatedClient) NonceUsed(ctx context.Context, src agreement.ChainKey, nonce *big.Int) (bool, error) {
	s := c.chain
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeQueryFaultLocked(); err != nil {
		return false, err
	}
	return s.nonceUsed[nonceKey(src, nonce)], nil
}

func (c *SimulatedClient) Submit(ctx context.Context, call Call) (*Receipt, error) {
	return c.chain.submit(ctx, c.role, call)
}

func (c *SimulatedClient) AddressKey(native string) (ethcommon.Hash, error) {
	return identity.PadAddress(c.chain.info.Family, ethcommon.FromHex(common.Prepend0xPrefix(native)))
}

func (c *SimulatedClient) NativeAddress(key ethcommon.Hash) (string, error) {
	if c.chain.info.Family == agreement.FamilyEVM {
		return ethcommon.BytesToAddress(key[12:]).Hex(), nil
	}
	return key.Hex(), nil
}
