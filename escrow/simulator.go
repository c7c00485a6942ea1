package escrow

import (
	"context"
	"fmt"
	"sync"

	"github.com/boltlabs-inc/zkchannels/zkabacus"
)

// Simulator is an in-process ledger that implements Client entirely in
// memory. Used by tests and by CLI runs started with --off-chain. Spec.md
// §9 explicitly sanctions an in-process simulator as a valid on-chain
// client implementation.
type Simulator struct {
	mu sync.Mutex

	nextID    int
	contracts map[string]*simulatedContract

	// level is the simulated chain height. The simulator reports every
	// post as confirmed immediately, since there is no concept of a
	// mempool here.
	level uint64

	// SelfDelay is the number of levels the simulator advances between a
	// custClose and the self-delay timelock expiring.
	SelfDelay uint64
}

type simulatedContract struct {
	details         ContractDetails
	customerBalance zkabacus.CustomerBalance
	merchantBalance zkabacus.MerchantBalance
	status          ContractStatus
	revocationLock  *zkabacus.RevocationLock
	customerFunded  bool
	merchantFunded  bool
	closeLevel      uint64
}

// NewSimulator constructs an empty in-memory ledger.
func NewSimulator() *Simulator {
	return &Simulator{
		contracts: make(map[string]*simulatedContract),
		SelfDelay: 10,
	}
}

// AdvanceLevel moves the simulator's chain height forward, the way mined
// blocks would in a real node. Tests use this to simulate the passage of
// the custClose self-delay.
func (s *Simulator) AdvanceLevel(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level += n
}

func (s *Simulator) get(contractId ContractId) (*simulatedContract, error) {
	c, ok := s.contracts[contractId.Address]
	if !ok {
		return nil, &Error{Kind: ErrInvalidZkChannelsContract, ContractId: contractId}
	}
	return c, nil
}

func (s *Simulator) Originate(_ context.Context, details ContractDetails, customerBalance zkabacus.CustomerBalance, merchantBalance zkabacus.MerchantBalance) (ContractId, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := ContractId{Address: fmt.Sprintf("KT1Sim%d", s.nextID)}
	s.contracts[id.Address] = &simulatedContract{
		details:         details,
		customerBalance: 0,
		merchantBalance: 0,
		status:          AwaitingCustomerFunding,
	}
	s.level++
	return id, s.level, nil
}

func (s *Simulator) AddCustomerFunding(_ context.Context, contractId ContractId, amount zkabacus.CustomerBalance) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status != AwaitingCustomerFunding {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointAddCustomerFunding, ContractId: contractId}
	}
	c.customerBalance = amount
	c.customerFunded = true
	c.status = AwaitingMerchantFunding
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) AddMerchantFunding(_ context.Context, contractId ContractId, amount zkabacus.MerchantBalance) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status != AwaitingMerchantFunding {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointAddMerchantFunding, ContractId: contractId}
	}
	c.merchantBalance = amount
	c.merchantFunded = true
	c.status = Open
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) ReclaimCustomerFunding(_ context.Context, contractId ContractId) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status == Open {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointReclaimCustomerFunding, ContractId: contractId}
	}
	c.status = FundingReclaimed
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) ReclaimMerchantFunding(_ context.Context, contractId ContractId) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status == Open {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointReclaimMerchantFunding, ContractId: contractId}
	}
	c.status = FundingReclaimed
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) Expiry(_ context.Context, contractId ContractId) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status != Open {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointExpiry, ContractId: contractId}
	}
	c.status = Expiry
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) CustomerClose(_ context.Context, contractId ContractId, closing zkabacus.ClosingMessage) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status != Open && c.status != Expiry {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointCustomerClose, ContractId: contractId}
	}
	lock := closing.CloseState.RevocationLock
	c.revocationLock = &lock
	c.customerBalance = closing.CloseState.CustomerBalance
	c.merchantBalance = closing.CloseState.MerchantBalance
	c.status = CustomerClose
	c.closeLevel = s.level
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) MerchantDispute(_ context.Context, contractId ContractId, secret zkabacus.RevocationSecret) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status != CustomerClose || c.revocationLock == nil || !c.revocationLock.Open(secret) {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointMerchantDispute, ContractId: contractId}
	}
	// Dispute pays both balances to the merchant.
	c.merchantBalance += c.customerBalance
	c.customerBalance = 0
	c.status = Closed
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) CustomerClaim(_ context.Context, contractId ContractId) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status != CustomerClose || s.level < c.closeLevel+s.SelfDelay {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointCustomerClaim, ContractId: contractId}
	}
	c.status = Closed
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) MerchantClaim(_ context.Context, contractId ContractId) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status != Expiry && c.status != Closed {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointMerchantClaim, ContractId: contractId}
	}
	c.status = Closed
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) MutualClose(_ context.Context, contractId ContractId, state zkabacus.CloseState, _ AuthorizationSignature) (OperationStatus, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return OperationRejected, 0, err
	}
	if c.status != Open {
		return OperationRejected, 0, &Error{Kind: ErrOperationInvalid, Entrypoint: EntrypointMutualClose, ContractId: contractId}
	}
	c.customerBalance = state.CustomerBalance
	c.merchantBalance = state.MerchantBalance
	c.status = Closed
	s.level++
	return OperationConfirmed, s.level, nil
}

func (s *Simulator) GetContractState(_ context.Context, contractId ContractId) (ContractState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.get(contractId)
	if err != nil {
		return ContractState{}, err
	}
	return ContractState{
		Status:            c.status,
		CustomerBalance:   c.customerBalance,
		MerchantBalance:   c.merchantBalance,
		RevocationLock:    c.revocationLock,
		SelfDelay:         s.SelfDelay,
		DelayExpiry:       c.closeLevel + s.SelfDelay,
		MerchantPublicKey: c.details.MerchantTezosPublicKey,
		CurrentLevel:      s.level,
	}, nil
}

var _ Client = (*Simulator)(nil)
