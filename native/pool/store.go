package pool

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Storage is the key-value surface the pool persists through. Implementations
// encode values with RLP; KVGet reports whether the key existed.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedCollateral struct {
	Index           uint64
	Token           string
	Symbol          string
	MissingDecimals uint8
	Price           uint64
	HasCeiling      bool
	PoolCeiling     string
	Enabled         bool
	MintingFee      uint64
	RedemptionFee   uint64
	MintPaused      bool
	RedeemPaused    bool
	BorrowPaused    bool
	Borrowed        string
}

type storedBooking struct {
	Account    string
	Index      uint64
	Collateral string
	Block      uint64
}

type storedBookingList struct {
	Bookings []storedBooking
}

type storedMinterSet struct {
	Addresses []string
}

type storedParams struct {
	MintThreshold   uint64
	RedeemThreshold uint64
	Delay           uint64
}

// Store persists pool state through a Storage backend.
type Store struct {
	kv Storage
}

// NewStore constructs a Store over the provided storage.
func NewStore(kv Storage) *Store {
	return &Store{kv: kv}
}

func (s *Store) putCollateral(entry *collateralEntry) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("pool: store not initialised")
	}
	stored := storedCollateral{
		Index:           entry.info.Index,
		Token:           entry.info.Token.Hex(),
		Symbol:          entry.info.Symbol,
		MissingDecimals: entry.info.MissingDecimals,
		Price:           entry.info.Price,
		Enabled:         entry.info.Enabled,
		MintingFee:      entry.info.MintingFee,
		RedemptionFee:   entry.info.RedemptionFee,
		MintPaused:      entry.info.MintPaused,
		RedeemPaused:    entry.info.RedeemPaused,
		BorrowPaused:    entry.info.BorrowPaused,
		Borrowed:        entry.borrowed.String(),
	}
	if entry.info.PoolCeiling != nil {
		stored.HasCeiling = true
		stored.PoolCeiling = entry.info.PoolCeiling.String()
	}
	return s.kv.KVPut(poolCollateralKey(stored.Index), stored)
}

func (s *Store) putCollateralCount(count uint64) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("pool: store not initialised")
	}
	return s.kv.KVPut(poolCollateralCountKey, count)
}

func (s *Store) getCollateral(index uint64) (*storedCollateral, bool, error) {
	if s == nil || s.kv == nil {
		return nil, false, fmt.Errorf("pool: store not initialised")
	}
	var stored storedCollateral
	ok, err := s.kv.KVGet(poolCollateralKey(index), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

func (s *Store) collateralCount() (uint64, error) {
	if s == nil || s.kv == nil {
		return 0, fmt.Errorf("pool: store not initialised")
	}
	var count uint64
	ok, err := s.kv.KVGet(poolCollateralCountKey, &count)
	if err != nil || !ok {
		return 0, err
	}
	return count, nil
}

func (s *Store) putBookings(list []storedBooking) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("pool: store not initialised")
	}
	return s.kv.KVPut(poolBookingsKey, storedBookingList{Bookings: list})
}

func (s *Store) getBookings() ([]storedBooking, error) {
	if s == nil || s.kv == nil {
		return nil, fmt.Errorf("pool: store not initialised")
	}
	var stored storedBookingList
	ok, err := s.kv.KVGet(poolBookingsKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.Bookings, nil
}

func (s *Store) putMinters(addrs []common.Address) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("pool: store not initialised")
	}
	stored := storedMinterSet{Addresses: make([]string, len(addrs))}
	for i, addr := range addrs {
		stored.Addresses[i] = addr.Hex()
	}
	return s.kv.KVPut(poolMintersKey, stored)
}

func (s *Store) getMinters() ([]common.Address, error) {
	if s == nil || s.kv == nil {
		return nil, fmt.Errorf("pool: store not initialised")
	}
	var stored storedMinterSet
	ok, err := s.kv.KVGet(poolMintersKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	out := make([]common.Address, 0, len(stored.Addresses))
	for _, raw := range stored.Addresses {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("pool: corrupted minter address %q", raw)
		}
		out = append(out, common.HexToAddress(raw))
	}
	return out, nil
}

func (s *Store) putParams(params storedParams) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("pool: store not initialised")
	}
	return s.kv.KVPut(poolParamsKey, params)
}

func (s *Store) getParams() (*storedParams, bool, error) {
	if s == nil || s.kv == nil {
		return nil, false, fmt.Errorf("pool: store not initialised")
	}
	var stored storedParams
	ok, err := s.kv.KVGet(poolParamsKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

// HasState reports whether a prior engine run left persisted registry state,
// so callers can choose between restoring and seeding.
func (s *Store) HasState() (bool, error) {
	if s == nil || s.kv == nil {
		return false, fmt.Errorf("pool: store not initialised")
	}
	var count uint64
	ok, err := s.kv.KVGet(poolCollateralCountKey, &count)
	if err != nil {
		return false, err
	}
	return ok && count > 0, nil
}

// Resolver rebinds persisted registry entries to live collaborator handles
// when an engine restores its state.
type Resolver interface {
	TokenResolver
	ResolveAmoMinter(addr common.Address) (AmoMinter, bool)
}

// Restore loads registry, ledger, minter, and parameter state from the wired
// store, resolving token and minter handles through the resolver. It replaces
// any in-memory state and is meant to run once at startup.
func (e *Engine) Restore(resolver Resolver) error {
	if e == nil {
		return ErrNotConfigured
	}
	if e.store == nil {
		return fmt.Errorf("pool: store not wired")
	}
	if resolver == nil {
		return fmt.Errorf("pool: resolver required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	count, err := e.store.collateralCount()
	if err != nil {
		return fmt.Errorf("pool: load collateral count: %w", err)
	}
	collaterals := make([]*collateralEntry, 0, count)
	byToken := make(map[common.Address]uint64, count)
	for index := uint64(0); index < count; index++ {
		stored, ok, err := e.store.getCollateral(index)
		if err != nil {
			return fmt.Errorf("pool: load collateral %d: %w", index, err)
		}
		if !ok {
			return fmt.Errorf("pool: collateral %d missing from storage", index)
		}
		entry, err := restoreCollateral(stored, resolver)
		if err != nil {
			return err
		}
		collaterals = append(collaterals, entry)
		byToken[entry.info.Token] = index
	}

	storedBookings, err := e.store.getBookings()
	if err != nil {
		return fmt.Errorf("pool: load bookings: %w", err)
	}
	bookings := make(map[common.Address]map[uint64]*PendingRedemption)
	pendingTotal := make(map[uint64]*big.Int)
	for _, sb := range storedBookings {
		if !common.IsHexAddress(sb.Account) {
			return fmt.Errorf("pool: corrupted booking account %q", sb.Account)
		}
		amount, err := parseAmount(sb.Collateral)
		if err != nil {
			return fmt.Errorf("pool: corrupted booking amount: %w", err)
		}
		if amount.Sign() == 0 {
			continue
		}
		account := common.HexToAddress(sb.Account)
		accountBookings, ok := bookings[account]
		if !ok {
			accountBookings = make(map[uint64]*PendingRedemption)
			bookings[account] = accountBookings
		}
		accountBookings[sb.Index] = &PendingRedemption{Collateral: amount, Block: sb.Block}
		total, ok := pendingTotal[sb.Index]
		if !ok {
			total = new(big.Int)
			pendingTotal[sb.Index] = total
		}
		total.Add(total, amount)
	}

	minterAddrs, err := e.store.getMinters()
	if err != nil {
		return fmt.Errorf("pool: load minters: %w", err)
	}
	minters := make(map[common.Address]AmoMinter, len(minterAddrs))
	order := make([]common.Address, 0, len(minterAddrs))
	for _, addr := range minterAddrs {
		minter, ok := resolver.ResolveAmoMinter(addr)
		if !ok {
			return fmt.Errorf("pool: no amo minter handle for %s", addr.Hex())
		}
		minters[addr] = minter
		order = append(order, addr)
	}

	params, ok, err := e.store.getParams()
	if err != nil {
		return fmt.Errorf("pool: load params: %w", err)
	}

	e.collaterals = collaterals
	e.byToken = byToken
	e.bookings = bookings
	e.pendingTotal = pendingTotal
	e.minters = minters
	e.minterOrder = order
	if ok {
		e.mintPriceThreshold = params.MintThreshold
		e.redeemPriceThreshold = params.RedeemThreshold
		e.redemptionDelay = params.Delay
	}
	return nil
}

func restoreCollateral(stored *storedCollateral, resolver TokenResolver) (*collateralEntry, error) {
	if !common.IsHexAddress(stored.Token) {
		return nil, fmt.Errorf("pool: corrupted collateral address %q", stored.Token)
	}
	addr := common.HexToAddress(stored.Token)
	token, ok := resolver.ResolveCollateral(addr)
	if !ok {
		return nil, fmt.Errorf("pool: no token handle for collateral %s", addr.Hex())
	}
	borrowed, err := parseAmount(stored.Borrowed)
	if err != nil {
		return nil, fmt.Errorf("pool: corrupted borrowed tally: %w", err)
	}
	entry := &collateralEntry{
		info: CollateralInformation{
			Index:           stored.Index,
			Token:           addr,
			Symbol:          stored.Symbol,
			MissingDecimals: stored.MissingDecimals,
			Price:           stored.Price,
			Enabled:         stored.Enabled,
			MintingFee:      stored.MintingFee,
			RedemptionFee:   stored.RedemptionFee,
			MintPaused:      stored.MintPaused,
			RedeemPaused:    stored.RedeemPaused,
			BorrowPaused:    stored.BorrowPaused,
		},
		token:    token,
		borrowed: borrowed,
	}
	if stored.HasCeiling {
		ceiling, err := parseAmount(stored.PoolCeiling)
		if err != nil {
			return nil, fmt.Errorf("pool: corrupted pool ceiling: %w", err)
		}
		entry.info.PoolCeiling = ceiling
	}
	return entry, nil
}

func (e *Engine) persistCollateral(entry *collateralEntry) error {
	if e.store == nil {
		return nil
	}
	return e.store.putCollateral(entry)
}

func (e *Engine) persistBookings() error {
	if e.store == nil {
		return nil
	}
	list := make([]storedBooking, 0, len(e.bookings))
	for account, accountBookings := range e.bookings {
		for index, booking := range accountBookings {
			if booking.Collateral.Sign() == 0 {
				continue
			}
			list = append(list, storedBooking{
				Account:    account.Hex(),
				Index:      index,
				Collateral: booking.Collateral.String(),
				Block:      booking.Block,
			})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Account != list[j].Account {
			return list[i].Account < list[j].Account
		}
		return list[i].Index < list[j].Index
	})
	return e.store.putBookings(list)
}

func (e *Engine) persistMinters() error {
	if e.store == nil {
		return nil
	}
	return e.store.putMinters(e.minterOrder)
}

func (e *Engine) persistParams() error {
	if e.store == nil {
		return nil
	}
	return e.store.putParams(storedParams{
		MintThreshold:   e.mintPriceThreshold,
		RedeemThreshold: e.redeemPriceThreshold,
		Delay:           e.redemptionDelay,
	})
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
