package pool

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/core/events"
	nativecommon "dollarpool/native/common"
)

const moduleName = "pool"

// Engine owns the collateral registry, the redemption ledger, the borrowed
// tallies, and the amo minter set for one pool instance. Every mutating
// operation runs under a single mutex; views take read locks. Block height is
// an exogenous input and only advances through SetBlockHeight.
type Engine struct {
	mu sync.RWMutex

	admin       common.Address
	poolAddress common.Address
	stable      StableToken
	oracle      PriceOracle

	collaterals []*collateralEntry
	byToken     map[common.Address]uint64

	bookings     map[common.Address]map[uint64]*PendingRedemption
	pendingTotal map[uint64]*big.Int

	minters     map[common.Address]AmoMinter
	minterOrder []common.Address

	mintPriceThreshold   uint64
	redeemPriceThreshold uint64
	redemptionDelay      uint64

	blockHeight uint64

	store   *Store
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewEngine constructs a pool engine. The pool address is the account that
// holds deposited collateral; the stable token and oracle are collaborator
// handles. Price thresholds default to par and the redemption delay to zero
// until the administrator configures them.
func NewEngine(admin, poolAddress common.Address, stable StableToken, oracle PriceOracle) *Engine {
	return &Engine{
		admin:                admin,
		poolAddress:          poolAddress,
		stable:               stable,
		oracle:               oracle,
		byToken:              make(map[common.Address]uint64),
		bookings:             make(map[common.Address]map[uint64]*PendingRedemption),
		pendingTotal:         make(map[uint64]*big.Int),
		minters:              make(map[common.Address]AmoMinter),
		mintPriceThreshold:   ParPrice,
		redeemPriceThreshold: ParPrice,
		emitter:              events.NoopEmitter{},
	}
}

// SetStore wires the engine to its persistence layer.
func (e *Engine) SetStore(store *Store) {
	if e == nil {
		return
	}
	e.store = store
}

// SetEmitter wires the event sink. A nil emitter resets to the discard sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses installs the operator switchboard checked before every mutating
// operation, in addition to the per-collateral MRB gates.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBlockHeight records the height used for redemption delay accounting.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.blockHeight = height
	e.mu.Unlock()
}

// BlockHeight returns the most recently supplied block height.
func (e *Engine) BlockHeight() uint64 {
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.blockHeight
}

// MintDollar pulls collateral from the caller and issues stable asset at a
// 1:1 nominal exchange less the collateral's minting fee. The collateral
// price gates and values, it never converts. Both transfers succeed or the
// whole call fails with no effect.
func (e *Engine) MintDollar(caller common.Address, index uint64, stableAmountIn, minStableOut, maxCollateralIn *big.Int) (*big.Int, *big.Int, error) {
	if e == nil || e.stable == nil || e.oracle == nil {
		return nil, nil, ErrNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if stableAmountIn == nil || stableAmountIn.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.entryByIndex(index)
	if err != nil {
		return nil, nil, err
	}
	if !entry.info.Enabled {
		return nil, nil, ErrCollateralDisabled
	}
	if entry.info.MintPaused {
		return nil, nil, ErrMintingPaused
	}
	price, err := e.oracle.DollarPriceUSD()
	if err != nil {
		return nil, nil, fmt.Errorf("pool: oracle: %w", err)
	}
	if price < e.mintPriceThreshold {
		return nil, nil, ErrDollarPriceTooLow
	}

	collateralNeeded := scaleToCollateralCeil(stableAmountIn, entry.info.MissingDecimals)
	stableMinted := applyFee(stableAmountIn, entry.info.MintingFee)
	if minStableOut != nil && stableMinted.Cmp(minStableOut) < 0 {
		return nil, nil, ErrDollarSlippage
	}
	if maxCollateralIn != nil && collateralNeeded.Cmp(maxCollateralIn) > 0 {
		return nil, nil, ErrCollateralSlippage
	}
	if entry.info.PoolCeiling != nil {
		held := entry.token.BalanceOf(e.poolAddress)
		post := new(big.Int).Add(held, collateralNeeded)
		if post.Cmp(entry.info.PoolCeiling) > 0 {
			return nil, nil, ErrPoolCeiling
		}
	}

	if err := entry.token.Transfer(caller, e.poolAddress, collateralNeeded); err != nil {
		return nil, nil, fmt.Errorf("pool: pull collateral: %w", err)
	}
	if err := e.stable.Mint(caller, stableMinted); err != nil {
		if revertErr := entry.token.Transfer(e.poolAddress, caller, collateralNeeded); revertErr != nil {
			return nil, nil, fmt.Errorf("pool: issue dollar: %w (collateral return also failed: %v)", err, revertErr)
		}
		return nil, nil, fmt.Errorf("pool: issue dollar: %w", err)
	}

	e.emitter.Emit(events.DollarMinted{
		Account:    caller,
		Index:      index,
		Token:      entry.info.Token,
		Minted:     new(big.Int).Set(stableMinted),
		Collateral: new(big.Int).Set(collateralNeeded),
		Block:      e.blockHeight,
	})
	return stableMinted, collateralNeeded, nil
}

// RedeemDollar burns the caller's stable asset immediately and books a
// delayed collateral withdrawal. The booking accumulates across repeated
// redemptions and its eligibility block resets to the latest call.
func (e *Engine) RedeemDollar(caller common.Address, index uint64, stableAmountIn, minCollateralOut *big.Int) (*big.Int, error) {
	if e == nil || e.stable == nil || e.oracle == nil {
		return nil, ErrNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if stableAmountIn == nil || stableAmountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.entryByIndex(index)
	if err != nil {
		return nil, err
	}
	if !entry.info.Enabled {
		return nil, ErrCollateralDisabled
	}
	if entry.info.RedeemPaused {
		return nil, ErrRedeemingPaused
	}
	price, err := e.oracle.DollarPriceUSD()
	if err != nil {
		return nil, fmt.Errorf("pool: oracle: %w", err)
	}
	if price > e.redeemPriceThreshold {
		return nil, ErrDollarPriceTooHigh
	}

	collateralOut := scaleToCollateral(applyFee(stableAmountIn, entry.info.RedemptionFee), entry.info.MissingDecimals)
	if e.freeBalanceLocked(entry).Cmp(collateralOut) < 0 {
		return nil, ErrInsufficientPoolCollateral
	}
	if minCollateralOut != nil && collateralOut.Cmp(minCollateralOut) < 0 {
		return nil, ErrCollateralSlippage
	}

	if err := e.stable.Burn(caller, stableAmountIn); err != nil {
		return nil, fmt.Errorf("pool: retire dollar: %w", err)
	}

	booking := e.bookingFor(caller, index)
	prevAmount := new(big.Int).Set(booking.Collateral)
	prevBlock := booking.Block
	booking.Collateral.Add(booking.Collateral, collateralOut)
	booking.Block = e.blockHeight
	total := e.pendingTotalFor(index)
	total.Add(total, collateralOut)

	if err := e.persistBookings(); err != nil {
		booking.Collateral.Set(prevAmount)
		booking.Block = prevBlock
		total.Sub(total, collateralOut)
		if revertErr := e.stable.Mint(caller, stableAmountIn); revertErr != nil {
			return nil, fmt.Errorf("pool: book redemption: %w (dollar restore also failed: %v)", err, revertErr)
		}
		return nil, fmt.Errorf("pool: book redemption: %w", err)
	}

	e.emitter.Emit(events.DollarRedeemed{
		Account:  caller,
		Index:    index,
		Token:    entry.info.Token,
		Burned:   new(big.Int).Set(stableAmountIn),
		Booked:   new(big.Int).Set(collateralOut),
		Eligible: booking.Block + e.redemptionDelay,
		Block:    e.blockHeight,
	})
	return collateralOut, nil
}

// CollectRedemption pays out a matured booking and zeroes it. Collection is
// gated by the same redeem pause as initiation; the booking survives the
// collateral being disabled in the meantime.
func (e *Engine) CollectRedemption(caller common.Address, index uint64) (*big.Int, error) {
	if e == nil {
		return nil, ErrNotConfigured
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.entryByIndex(index)
	if err != nil {
		return nil, err
	}
	if entry.info.RedeemPaused {
		return nil, ErrRedeemingPaused
	}
	accountBookings, ok := e.bookings[caller]
	if !ok {
		return nil, ErrNothingToCollect
	}
	booking, ok := accountBookings[index]
	if !ok || booking.Collateral.Sign() == 0 {
		return nil, ErrNothingToCollect
	}
	if e.blockHeight < booking.Block+e.redemptionDelay {
		return nil, ErrTooSoonToCollect
	}

	payout := new(big.Int).Set(booking.Collateral)
	if err := entry.token.Transfer(e.poolAddress, caller, payout); err != nil {
		return nil, fmt.Errorf("pool: pay out collateral: %w", err)
	}

	prevBlock := booking.Block
	booking.Collateral.SetUint64(0)
	total := e.pendingTotalFor(index)
	total.Sub(total, payout)

	if err := e.persistBookings(); err != nil {
		booking.Collateral.Set(payout)
		booking.Block = prevBlock
		total.Add(total, payout)
		if revertErr := entry.token.Transfer(caller, e.poolAddress, payout); revertErr != nil {
			return nil, fmt.Errorf("pool: clear booking: %w (collateral return also failed: %v)", err, revertErr)
		}
		return nil, fmt.Errorf("pool: clear booking: %w", err)
	}

	e.emitter.Emit(events.RedemptionCollected{
		Account: caller,
		Index:   index,
		Token:   entry.info.Token,
		Paid:    new(big.Int).Set(payout),
		Block:   e.blockHeight,
	})
	return payout, nil
}

// CollateralUsdBalance values every held collateral balance at its configured
// price, normalised to the dollar's eighteen decimals, and adds each amo
// minter's self-reported off-pool dollar value.
func (e *Engine) CollateralUsdBalance() (*big.Int, error) {
	if e == nil {
		return nil, ErrNotConfigured
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := new(big.Int)
	for _, entry := range e.collaterals {
		held := entry.token.BalanceOf(e.poolAddress)
		if held == nil || held.Sign() == 0 {
			continue
		}
		value := scaleToDollar(held, entry.info.MissingDecimals)
		value.Mul(value, new(big.Int).SetUint64(entry.info.Price))
		value.Quo(value, new(big.Int).SetUint64(PriceScale))
		total.Add(total, value)
	}
	for _, addr := range e.minterOrder {
		minter, ok := e.minters[addr]
		if !ok {
			continue
		}
		reported, err := minter.CollateralDollarBalance()
		if err != nil {
			return nil, fmt.Errorf("pool: minter %s balance: %w", addr.Hex(), err)
		}
		if reported != nil && reported.Sign() > 0 {
			total.Add(total, reported)
		}
	}
	return total, nil
}

// FreeCollateralBalance reports held balance minus pending bookings minus the
// borrowed tally for one collateral, floored at zero.
func (e *Engine) FreeCollateralBalance(index uint64) (*big.Int, error) {
	if e == nil {
		return nil, ErrNotConfigured
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return nil, err
	}
	return e.freeBalanceLocked(entry), nil
}

// GetDollarInCollateral rescales a native collateral amount to the dollar's
// eighteen decimals. Pure conversion, no fee.
func (e *Engine) GetDollarInCollateral(index uint64, collateralAmount *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, ErrNotConfigured
	}
	if collateralAmount == nil || collateralAmount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, err := e.entryByIndex(index)
	if err != nil {
		return nil, err
	}
	return scaleToDollar(collateralAmount, entry.info.MissingDecimals), nil
}

// GetDollarPriceUsd passes through to the oracle adapter.
func (e *Engine) GetDollarPriceUsd() (uint64, error) {
	if e == nil || e.oracle == nil {
		return 0, ErrNotConfigured
	}
	return e.oracle.DollarPriceUSD()
}

// PendingRedemptionOf returns a copy of the caller's booking for a collateral
// index, reporting whether one with a nonzero amount exists.
func (e *Engine) PendingRedemptionOf(account common.Address, index uint64) (PendingRedemption, bool) {
	if e == nil {
		return PendingRedemption{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	accountBookings, ok := e.bookings[account]
	if !ok {
		return PendingRedemption{}, false
	}
	booking, ok := accountBookings[index]
	if !ok || booking.Collateral.Sign() == 0 {
		return PendingRedemption{}, false
	}
	return PendingRedemption{Collateral: new(big.Int).Set(booking.Collateral), Block: booking.Block}, true
}

func (e *Engine) entryByIndex(index uint64) (*collateralEntry, error) {
	if index >= uint64(len(e.collaterals)) {
		return nil, ErrInvalidCollateral
	}
	return e.collaterals[index], nil
}

func (e *Engine) freeBalanceLocked(entry *collateralEntry) *big.Int {
	held := entry.token.BalanceOf(e.poolAddress)
	free := new(big.Int)
	if held != nil {
		free.Set(held)
	}
	if total, ok := e.pendingTotal[entry.info.Index]; ok {
		free.Sub(free, total)
	}
	free.Sub(free, entry.borrowed)
	if free.Sign() < 0 {
		free.SetUint64(0)
	}
	return free
}

func (e *Engine) bookingFor(account common.Address, index uint64) *PendingRedemption {
	accountBookings, ok := e.bookings[account]
	if !ok {
		accountBookings = make(map[uint64]*PendingRedemption)
		e.bookings[account] = accountBookings
	}
	booking, ok := accountBookings[index]
	if !ok {
		booking = &PendingRedemption{Collateral: new(big.Int)}
		accountBookings[index] = booking
	}
	return booking
}

func (e *Engine) pendingTotalFor(index uint64) *big.Int {
	total, ok := e.pendingTotal[index]
	if !ok {
		total = new(big.Int)
		e.pendingTotal[index] = total
	}
	return total
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if caller != e.admin {
		return ErrNotAuthorized
	}
	return nil
}

// applyFee charges a parts-per-million fee with exact integer truncation.
// Fees at or above 100% consume the whole amount.
func applyFee(amount *big.Int, feePpm uint64) *big.Int {
	if feePpm >= FeeScale {
		return new(big.Int)
	}
	keep := new(big.Int).SetUint64(FeeScale - feePpm)
	out := new(big.Int).Mul(amount, keep)
	return out.Quo(out, ppmDivisor)
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

func scaleToCollateral(dollarAmount *big.Int, missingDecimals uint8) *big.Int {
	if missingDecimals == 0 {
		return new(big.Int).Set(dollarAmount)
	}
	return new(big.Int).Quo(dollarAmount, pow10(missingDecimals))
}

// scaleToCollateralCeil rounds the native amount up. Minting uses it so a
// dollar amount below the collateral's precision still pulls a full unit;
// truncating here would issue stable against nothing.
func scaleToCollateralCeil(dollarAmount *big.Int, missingDecimals uint8) *big.Int {
	if missingDecimals == 0 {
		return new(big.Int).Set(dollarAmount)
	}
	divisor := pow10(missingDecimals)
	out := new(big.Int).Add(dollarAmount, new(big.Int).Sub(divisor, big.NewInt(1)))
	return out.Quo(out, divisor)
}

func scaleToDollar(collateralAmount *big.Int, missingDecimals uint8) *big.Int {
	if missingDecimals == 0 {
		return new(big.Int).Set(collateralAmount)
	}
	return new(big.Int).Mul(collateralAmount, pow10(missingDecimals))
}
