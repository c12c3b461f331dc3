package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "dollarpool/native/common"
)

type testToken struct {
	addr         common.Address
	symbol       string
	decimals     uint8
	balances     map[common.Address]*big.Int
	failMint     bool
	failTransfer bool
}

func newTestToken(tag byte, symbol string, decimals uint8) *testToken {
	addr := common.Address{}
	addr[19] = tag
	return &testToken{
		addr:     addr,
		symbol:   symbol,
		decimals: decimals,
		balances: make(map[common.Address]*big.Int),
	}
}

func (t *testToken) Address() common.Address { return t.addr }
func (t *testToken) Symbol() string          { return t.symbol }
func (t *testToken) Decimals() uint8         { return t.decimals }

func (t *testToken) BalanceOf(addr common.Address) *big.Int {
	balance, ok := t.balances[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}

func (t *testToken) credit(addr common.Address, amount *big.Int) {
	balance, ok := t.balances[addr]
	if !ok {
		balance = new(big.Int)
		t.balances[addr] = balance
	}
	balance.Add(balance, amount)
}

func (t *testToken) Mint(to common.Address, amount *big.Int) error {
	if t.failMint {
		return errors.New("mint refused")
	}
	t.credit(to, amount)
	return nil
}

func (t *testToken) Burn(from common.Address, amount *big.Int) error {
	balance, ok := t.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return errors.New("burn exceeds balance")
	}
	balance.Sub(balance, amount)
	return nil
}

func (t *testToken) Transfer(from, to common.Address, amount *big.Int) error {
	if t.failTransfer {
		return errors.New("transfer refused")
	}
	balance, ok := t.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return errors.New("transfer exceeds balance")
	}
	balance.Sub(balance, amount)
	t.credit(to, amount)
	return nil
}

func units(n int64, decimals uint) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return scale.Mul(scale, big.NewInt(n))
}

var (
	testAdmin = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testPool  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	testUser  = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

func newTestEngine(t *testing.T, decimals uint8) (*Engine, *testToken, *testToken) {
	t.Helper()
	stable := newTestToken(0xAA, "USDP", 18)
	collateral := newTestToken(0xBB, "TUSD", decimals)
	engine := NewEngine(testAdmin, testPool, stable, StaticPrice(0))
	index, err := engine.AddCollateral(testAdmin, collateral, nil)
	if err != nil {
		t.Fatalf("add collateral: %v", err)
	}
	if err := engine.ToggleCollateral(testAdmin, index); err != nil {
		t.Fatalf("enable collateral: %v", err)
	}
	return engine, stable, collateral
}

func TestMintDollarAppliesMintingFee(t *testing.T) {
	engine, stable, collateral := newTestEngine(t, 18)
	if err := engine.SetFees(testAdmin, 0, 10_000, 0); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	collateral.credit(testUser, units(100, 18))

	minted, taken, err := engine.MintDollar(testUser, 0, units(100, 18), nil, nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if minted.Cmp(units(99, 18)) != 0 {
		t.Fatalf("minted = %s, want 99e18", minted)
	}
	if taken.Cmp(units(100, 18)) != 0 {
		t.Fatalf("collateral taken = %s, want 100e18", taken)
	}
	if got := stable.BalanceOf(testUser); got.Cmp(units(99, 18)) != 0 {
		t.Fatalf("stable balance = %s, want 99e18", got)
	}
	if got := collateral.BalanceOf(testPool); got.Cmp(units(100, 18)) != 0 {
		t.Fatalf("pool collateral = %s, want 100e18", got)
	}
}

func TestMintScalesToCollateralDecimals(t *testing.T) {
	engine, _, collateral := newTestEngine(t, 6)
	collateral.credit(testUser, units(100, 6))

	_, taken, err := engine.MintDollar(testUser, 0, units(100, 18), nil, nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if taken.Cmp(units(100, 6)) != 0 {
		t.Fatalf("collateral taken = %s, want 100e6", taken)
	}
}

func TestMintRoundsCollateralUpBelowPrecision(t *testing.T) {
	engine, stable, collateral := newTestEngine(t, 6)
	collateral.credit(testUser, units(3, 6))

	// Less than one native unit of a 6-dec collateral. Truncation here would
	// issue stable against zero collateral.
	in, _ := new(big.Int).SetString("999999999999", 10)
	minted, taken, err := engine.MintDollar(testUser, 0, in, nil, nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if taken.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("collateral taken = %s, want 1", taken)
	}
	if minted.Cmp(in) != 0 {
		t.Fatalf("minted = %s, want %s", minted, in)
	}
	if got := collateral.BalanceOf(testPool); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("pool collateral = %s, want 1", got)
	}
	if got := stable.BalanceOf(testUser); got.Cmp(in) != 0 {
		t.Fatalf("stable balance = %s, want %s", got, in)
	}

	// One dust above an exact multiple pulls a whole extra unit.
	over := new(big.Int).Add(units(2, 18), big.NewInt(1))
	_, taken, err = engine.MintDollar(testUser, 0, over, nil, nil)
	if err != nil {
		t.Fatalf("mint above multiple: %v", err)
	}
	if taken.Cmp(big.NewInt(2_000_001)) != 0 {
		t.Fatalf("collateral taken = %s, want 2000001", taken)
	}
}

func TestMintRedeemCollectRoundTrip(t *testing.T) {
	engine, stable, collateral := newTestEngine(t, 18)
	if err := engine.SetFees(testAdmin, 0, 10_000, 20_000); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	if err := engine.SetRedemptionDelay(testAdmin, 2); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	collateral.credit(testUser, units(100, 18))

	minted, _, err := engine.MintDollar(testUser, 0, units(100, 18), nil, nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if minted.Cmp(units(99, 18)) != 0 {
		t.Fatalf("minted = %s, want 99e18", minted)
	}

	booked, err := engine.RedeemDollar(testUser, 0, minted, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	// 99e18 less the 2% redemption fee.
	wantBooked, _ := new(big.Int).SetString("97020000000000000000", 10)
	if booked.Cmp(wantBooked) != 0 {
		t.Fatalf("booked = %s, want %s", booked, wantBooked)
	}
	if got := stable.BalanceOf(testUser); got.Sign() != 0 {
		t.Fatalf("stable balance after redeem = %s, want 0", got)
	}

	engine.SetBlockHeight(1)
	if _, err := engine.CollectRedemption(testUser, 0); !errors.Is(err, ErrTooSoonToCollect) {
		t.Fatalf("collect at block 1: %v, want ErrTooSoonToCollect", err)
	}

	engine.SetBlockHeight(2)
	paid, err := engine.CollectRedemption(testUser, 0)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if paid.Cmp(wantBooked) != 0 {
		t.Fatalf("paid = %s, want %s", paid, wantBooked)
	}
	if got := collateral.BalanceOf(testUser); got.Cmp(wantBooked) != 0 {
		t.Fatalf("user collateral = %s, want %s", got, wantBooked)
	}

	wantFree, _ := new(big.Int).SetString("2980000000000000000", 10)
	free, err := engine.FreeCollateralBalance(0)
	if err != nil {
		t.Fatalf("free balance: %v", err)
	}
	if free.Cmp(wantFree) != 0 {
		t.Fatalf("free = %s, want %s", free, wantFree)
	}

	if _, err := engine.CollectRedemption(testUser, 0); !errors.Is(err, ErrNothingToCollect) {
		t.Fatalf("second collect: %v, want ErrNothingToCollect", err)
	}
}

func TestRedeemAccumulatesAndResetsDelay(t *testing.T) {
	engine, stable, collateral := newTestEngine(t, 18)
	if err := engine.SetRedemptionDelay(testAdmin, 3); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	collateral.credit(testUser, units(100, 18))
	if _, _, err := engine.MintDollar(testUser, 0, units(100, 18), nil, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := engine.RedeemDollar(testUser, 0, units(40, 18), nil); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	engine.SetBlockHeight(2)
	if _, err := engine.RedeemDollar(testUser, 0, units(10, 18), nil); err != nil {
		t.Fatalf("second redeem: %v", err)
	}

	booking, ok := engine.PendingRedemptionOf(testUser, 0)
	if !ok {
		t.Fatal("expected a pending booking")
	}
	if booking.Collateral.Cmp(units(50, 18)) != 0 {
		t.Fatalf("pending = %s, want 50e18", booking.Collateral)
	}
	if booking.Block != 2 {
		t.Fatalf("booking block = %d, want 2", booking.Block)
	}

	// The first tranche alone would have matured at block 3.
	engine.SetBlockHeight(3)
	if _, err := engine.CollectRedemption(testUser, 0); !errors.Is(err, ErrTooSoonToCollect) {
		t.Fatalf("collect at block 3: %v, want ErrTooSoonToCollect", err)
	}
	engine.SetBlockHeight(5)
	paid, err := engine.CollectRedemption(testUser, 0)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if paid.Cmp(units(50, 18)) != 0 {
		t.Fatalf("paid = %s, want 50e18", paid)
	}
	if got := stable.BalanceOf(testUser); got.Cmp(units(50, 18)) != 0 {
		t.Fatalf("stable remaining = %s, want 50e18", got)
	}
}

func TestMintGateOrdering(t *testing.T) {
	engine, _, collateral := newTestEngine(t, 18)
	collateral.credit(testUser, units(100, 18))

	if err := engine.ToggleCollateral(testAdmin, 0); err != nil {
		t.Fatalf("disable collateral: %v", err)
	}
	if _, _, err := engine.MintDollar(testUser, 0, units(1, 18), nil, nil); !errors.Is(err, ErrCollateralDisabled) {
		t.Fatalf("mint on disabled: %v, want ErrCollateralDisabled", err)
	}
	if err := engine.ToggleCollateral(testAdmin, 0); err != nil {
		t.Fatalf("re-enable collateral: %v", err)
	}

	if err := engine.ToggleMRB(testAdmin, 0, ToggleMint); err != nil {
		t.Fatalf("pause mint: %v", err)
	}
	if _, _, err := engine.MintDollar(testUser, 0, units(1, 18), nil, nil); !errors.Is(err, ErrMintingPaused) {
		t.Fatalf("mint while paused: %v, want ErrMintingPaused", err)
	}
	if err := engine.ToggleMRB(testAdmin, 0, ToggleMint); err != nil {
		t.Fatalf("unpause mint: %v", err)
	}

	if err := engine.SetPriceThresholds(testAdmin, ParPrice+1, ParPrice); err != nil {
		t.Fatalf("raise mint threshold: %v", err)
	}
	if _, _, err := engine.MintDollar(testUser, 0, units(1, 18), nil, nil); !errors.Is(err, ErrDollarPriceTooLow) {
		t.Fatalf("mint below threshold: %v, want ErrDollarPriceTooLow", err)
	}
}

func TestMintSlippageAndCeiling(t *testing.T) {
	engine, _, collateral := newTestEngine(t, 18)
	if err := engine.SetFees(testAdmin, 0, 10_000, 0); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	collateral.credit(testUser, units(200, 18))

	if _, _, err := engine.MintDollar(testUser, 0, units(100, 18), units(100, 18), nil); !errors.Is(err, ErrDollarSlippage) {
		t.Fatalf("min stable out above net: %v, want ErrDollarSlippage", err)
	}
	if _, _, err := engine.MintDollar(testUser, 0, units(100, 18), nil, units(99, 18)); !errors.Is(err, ErrCollateralSlippage) {
		t.Fatalf("max collateral below needed: %v, want ErrCollateralSlippage", err)
	}

	if err := engine.SetPoolCeiling(testAdmin, 0, units(150, 18)); err != nil {
		t.Fatalf("set ceiling: %v", err)
	}
	if _, _, err := engine.MintDollar(testUser, 0, units(100, 18), nil, nil); err != nil {
		t.Fatalf("mint within ceiling: %v", err)
	}
	if _, _, err := engine.MintDollar(testUser, 0, units(100, 18), nil, nil); !errors.Is(err, ErrPoolCeiling) {
		t.Fatalf("mint past ceiling: %v, want ErrPoolCeiling", err)
	}
}

func TestRedeemGates(t *testing.T) {
	engine, _, collateral := newTestEngine(t, 18)
	collateral.credit(testUser, units(100, 18))
	if _, _, err := engine.MintDollar(testUser, 0, units(100, 18), nil, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := engine.ToggleMRB(testAdmin, 0, ToggleRedeem); err != nil {
		t.Fatalf("pause redeem: %v", err)
	}
	if _, err := engine.RedeemDollar(testUser, 0, units(10, 18), nil); !errors.Is(err, ErrRedeemingPaused) {
		t.Fatalf("redeem while paused: %v, want ErrRedeemingPaused", err)
	}
	if _, err := engine.CollectRedemption(testUser, 0); !errors.Is(err, ErrRedeemingPaused) {
		t.Fatalf("collect while paused: %v, want ErrRedeemingPaused", err)
	}
	if err := engine.ToggleMRB(testAdmin, 0, ToggleRedeem); err != nil {
		t.Fatalf("unpause redeem: %v", err)
	}

	if err := engine.SetPriceThresholds(testAdmin, ParPrice, ParPrice-1); err != nil {
		t.Fatalf("lower redeem threshold: %v", err)
	}
	if _, err := engine.RedeemDollar(testUser, 0, units(10, 18), nil); !errors.Is(err, ErrDollarPriceTooHigh) {
		t.Fatalf("redeem above threshold: %v, want ErrDollarPriceTooHigh", err)
	}
	if err := engine.SetPriceThresholds(testAdmin, ParPrice, ParPrice); err != nil {
		t.Fatalf("restore thresholds: %v", err)
	}

	if _, err := engine.RedeemDollar(testUser, 0, units(10, 18), units(11, 18)); !errors.Is(err, ErrCollateralSlippage) {
		t.Fatalf("min collateral above payout: %v, want ErrCollateralSlippage", err)
	}
}

func TestRedeemInsufficientFreeCollateral(t *testing.T) {
	engine, stable, collateral := newTestEngine(t, 18)
	collateral.credit(testUser, units(10, 18))
	if _, _, err := engine.MintDollar(testUser, 0, units(10, 18), nil, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// Stable issued elsewhere is not backed by free collateral here.
	if err := stable.Mint(testUser, units(90, 18)); err != nil {
		t.Fatalf("outside mint: %v", err)
	}
	if _, err := engine.RedeemDollar(testUser, 0, units(100, 18), nil); !errors.Is(err, ErrInsufficientPoolCollateral) {
		t.Fatalf("redeem past free balance: %v, want ErrInsufficientPoolCollateral", err)
	}
}

func TestBookingSurvivesCollateralDisable(t *testing.T) {
	engine, _, collateral := newTestEngine(t, 18)
	if err := engine.SetRedemptionDelay(testAdmin, 1); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	collateral.credit(testUser, units(10, 18))
	if _, _, err := engine.MintDollar(testUser, 0, units(10, 18), nil, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := engine.RedeemDollar(testUser, 0, units(10, 18), nil); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := engine.ToggleCollateral(testAdmin, 0); err != nil {
		t.Fatalf("disable collateral: %v", err)
	}
	engine.SetBlockHeight(1)
	paid, err := engine.CollectRedemption(testUser, 0)
	if err != nil {
		t.Fatalf("collect on disabled collateral: %v", err)
	}
	if paid.Cmp(units(10, 18)) != 0 {
		t.Fatalf("paid = %s, want 10e18", paid)
	}
}

func TestMintRevertsCollateralWhenIssueFails(t *testing.T) {
	engine, stable, collateral := newTestEngine(t, 18)
	stable.failMint = true
	collateral.credit(testUser, units(10, 18))

	if _, _, err := engine.MintDollar(testUser, 0, units(10, 18), nil, nil); err == nil {
		t.Fatal("expected mint failure")
	}
	if got := collateral.BalanceOf(testUser); got.Cmp(units(10, 18)) != 0 {
		t.Fatalf("user collateral after failed mint = %s, want 10e18", got)
	}
	if got := collateral.BalanceOf(testPool); got.Sign() != 0 {
		t.Fatalf("pool collateral after failed mint = %s, want 0", got)
	}
}

func TestModuleSwitchboardHaltsOperations(t *testing.T) {
	engine, _, collateral := newTestEngine(t, 18)
	collateral.credit(testUser, units(10, 18))
	minter := newTestMinter(0x10, 0)
	if err := engine.AddAmoMinter(testAdmin, minter); err != nil {
		t.Fatalf("add minter: %v", err)
	}
	switchboard := nativecommon.NewSwitchboard()
	engine.SetPauses(switchboard)
	switchboard.SetPaused("pool", true)

	if _, _, err := engine.MintDollar(testUser, 0, units(1, 18), nil, nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("mint while halted: %v, want ErrModulePaused", err)
	}
	if _, err := engine.RedeemDollar(testUser, 0, units(1, 18), nil); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("redeem while halted: %v, want ErrModulePaused", err)
	}
	if _, err := engine.CollectRedemption(testUser, 0); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("collect while halted: %v, want ErrModulePaused", err)
	}
	if err := engine.AmoMinterBorrow(minter.addr, units(1, 18)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("borrow while halted: %v, want ErrModulePaused", err)
	}

	switchboard.SetPaused("pool", false)
	if _, _, err := engine.MintDollar(testUser, 0, units(1, 18), nil, nil); err != nil {
		t.Fatalf("mint after resume: %v", err)
	}
	if err := engine.AmoMinterBorrow(minter.addr, units(1, 18)); err != nil {
		t.Fatalf("borrow after resume: %v", err)
	}
}

func TestMintRejectsBadAmounts(t *testing.T) {
	engine, _, _ := newTestEngine(t, 18)
	if _, _, err := engine.MintDollar(testUser, 0, nil, nil, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount: %v, want ErrInvalidAmount", err)
	}
	if _, _, err := engine.MintDollar(testUser, 0, big.NewInt(0), nil, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: %v, want ErrInvalidAmount", err)
	}
	if _, _, err := engine.MintDollar(testUser, 7, units(1, 18), nil, nil); !errors.Is(err, ErrInvalidCollateral) {
		t.Fatalf("unknown index: %v, want ErrInvalidCollateral", err)
	}
}

func TestCollateralUsdBalanceValuesHoldings(t *testing.T) {
	engine, _, collateral := newTestEngine(t, 6)
	collateral.credit(testUser, units(100, 6))
	if _, _, err := engine.MintDollar(testUser, 0, units(100, 18), nil, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.SetCollateralPrice(testAdmin, 0, 990_000); err != nil {
		t.Fatalf("set price: %v", err)
	}
	total, err := engine.CollateralUsdBalance()
	if err != nil {
		t.Fatalf("usd balance: %v", err)
	}
	if total.Cmp(units(99, 18)) != 0 {
		t.Fatalf("usd balance = %s, want 99e18", total)
	}
}

func TestGetDollarInCollateralRescales(t *testing.T) {
	engine, _, _ := newTestEngine(t, 6)
	value, err := engine.GetDollarInCollateral(0, units(25, 6))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if value.Cmp(units(25, 18)) != 0 {
		t.Fatalf("dollar value = %s, want 25e18", value)
	}
	if _, err := engine.GetDollarInCollateral(0, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: %v, want ErrInvalidAmount", err)
	}
}

func TestApplyFeeBounds(t *testing.T) {
	amount := units(100, 18)
	if got := applyFee(amount, 0); got.Cmp(amount) != 0 {
		t.Fatalf("zero fee = %s, want %s", got, amount)
	}
	if got := applyFee(amount, FeeScale); got.Sign() != 0 {
		t.Fatalf("full fee = %s, want 0", got)
	}
	if got := applyFee(amount, FeeScale+5); got.Sign() != 0 {
		t.Fatalf("overshoot fee = %s, want 0", got)
	}
	if got := applyFee(big.NewInt(3), 500_000); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("truncating fee = %s, want 1", got)
	}
}
