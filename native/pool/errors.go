package pool

import "errors"

var (
	ErrNotConfigured              = errors.New("pool: engine not configured")
	ErrNotAuthorized              = errors.New("pool: caller is not the pool administrator")
	ErrNotAnAmoMinter             = errors.New("pool: caller is not a registered amo minter")
	ErrZeroAddress                = errors.New("pool: zero address")
	ErrInvalidAmount              = errors.New("pool: amount must be positive")
	ErrInvalidCollateral          = errors.New("pool: collateral not registered or disabled")
	ErrDuplicateCollateral        = errors.New("pool: collateral already registered")
	ErrDuplicateAmoMinter         = errors.New("pool: amo minter already registered")
	ErrUnknownAmoMinter           = errors.New("pool: amo minter not registered")
	ErrMinterConformance          = errors.New("pool: amo minter capability probe failed")
	ErrCollateralDisabled         = errors.New("pool: collateral disabled")
	ErrMintingPaused              = errors.New("pool: minting paused for collateral")
	ErrRedeemingPaused            = errors.New("pool: redeeming paused for collateral")
	ErrBorrowingPaused            = errors.New("pool: borrowing paused for collateral")
	ErrDollarPriceTooLow          = errors.New("pool: dollar price below mint threshold")
	ErrDollarPriceTooHigh         = errors.New("pool: dollar price above redeem threshold")
	ErrDollarSlippage             = errors.New("pool: minted dollar below minimum requested")
	ErrCollateralSlippage         = errors.New("pool: collateral amount outside requested bound")
	ErrPoolCeiling                = errors.New("pool: collateral ceiling exceeded")
	ErrInsufficientPoolCollateral = errors.New("pool: insufficient free collateral")
	ErrTooSoonToCollect           = errors.New("pool: redemption delay has not elapsed")
	ErrNothingToCollect           = errors.New("pool: no pending redemption to collect")
)
