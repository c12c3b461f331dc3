package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	nativecommon "dollarpool/native/common"
	"dollarpool/native/pool"
	"dollarpool/native/token"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps engine errors onto HTTP statuses: identity failures are
// 401/403, unknown resources 404, policy gates 409, economic guards 422,
// malformed input 400, anything else 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, pool.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, pool.ErrNotAnAmoMinter):
		return http.StatusForbidden
	case errors.Is(err, pool.ErrInvalidCollateral),
		errors.Is(err, pool.ErrUnknownAmoMinter):
		return http.StatusNotFound
	case errors.Is(err, nativecommon.ErrModulePaused),
		errors.Is(err, pool.ErrCollateralDisabled),
		errors.Is(err, pool.ErrMintingPaused),
		errors.Is(err, pool.ErrRedeemingPaused),
		errors.Is(err, pool.ErrBorrowingPaused),
		errors.Is(err, pool.ErrDollarPriceTooLow),
		errors.Is(err, pool.ErrDollarPriceTooHigh),
		errors.Is(err, pool.ErrStalePrice),
		errors.Is(err, pool.ErrTooSoonToCollect),
		errors.Is(err, pool.ErrNothingToCollect):
		return http.StatusConflict
	case errors.Is(err, pool.ErrDollarSlippage),
		errors.Is(err, pool.ErrCollateralSlippage),
		errors.Is(err, pool.ErrPoolCeiling),
		errors.Is(err, pool.ErrInsufficientPoolCollateral),
		errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pool.ErrInvalidAmount),
		errors.Is(err, pool.ErrZeroAddress),
		errors.Is(err, pool.ErrDuplicateCollateral),
		errors.Is(err, pool.ErrDuplicateAmoMinter),
		errors.Is(err, pool.ErrMinterConformance),
		errors.Is(err, token.ErrDuplicateToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorReason condenses an engine error to a stable slug for the error
// counter. The vocabulary is closed; raw error text never becomes a label.
func errorReason(err error) string {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "module_paused"
	case errors.Is(err, pool.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, pool.ErrNotAnAmoMinter):
		return "not_amo_minter"
	case errors.Is(err, pool.ErrInvalidCollateral):
		return "invalid_collateral"
	case errors.Is(err, pool.ErrUnknownAmoMinter):
		return "unknown_amo_minter"
	case errors.Is(err, pool.ErrCollateralDisabled):
		return "collateral_disabled"
	case errors.Is(err, pool.ErrMintingPaused):
		return "minting_paused"
	case errors.Is(err, pool.ErrRedeemingPaused):
		return "redeeming_paused"
	case errors.Is(err, pool.ErrBorrowingPaused):
		return "borrowing_paused"
	case errors.Is(err, pool.ErrDollarPriceTooLow):
		return "price_below_mint_threshold"
	case errors.Is(err, pool.ErrDollarPriceTooHigh):
		return "price_above_redeem_threshold"
	case errors.Is(err, pool.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, pool.ErrTooSoonToCollect):
		return "too_soon"
	case errors.Is(err, pool.ErrNothingToCollect):
		return "nothing_to_collect"
	case errors.Is(err, pool.ErrDollarSlippage):
		return "dollar_slippage"
	case errors.Is(err, pool.ErrCollateralSlippage):
		return "collateral_slippage"
	case errors.Is(err, pool.ErrPoolCeiling):
		return "pool_ceiling"
	case errors.Is(err, pool.ErrInsufficientPoolCollateral):
		return "insufficient_free_collateral"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, pool.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, pool.ErrZeroAddress):
		return "zero_address"
	case errors.Is(err, pool.ErrDuplicateCollateral):
		return "duplicate_collateral"
	case errors.Is(err, pool.ErrDuplicateAmoMinter):
		return "duplicate_amo_minter"
	case errors.Is(err, pool.ErrMinterConformance):
		return "minter_conformance"
	case errors.Is(err, token.ErrDuplicateToken):
		return "duplicate_token"
	default:
		return "internal"
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, operation string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("operation failed", "operation", operation, "error", err)
	}
	writeError(w, status, err.Error())
}

func parseHexAddress(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

// parseAmount decodes a base-ten amount string. Empty input returns nil so
// optional bounds stay unset.
func parseAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, true
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}

func urlIndex(r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	return index, err == nil
}

func bigOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type mintRequest struct {
	Account         string `json:"account"`
	Index           uint64 `json:"index"`
	AmountIn        string `json:"amountIn"`
	MinStableOut    string `json:"minStableOut"`
	MaxCollateralIn string `json:"maxCollateralIn"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var payload mintRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	account, ok := parseHexAddress(payload.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "account must be a hex address")
		return
	}
	amountIn, ok := parseAmount(payload.AmountIn)
	if !ok || amountIn == nil {
		writeError(w, http.StatusBadRequest, "amountIn must be a positive base-ten amount")
		return
	}
	minStableOut, ok := parseAmount(payload.MinStableOut)
	if !ok {
		writeError(w, http.StatusBadRequest, "minStableOut must be a base-ten amount")
		return
	}
	maxCollateralIn, ok := parseAmount(payload.MaxCollateralIn)
	if !ok {
		writeError(w, http.StatusBadRequest, "maxCollateralIn must be a base-ten amount")
		return
	}
	minted, taken, err := s.engine.MintDollar(account, payload.Index, amountIn, minStableOut, maxCollateralIn)
	s.observe("mint", start, err)
	if err != nil {
		s.writeEngineError(w, "mint", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"minted":          minted.String(),
		"collateralTaken": taken.String(),
	})
}

type redeemRequest struct {
	Account          string `json:"account"`
	Index            uint64 `json:"index"`
	AmountIn         string `json:"amountIn"`
	MinCollateralOut string `json:"minCollateralOut"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var payload redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	account, ok := parseHexAddress(payload.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "account must be a hex address")
		return
	}
	amountIn, ok := parseAmount(payload.AmountIn)
	if !ok || amountIn == nil {
		writeError(w, http.StatusBadRequest, "amountIn must be a positive base-ten amount")
		return
	}
	minCollateralOut, ok := parseAmount(payload.MinCollateralOut)
	if !ok {
		writeError(w, http.StatusBadRequest, "minCollateralOut must be a base-ten amount")
		return
	}
	booked, err := s.engine.RedeemDollar(account, payload.Index, amountIn, minCollateralOut)
	s.observe("redeem", start, err)
	if err != nil {
		s.writeEngineError(w, "redeem", err)
		return
	}
	response := map[string]any{"booked": booked.String()}
	if booking, found := s.engine.PendingRedemptionOf(account, payload.Index); found {
		response["pending"] = booking.Collateral.String()
		response["eligibleBlock"] = booking.Block + s.engine.RedemptionDelay()
	}
	writeJSON(w, http.StatusOK, response)
}

type collectRequest struct {
	Account string `json:"account"`
	Index   uint64 `json:"index"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var payload collectRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	account, ok := parseHexAddress(payload.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "account must be a hex address")
		return
	}
	paid, err := s.engine.CollectRedemption(account, payload.Index)
	s.observe("collect", start, err)
	if err != nil {
		s.writeEngineError(w, "collect", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"paid": paid.String()})
}

type borrowRequest struct {
	Minter string `json:"minter"`
	Amount string `json:"amount"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var payload borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	minter, ok := parseHexAddress(payload.Minter)
	if !ok {
		writeError(w, http.StatusBadRequest, "minter must be a hex address")
		return
	}
	amount, ok := parseAmount(payload.Amount)
	if !ok || amount == nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive base-ten amount")
		return
	}
	err := s.engine.AmoMinterBorrow(minter, amount)
	s.observe("borrow", start, err)
	if err != nil {
		s.writeEngineError(w, "borrow", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"borrowed": amount.String()})
}

func (s *Server) handleCollaterals(w http.ResponseWriter, r *http.Request) {
	addresses := s.engine.AllCollaterals()
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		out = append(out, addr.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]any{"collaterals": out})
}

func (s *Server) handleCollateralInfo(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseHexAddress(chi.URLParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "address must be a hex address")
		return
	}
	info, err := s.engine.CollateralInformation(addr)
	if err != nil {
		s.writeEngineError(w, "collateral_info", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index":           info.Index,
		"token":           info.Token.Hex(),
		"symbol":          info.Symbol,
		"missingDecimals": info.MissingDecimals,
		"price":           info.Price,
		"poolCeiling":     bigOrZero(info.PoolCeiling),
		"enabled":         info.Enabled,
		"mintingFee":      info.MintingFee,
		"redemptionFee":   info.RedemptionFee,
		"mintPaused":      info.MintPaused,
		"redeemPaused":    info.RedeemPaused,
		"borrowPaused":    info.BorrowPaused,
	})
}

func (s *Server) handleFreeBalance(w http.ResponseWriter, r *http.Request) {
	index, ok := urlIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	free, err := s.engine.FreeCollateralBalance(index)
	if err != nil {
		s.writeEngineError(w, "free_balance", err)
		return
	}
	borrowed, err := s.engine.BorrowedBalance(index)
	if err != nil {
		s.writeEngineError(w, "free_balance", err)
		return
	}
	if symbol, err := s.engine.CollateralSymbol(index); err == nil {
		s.metrics.RecordFree(symbol, free)
		s.metrics.RecordBorrowed(symbol, borrowed)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"free":     free.String(),
		"borrowed": borrowed.String(),
	})
}

func (s *Server) handleUsdBalance(w http.ResponseWriter, r *http.Request) {
	total, err := s.engine.CollateralUsdBalance()
	if err != nil {
		s.writeEngineError(w, "usd_balance", err)
		return
	}
	s.metrics.RecordUsdBalance(total)
	writeJSON(w, http.StatusOK, map[string]string{"collateralUsdBalance": total.String()})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	price, err := s.engine.GetDollarPriceUsd()
	if err != nil {
		s.writeEngineError(w, "price", err)
		return
	}
	mintThreshold, redeemThreshold := s.engine.PriceThresholds()
	writeJSON(w, http.StatusOK, map[string]any{
		"price":           price,
		"mintThreshold":   mintThreshold,
		"redeemThreshold": redeemThreshold,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(r.URL.Query().Get("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	amount, ok := parseAmount(r.URL.Query().Get("amount"))
	if !ok || amount == nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive base-ten amount")
		return
	}
	value, engineErr := s.engine.GetDollarInCollateral(index, amount)
	if engineErr != nil {
		s.writeEngineError(w, "quote", engineErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"dollarValue": value.String()})
}

func (s *Server) handlePendingRedemption(w http.ResponseWriter, r *http.Request) {
	account, ok := parseHexAddress(chi.URLParam(r, "account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "account must be a hex address")
		return
	}
	index, ok := urlIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	booking, found := s.engine.PendingRedemptionOf(account, index)
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"pending": "0"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":       booking.Collateral.String(),
		"bookedAt":      booking.Block,
		"eligibleBlock": booking.Block + s.engine.RedemptionDelay(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	records, err := s.audit.ListEvents(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

type addCollateralRequest struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Ceiling  string `json:"ceiling"`
}

func (s *Server) handleAddCollateral(w http.ResponseWriter, r *http.Request) {
	var payload addCollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	addr, ok := parseHexAddress(payload.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, "address must be a hex address")
		return
	}
	if strings.TrimSpace(payload.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	ceiling, ok := parseAmount(payload.Ceiling)
	if !ok {
		writeError(w, http.StatusBadRequest, "ceiling must be a base-ten amount")
		return
	}
	ledger, ok := s.bank.Token(addr)
	if !ok {
		created, err := s.bank.Create(addr, strings.TrimSpace(payload.Symbol), payload.Decimals)
		if err != nil {
			s.writeEngineError(w, "add_collateral", err)
			return
		}
		ledger = created
	}
	index, err := s.engine.AddCollateral(s.admin, ledger, ceiling)
	if err != nil {
		s.writeEngineError(w, "add_collateral", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"index": index})
}

func (s *Server) handleToggleCollateral(w http.ResponseWriter, r *http.Request) {
	index, ok := urlIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	if err := s.engine.ToggleCollateral(s.admin, index); err != nil {
		s.writeEngineError(w, "toggle_collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
}

type setFeesRequest struct {
	MintingFee    uint64 `json:"mintingFee"`
	RedemptionFee uint64 `json:"redemptionFee"`
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	index, ok := urlIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	var payload setFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.engine.SetFees(s.admin, index, payload.MintingFee, payload.RedemptionFee); err != nil {
		s.writeEngineError(w, "set_fees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetCollateralPrice(w http.ResponseWriter, r *http.Request) {
	index, ok := urlIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	var payload struct {
		Price uint64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.engine.SetCollateralPrice(s.admin, index, payload.Price); err != nil {
		s.writeEngineError(w, "set_collateral_price", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetCeiling(w http.ResponseWriter, r *http.Request) {
	index, ok := urlIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	var payload struct {
		Ceiling string `json:"ceiling"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	ceiling, ok := parseAmount(payload.Ceiling)
	if !ok {
		writeError(w, http.StatusBadRequest, "ceiling must be a base-ten amount")
		return
	}
	if err := s.engine.SetPoolCeiling(s.admin, index, ceiling); err != nil {
		s.writeEngineError(w, "set_ceiling", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleToggleGate(w http.ResponseWriter, r *http.Request) {
	index, ok := urlIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "index must be an unsigned integer")
		return
	}
	var payload struct {
		Gate string `json:"gate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var selector pool.ToggleSelector
	switch strings.ToLower(strings.TrimSpace(payload.Gate)) {
	case "mint":
		selector = pool.ToggleMint
	case "redeem":
		selector = pool.ToggleRedeem
	case "borrow":
		selector = pool.ToggleBorrow
	default:
		writeError(w, http.StatusBadRequest, "gate must be mint, redeem, or borrow")
		return
	}
	if err := s.engine.ToggleMRB(s.admin, index, selector); err != nil {
		s.writeEngineError(w, "toggle_gate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MintThreshold   uint64 `json:"mintThreshold"`
		RedeemThreshold uint64 `json:"redeemThreshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.engine.SetPriceThresholds(s.admin, payload.MintThreshold, payload.RedeemThreshold); err != nil {
		s.writeEngineError(w, "set_thresholds", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetDelay(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Blocks uint64 `json:"blocks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.engine.SetRedemptionDelay(s.admin, payload.Blocks); err != nil {
		s.writeEngineError(w, "set_delay", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type addMinterRequest struct {
	Address         string `json:"address"`
	CollateralIndex uint64 `json:"collateralIndex"`
}

func (s *Server) handleAddMinter(w http.ResponseWriter, r *http.Request) {
	var payload addMinterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	addr, ok := parseHexAddress(payload.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, "address must be a hex address")
		return
	}
	collateral, err := s.collateralLedger(payload.CollateralIndex)
	if err != nil {
		s.writeEngineError(w, "add_minter", err)
		return
	}
	vault, err := token.NewVault(addr, collateral, payload.CollateralIndex)
	if err != nil {
		s.writeEngineError(w, "add_minter", err)
		return
	}
	if err := s.engine.AddAmoMinter(s.admin, vault); err != nil {
		s.writeEngineError(w, "add_minter", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"minter": addr.Hex()})
}

func (s *Server) handleRemoveMinter(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseHexAddress(chi.URLParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "address must be a hex address")
		return
	}
	if err := s.engine.RemoveAmoMinter(s.admin, addr); err != nil {
		s.writeEngineError(w, "remove_minter", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handlePostPrice(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil {
		writeError(w, http.StatusConflict, "posted price oracle not configured")
		return
	}
	var payload struct {
		Price uint64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.Price == 0 {
		writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}
	s.oracle.Post(payload.Price)
	if s.audit != nil {
		if err := s.audit.RecordPriceSample(r.Context(), payload.Price, time.Now()); err != nil {
			s.logger.Error("record price sample failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"price": payload.Price})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.switchboard == nil {
		writeError(w, http.StatusConflict, "pause switchboard not configured")
		return
	}
	var payload struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	s.switchboard.SetPaused("pool", payload.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": payload.Paused})
}

func (s *Server) handleSetBlock(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Height uint64 `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	s.engine.SetBlockHeight(payload.Height)
	writeJSON(w, http.StatusOK, map[string]uint64{"height": payload.Height})
}

// collateralLedger resolves the live token handle for a registered collateral
// index through the bank.
func (s *Server) collateralLedger(index uint64) (*token.Token, error) {
	for _, addr := range s.engine.AllCollaterals() {
		info, err := s.engine.CollateralInformation(addr)
		if err != nil {
			continue
		}
		if info.Index != index {
			continue
		}
		ledger, ok := s.bank.Token(addr)
		if !ok {
			return nil, token.ErrUnknownToken
		}
		return ledger, nil
	}
	return nil, pool.ErrInvalidCollateral
}
