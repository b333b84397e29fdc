package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"perpvault/vault"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  vault.ErrorCode(err),
	})
}

func parseAddress(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

func tokenParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	token, ok := parseAddress(chi.URLParam(r, "token"))
	if !ok {
		http.Error(w, "invalid token address", http.StatusBadRequest)
		return common.Address{}, false
	}
	return token, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	length := s.vault.AllWhitelistedTokensLength()
	type tokenRow struct {
		Address     string `json:"address"`
		Whitelisted bool   `json:"whitelisted"`
		Decimals    uint64 `json:"decimals,omitempty"`
		Weight      uint64 `json:"weight,omitempty"`
		IsStable    bool   `json:"isStable,omitempty"`
		IsShortable bool   `json:"isShortable,omitempty"`
	}
	rows := make([]tokenRow, 0, length)
	for i := 0; i < length; i++ {
		token, ok := s.vault.AllWhitelistedToken(i)
		if !ok {
			continue
		}
		row := tokenRow{Address: token.Hex()}
		if cfg, ok := s.vault.TokenConfigOf(token); ok {
			row.Whitelisted = true
			row.Decimals = cfg.Decimals
			row.Weight = cfg.Weight
			row.IsStable = cfg.IsStable
			row.IsShortable = cfg.IsShortable
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalWeights": s.vault.TotalTokenWeights(),
		"tokens":       rows,
	})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	pool := s.vault.PoolAmount(token)
	reserved := s.vault.ReservedAmount(token)
	usdg := s.vault.UsdgAmount(token)
	feeReserve := s.vault.FeeReserve(token)
	s.metrics.SetPoolGauges(token.Hex(), pool, reserved, usdg, feeReserve)
	writeJSON(w, http.StatusOK, map[string]string{
		"poolAmount":     pool.String(),
		"reservedAmount": reserved.String(),
		"usdgAmount":     usdg.String(),
		"guaranteedUsd":  s.vault.GuaranteedUsd(token).String(),
		"feeReserve":     feeReserve.String(),
		"bufferAmount":   s.vault.BufferAmount(token).String(),
		"globalShortSize": s.vault.GlobalShortSize(token).String(),
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	minPrice, err := s.vault.GetMinPrice(token)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	maxPrice, err := s.vault.GetMaxPrice(token)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"minPrice": minPrice.String(),
		"maxPrice": maxPrice.String(),
	})
}

func (s *Server) handleFunding(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"cumulativeFundingRate": s.vault.CumulativeFundingRate(token).String(),
		"nextFundingRate":       s.vault.GetNextFundingRate(token).String(),
	})
}

func (s *Server) handleUtilisation(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"utilisation": s.vault.GetUtilisation(token).String(),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	account, ok := parseAddress(query.Get("account"))
	if !ok {
		http.Error(w, "invalid account address", http.StatusBadRequest)
		return
	}
	collateral, ok := parseAddress(query.Get("collateral"))
	if !ok {
		http.Error(w, "invalid collateral address", http.StatusBadRequest)
		return
	}
	index, ok := parseAddress(query.Get("index"))
	if !ok {
		http.Error(w, "invalid index address", http.StatusBadRequest)
		return
	}
	isLong, err := strconv.ParseBool(query.Get("long"))
	if err != nil {
		http.Error(w, "invalid long flag", http.StatusBadRequest)
		return
	}

	position, found := s.vault.GetPosition(account, collateral, index, isLong)
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"found": false})
		return
	}
	payload := map[string]any{
		"found":             true,
		"key":               s.vault.GetPositionKey(account, collateral, index, isLong).Hex(),
		"size":              position.Size.String(),
		"collateral":        position.Collateral.String(),
		"averagePrice":      position.AveragePrice.String(),
		"entryFundingRate":  position.EntryFundingRate.String(),
		"reserveAmount":     position.ReserveAmount.String(),
		"realisedPnl":       position.RealisedPnl.String(),
		"lastIncreasedTime": position.LastIncreasedTime,
	}
	if hasProfit, delta, err := s.vault.GetPositionDelta(account, collateral, index, isLong); err == nil {
		payload["hasProfit"] = hasProfit
		payload["delta"] = delta.String()
	}
	if leverage, err := s.vault.GetPositionLeverage(account, collateral, index, isLong); err == nil {
		payload["leverage"] = leverage.String()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	entries, err := s.journal.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

type setFeesRequest struct {
	TaxBasisPoints           uint64 `json:"taxBps"`
	StableTaxBasisPoints     uint64 `json:"stableTaxBps"`
	MintBurnFeeBasisPoints   uint64 `json:"mintBurnFeeBps"`
	SwapFeeBasisPoints       uint64 `json:"swapFeeBps"`
	StableSwapFeeBasisPoints uint64 `json:"stableSwapFeeBps"`
	MarginFeeBasisPoints     uint64 `json:"marginFeeBps"`
	LiquidationFeeUsd        string `json:"liquidationFeeUsd"`
	MinProfitTimeSeconds     int64  `json:"minProfitTime"`
	HasDynamicFees           bool   `json:"dynamicFees"`
}

func parseBig(raw string) (*big.Int, bool) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), true
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req setFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	liquidationFee, ok := parseBig(req.LiquidationFeeUsd)
	if !ok {
		http.Error(w, "invalid liquidationFeeUsd", http.StatusBadRequest)
		return
	}
	err := s.vault.SetFees(
		req.TaxBasisPoints, req.StableTaxBasisPoints, req.MintBurnFeeBasisPoints,
		req.SwapFeeBasisPoints, req.StableSwapFeeBasisPoints, req.MarginFeeBasisPoints,
		liquidationFee, req.MinProfitTimeSeconds, req.HasDynamicFees,
	)
	s.metrics.ObserveOperation("set_fees", err, started)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.logger.Info("fees updated", "marginFeeBps", req.MarginFeeBasisPoints, "dynamic", req.HasDynamicFees)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setFundingRateRequest struct {
	IntervalSeconds  int64  `json:"interval"`
	RateFactor       uint64 `json:"rateFactor"`
	StableRateFactor uint64 `json:"stableRateFactor"`
}

func (s *Server) handleSetFundingRate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req setFundingRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	err := s.vault.SetFundingRate(req.IntervalSeconds, req.RateFactor, req.StableRateFactor)
	s.metrics.ObserveOperation("set_funding_rate", err, started)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setTokenConfigRequest struct {
	Token         string `json:"token"`
	Decimals      uint64 `json:"decimals"`
	Weight        uint64 `json:"weight"`
	MinProfitBps  uint64 `json:"minProfitBps"`
	MaxUsdgAmount string `json:"maxUsdgAmount"`
	IsStable      bool   `json:"isStable"`
	IsShortable   bool   `json:"isShortable"`
	Clear         bool   `json:"clear"`
}

func (s *Server) handleSetTokenConfig(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var req setTokenConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	token, ok := parseAddress(req.Token)
	if !ok {
		http.Error(w, "invalid token address", http.StatusBadRequest)
		return
	}
	var err error
	if req.Clear {
		err = s.vault.ClearTokenConfig(token)
	} else {
		var maxUsdg *big.Int
		maxUsdg, ok = parseBig(req.MaxUsdgAmount)
		if !ok {
			http.Error(w, "invalid maxUsdgAmount", http.StatusBadRequest)
			return
		}
		err = s.vault.SetTokenConfig(token, req.Decimals, req.Weight, req.MinProfitBps, maxUsdg, req.IsStable, req.IsShortable)
	}
	s.metrics.ObserveOperation("set_token_config", err, started)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setBufferRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleSetBuffer(w http.ResponseWriter, r *http.Request) {
	var req setBufferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	token, ok := parseAddress(req.Token)
	if !ok {
		http.Error(w, "invalid token address", http.StatusBadRequest)
		return
	}
	amount, ok := parseBig(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	s.vault.SetBufferAmount(token, amount)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setModesRequest struct {
	SwapEnabled              *bool `json:"swapEnabled"`
	LeverageEnabled          *bool `json:"leverageEnabled"`
	InManagerMode            *bool `json:"inManagerMode"`
	InPrivateLiquidationMode *bool `json:"inPrivateLiquidationMode"`
}

func (s *Server) handleSetModes(w http.ResponseWriter, r *http.Request) {
	var req setModesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.SwapEnabled != nil {
		s.vault.SetIsSwapEnabled(*req.SwapEnabled)
	}
	if req.LeverageEnabled != nil {
		s.vault.SetIsLeverageEnabled(*req.LeverageEnabled)
	}
	if req.InManagerMode != nil {
		s.vault.SetInManagerMode(*req.InManagerMode)
	}
	if req.InPrivateLiquidationMode != nil {
		s.vault.SetInPrivateLiquidationMode(*req.InPrivateLiquidationMode)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
