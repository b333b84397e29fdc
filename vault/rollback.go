package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operations are all-or-nothing: every mutating flow captures the bookkeeping
// entries it may touch and restores them when it returns an error. External
// side effects (transfers, mint, burn) are ordered after the last fallible
// bookkeeping step, so a restored operation has moved no funds.

type tokenSnapshot struct {
	tokenBalance           *big.Int
	poolAmount             *big.Int
	reservedAmount         *big.Int
	usdgAmount             *big.Int
	guaranteedUsd          *big.Int
	feeReserve             *big.Int
	cumulativeFundingRate  *big.Int
	lastFundingTime        int64
	hasLastFundingTime     bool
	globalShortSize        *big.Int
	globalShortAveragePrice *big.Int
}

type stateSnapshot struct {
	tokens      map[common.Address]tokenSnapshot
	positionKey PositionKey
	position    *Position
	hasPosition bool
	tracked     bool
}

// beginOp snapshots the touched tokens and starts buffering events; endOp
// either flushes the buffer (success) or restores the snapshot and drops the
// buffered events (failure).
func (v *Vault) beginOp(tokens ...common.Address) *stateSnapshot {
	v.buffering = true
	v.pending = v.pending[:0]
	return v.capture(tokens...)
}

func (v *Vault) endOp(snap *stateSnapshot, err error) {
	v.buffering = false
	if err != nil {
		v.restore(snap)
		v.pending = v.pending[:0]
		return
	}
	for _, e := range v.pending {
		v.emitter.Emit(e)
	}
	v.pending = v.pending[:0]
}

func (v *Vault) capture(tokens ...common.Address) *stateSnapshot {
	snap := &stateSnapshot{tokens: make(map[common.Address]tokenSnapshot, len(tokens))}
	for _, token := range tokens {
		if _, ok := snap.tokens[token]; ok {
			continue
		}
		last, hasLast := v.lastFundingTimes[token]
		snap.tokens[token] = tokenSnapshot{
			tokenBalance:            cloneBig(v.tokenBalances[token]),
			poolAmount:              cloneBig(v.poolAmounts[token]),
			reservedAmount:          cloneBig(v.reservedAmounts[token]),
			usdgAmount:              cloneBig(v.usdgAmounts[token]),
			guaranteedUsd:           cloneBig(v.guaranteedUsd[token]),
			feeReserve:              cloneBig(v.feeReserves[token]),
			cumulativeFundingRate:   cloneBig(v.cumulativeFundingRates[token]),
			lastFundingTime:         last,
			hasLastFundingTime:      hasLast,
			globalShortSize:         cloneBig(v.globalShortSizes[token]),
			globalShortAveragePrice: cloneBig(v.globalShortAveragePrices[token]),
		}
	}
	return snap
}

func (snap *stateSnapshot) trackPosition(v *Vault, key PositionKey) {
	snap.positionKey = key
	snap.tracked = true
	if pos, ok := v.positions[key]; ok {
		snap.position = pos.Clone()
		snap.hasPosition = true
	}
}

func (v *Vault) restore(snap *stateSnapshot) {
	for token, s := range snap.tokens {
		v.tokenBalances[token] = s.tokenBalance
		v.poolAmounts[token] = s.poolAmount
		v.reservedAmounts[token] = s.reservedAmount
		v.usdgAmounts[token] = s.usdgAmount
		v.guaranteedUsd[token] = s.guaranteedUsd
		v.feeReserves[token] = s.feeReserve
		v.cumulativeFundingRates[token] = s.cumulativeFundingRate
		if s.hasLastFundingTime {
			v.lastFundingTimes[token] = s.lastFundingTime
		} else {
			delete(v.lastFundingTimes, token)
		}
		v.globalShortSizes[token] = s.globalShortSize
		v.globalShortAveragePrices[token] = s.globalShortAveragePrice
	}
	if snap.tracked {
		if snap.hasPosition {
			v.positions[snap.positionKey] = snap.position
		} else {
			delete(v.positions, snap.positionKey)
		}
	}
}
