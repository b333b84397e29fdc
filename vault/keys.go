package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PositionKey identifies a position record. It is the keccak256 hash of the
// concatenated account, collateral token, index token and direction byte, so
// the same tuple always resolves to the same record.
type PositionKey [32]byte

// Hex renders the key for transport and journal rows.
func (k PositionKey) Hex() string {
	return common.Hash(k).Hex()
}

func positionKey(account, collateralToken, indexToken common.Address, isLong bool) PositionKey {
	buf := make([]byte, 0, 3*common.AddressLength+1)
	buf = append(buf, account.Bytes()...)
	buf = append(buf, collateralToken.Bytes()...)
	buf = append(buf, indexToken.Bytes()...)
	if isLong {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return PositionKey(crypto.Keccak256Hash(buf))
}
