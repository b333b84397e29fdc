package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"perpvault/vault"
)

var vaultStateKey = []byte("vault/state")

// VaultStore persists vault snapshots into a Database using RLP encoding.
type VaultStore struct {
	db Database
}

// NewVaultStore wraps db.
func NewVaultStore(db Database) *VaultStore {
	return &VaultStore{db: db}
}

// Save snapshots v and writes it under the state key.
func (s *VaultStore) Save(v *vault.Vault) error {
	encoded, err := rlp.EncodeToBytes(v.ExportState())
	if err != nil {
		return fmt.Errorf("encode vault state: %w", err)
	}
	if err := s.db.Put(vaultStateKey, encoded); err != nil {
		return fmt.Errorf("persist vault state: %w", err)
	}
	return nil
}

// Load restores the stored snapshot into v. It reports found=false when no
// snapshot has been written yet.
func (s *VaultStore) Load(v *vault.Vault) (bool, error) {
	encoded, err := s.db.Get(vaultStateKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read vault state: %w", err)
	}
	state := new(vault.State)
	if err := rlp.DecodeBytes(encoded, state); err != nil {
		return false, fmt.Errorf("decode vault state: %w", err)
	}
	v.RestoreState(state)
	return true, nil
}
