package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Contract type discriminators used on the wire.
const (
	ContractCreateSmart  = "CreateSmartContract"
	ContractTriggerSmart = "TriggerSmartContract"
)

// Transaction is the JSON envelope exchanged with the node: built unsigned,
// then signed and broadcast. Addresses inside the envelope are canonical hex.
type Transaction struct {
	TxID       string   `json:"txID,omitempty"`
	RawData    RawData  `json:"raw_data"`
	RawDataHex string   `json:"raw_data_hex,omitempty"`
	Signature  []string `json:"signature,omitempty"`
	Visible    bool     `json:"visible,omitempty"`
}

// RawData carries the payload covered by the transaction digest.
type RawData struct {
	Contract      []Contract `json:"contract"`
	RefBlockBytes string     `json:"ref_block_bytes,omitempty"`
	RefBlockHash  string     `json:"ref_block_hash,omitempty"`
	Expiration    int64      `json:"expiration,omitempty"`
	Timestamp     int64      `json:"timestamp,omitempty"`
	FeeLimit      int64      `json:"fee_limit,omitempty"`
}

// Contract is one operation inside the envelope. PermissionID selects which
// account permission authorises it; the node omits the field for id 0.
type Contract struct {
	Type         string    `json:"type"`
	PermissionID int32     `json:"Permission_id,omitempty"`
	Parameter    Parameter `json:"parameter"`
}

// Parameter wraps the typed contract payload.
type Parameter struct {
	TypeURL string        `json:"type_url"`
	Value   ContractValue `json:"value"`
}

// ContractValue is the union of fields used by contract deployment and
// invocation payloads.
type ContractValue struct {
	OwnerAddress    string       `json:"owner_address"`
	ContractAddress string       `json:"contract_address,omitempty"`
	Data            string       `json:"data,omitempty"`
	CallValue       int64        `json:"call_value,omitempty"`
	NewContract     *NewContract `json:"new_contract,omitempty"`
}

// NewContract describes a deployment payload.
type NewContract struct {
	Bytecode                   string          `json:"bytecode"`
	ABI                        json.RawMessage `json:"abi,omitempty"`
	OriginAddress              string          `json:"origin_address,omitempty"`
	Name                       string          `json:"name,omitempty"`
	ConsumeUserResourcePercent int64           `json:"consume_user_resource_percent,omitempty"`
	OriginEnergyLimit          int64           `json:"origin_energy_limit,omitempty"`
}

var errEmptyEnvelope = errors.New("types: transaction has no contract")

// OwnerAddress returns the canonical hex owner embedded in the first
// contract of the envelope.
func (tx *Transaction) OwnerAddress() (string, error) {
	if tx == nil || len(tx.RawData.Contract) == 0 {
		return "", errEmptyEnvelope
	}
	return strings.ToLower(tx.RawData.Contract[0].Parameter.Value.OwnerAddress), nil
}

// PermissionID returns the permission id declared on the first contract.
func (tx *Transaction) PermissionID() (int32, error) {
	if tx == nil || len(tx.RawData.Contract) == 0 {
		return 0, errEmptyEnvelope
	}
	return tx.RawData.Contract[0].PermissionID, nil
}

// ForcePermissionID stamps the permission id onto every contract in the
// envelope. Node-side construction is known to drop a non-default id, so the
// caller re-applies it after every build.
func (tx *Transaction) ForcePermissionID(id int32) {
	for i := range tx.RawData.Contract {
		tx.RawData.Contract[i].PermissionID = id
	}
}

// Digest computes the 32-byte hash the signature covers. When the node
// supplied raw_data_hex that exact byte serialisation is hashed; locally
// assembled envelopes fall back to the canonical JSON of raw_data.
func (tx *Transaction) Digest() ([]byte, error) {
	if tx == nil {
		return nil, errEmptyEnvelope
	}
	if tx.RawDataHex != "" {
		raw, err := hex.DecodeString(tx.RawDataHex)
		if err != nil {
			return nil, fmt.Errorf("types: decode raw_data_hex: %w", err)
		}
		sum := sha256.Sum256(raw)
		return sum[:], nil
	}
	raw, err := json.Marshal(tx.RawData)
	if err != nil {
		return nil, fmt.Errorf("types: encode raw_data: %w", err)
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

// Seal computes the digest and stamps it as the transaction id.
func (tx *Transaction) Seal() error {
	digest, err := tx.Digest()
	if err != nil {
		return err
	}
	tx.TxID = hex.EncodeToString(digest)
	return nil
}

// Signed reports whether at least one signature is attached.
func (tx *Transaction) Signed() bool {
	return tx != nil && len(tx.Signature) > 0
}

// TransactionInfo is the node's post-broadcast view of a transaction.
type TransactionInfo struct {
	ID              string  `json:"id"`
	BlockNumber     int64   `json:"blockNumber,omitempty"`
	ContractAddress string  `json:"contract_address,omitempty"`
	Result          string  `json:"result,omitempty"`
	ResMessage      string  `json:"resMessage,omitempty"`
	Receipt         Receipt `json:"receipt,omitempty"`
}

// Receipt summarises metered execution of a confirmed transaction.
type Receipt struct {
	Result           string `json:"result,omitempty"`
	EnergyUsageTotal int64  `json:"energy_usage_total,omitempty"`
	NetUsage         int64  `json:"net_usage,omitempty"`
}

// Confirmed reports whether the transaction landed in a block.
func (ti *TransactionInfo) Confirmed() bool {
	return ti != nil && ti.BlockNumber > 0
}

// Reverted reports whether execution terminated with a revert or failure
// result. A reverted transaction is final; polling must stop immediately.
func (ti *TransactionInfo) Reverted() bool {
	if ti == nil {
		return false
	}
	if strings.EqualFold(ti.Result, "FAILED") {
		return true
	}
	switch strings.ToUpper(ti.Receipt.Result) {
	case "REVERT", "OUT_OF_ENERGY", "OUT_OF_TIME", "ILLEGAL_OPERATION":
		return true
	}
	return false
}

// BlockRef carries the reference-block fields a locally assembled envelope
// needs.
type BlockRef struct {
	Number int64
	Hash   string
}

// RefBlockBytes returns the low two bytes of the block number in hex, the
// form embedded in raw_data.
func (b BlockRef) RefBlockBytes() string {
	return fmt.Sprintf("%04x", uint16(b.Number))
}

// RefBlockHash returns bytes 8..16 of the block hash, the form embedded in
// raw_data.
func (b BlockRef) RefBlockHash() (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(b.Hash), "0x")
	if len(trimmed) < 32 {
		return "", fmt.Errorf("types: block hash too short: %q", b.Hash)
	}
	return trimmed[16:32], nil
}
