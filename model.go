package msafe

import (
	"encoding/hex"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payload is opaque data attached to a transaction, hex encoded in JSON.
type Payload []byte

func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(p))
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	v, err := hex.DecodeString(s)
	if err != nil {
		return err
	}

	*p = v
	return nil
}

// Transaction is one proposed outgoing transfer of a wallet.
type Transaction struct {
	Index         uint64          `json:"index"`
	CreatedAt     time.Time       `json:"created_at"`
	Proposer      string          `json:"proposer"`
	Recipient     string          `json:"recipient"`
	Amount        decimal.Decimal `json:"amount"`
	Payload       Payload         `json:"payload,omitempty"`
	Executed      bool            `json:"executed"`
	Confirmations int             `json:"confirmations"`
	ConfirmedBy   []string        `json:"confirmed_by"`
}

func (t *Transaction) copy() *Transaction {
	c := *t
	c.Payload = slices.Clone(t.Payload)
	c.ConfirmedBy = slices.Clone(t.ConfirmedBy)
	return &c
}

func (t *Transaction) isConfirmedBy(owner string) bool {
	return slices.Contains(t.ConfirmedBy, owner)
}

// WalletInfo is the persisted header of a wallet.
type WalletInfo struct {
	ID        uuid.UUID       `json:"id"`
	Owners    []string        `json:"owners"`
	Threshold int             `json:"threshold"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Entry pairs the creator of a wallet with its handle.
type Entry struct {
	Index     uint64    `json:"index"`
	Creator   string    `json:"creator"`
	Wallet    uuid.UUID `json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
}
