package msafe

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/asaskevich/govalidator"
	"github.com/fox-one/mixin-sdk-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer is a request to move value out of a wallet.
type Transfer struct {
	// TraceID is derived from the wallet handle and transaction index, so a
	// retried settlement of the same transaction carries the same id.
	TraceID   uuid.UUID
	Wallet    uuid.UUID
	Index     uint64
	Recipient string
	Amount    decimal.Decimal
	Payload   Payload
}

// Settler is the external primitive that actually moves value. A nil error
// means the value moved; any error means nothing moved.
//
// Transfer is called while the wallet is locked and must not call back into
// the same wallet.
type Settler interface {
	Transfer(ctx context.Context, t *Transfer) error
}

type SettlerFunc func(ctx context.Context, t *Transfer) error

func (f SettlerFunc) Transfer(ctx context.Context, t *Transfer) error {
	return f(ctx, t)
}

// RecipientChecker is implemented by settlers that can only pay some
// recipients. Propose refuses recipients the settler would refuse.
type RecipientChecker interface {
	CheckRecipient(recipient string) error
}

func transferTraceID(wallet uuid.UUID, index uint64) uuid.UUID {
	b := binary.BigEndian.AppendUint64(nil, index)
	return uuid.NewSHA1(wallet, b)
}

// MixinSettler settles transfers through the Mixin network, paying out of the
// bot account configured in client.
type MixinSettler struct {
	client  *mixin.Client
	assetID string
	pin     string
}

func NewMixinSettler(client *mixin.Client, assetID, pin string) *MixinSettler {
	return &MixinSettler{
		client:  client,
		assetID: assetID,
		pin:     pin,
	}
}

// CheckRecipient accepts mixin user ids only.
func (s *MixinSettler) CheckRecipient(recipient string) error {
	if !govalidator.IsUUID(recipient) {
		return errors.New("recipient is not a mixin user id")
	}

	return nil
}

// mixin amounts carry at most 8 decimal places
const mixinPrecision = 8

func (s *MixinSettler) Transfer(ctx context.Context, t *Transfer) error {
	if !t.Amount.IsPositive() {
		// nothing to move
		return nil
	}

	if !t.Amount.Equal(t.Amount.Truncate(mixinPrecision)) {
		return fmt.Errorf("amount %s exceeds %d decimal places", t.Amount, mixinPrecision)
	}

	if err := s.CheckRecipient(t.Recipient); err != nil {
		return err
	}

	input := &mixin.TransferInput{
		AssetID:    s.assetID,
		OpponentID: t.Recipient,
		Amount:     t.Amount,
		TraceID:    t.TraceID.String(),
		Memo:       hex.EncodeToString(t.Payload),
	}

	if _, err := s.client.Transfer(ctx, input, s.pin); err != nil {
		return fmt.Errorf("mixin transfer failed: %w", err)
	}

	return nil
}
