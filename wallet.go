package msafe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zyedidia/generic/mapset"
)

// Wallet is a pool of value controlled by a fixed set of owners. Every
// outgoing transfer needs confirmations from at least Threshold owners.
//
// All mutations of one wallet are serialized; queries see a consistent
// snapshot and return copies.
type Wallet struct {
	id        uuid.UUID
	owners    []string
	threshold int
	createdAt time.Time

	store    Store
	settler  Settler
	notifier Notifier

	mu      sync.RWMutex
	balance decimal.Decimal
	txs     []*Transaction
}

type Option func(w *Wallet)

// WithStore persists every state change of the wallet through s.
func WithStore(s Store) Option {
	return func(w *Wallet) {
		w.store = s
	}
}

// WithSettler sets the primitive used by Execute to move value.
func WithSettler(s Settler) Option {
	return func(w *Wallet) {
		w.settler = s
	}
}

func WithNotifier(n Notifier) Option {
	return func(w *Wallet) {
		w.notifier = n
	}
}

var errNoSettler = errors.New("no settler configured")

// NewWallet creates a wallet with an empty transaction log and zero balance.
func NewWallet(owners []string, threshold int, opts ...Option) (*Wallet, error) {
	if err := validateOwners(owners, threshold); err != nil {
		return nil, err
	}

	w := &Wallet{
		id:        uuid.New(),
		owners:    slices.Clone(owners),
		threshold: threshold,
		createdAt: time.Now(),
		store:     memoryStore{},
		settler: SettlerFunc(func(context.Context, *Transfer) error {
			return errNoSettler
		}),
		notifier: NotifierFunc(func(context.Context, *Event) {}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

func validateOwners(owners []string, threshold int) error {
	if len(owners) == 0 {
		return fmt.Errorf("%w: owners required", ErrInvalidConfiguration)
	}

	seen := mapset.New[string]()
	for _, owner := range owners {
		if owner == "" {
			return fmt.Errorf("%w: empty owner", ErrInvalidConfiguration)
		}

		if seen.Has(owner) {
			return fmt.Errorf("%w: duplicate owner %s", ErrInvalidConfiguration, owner)
		}

		seen.Put(owner)
	}

	if threshold < 1 || threshold > len(owners) {
		return fmt.Errorf("%w: threshold %d out of [1, %d]", ErrInvalidConfiguration, threshold, len(owners))
	}

	return nil
}

func (w *Wallet) ID() uuid.UUID {
	return w.id
}

func (w *Wallet) Owners() []string {
	return slices.Clone(w.owners)
}

// Threshold is the number of confirmations a transaction needs to execute.
func (w *Wallet) Threshold() int {
	return w.threshold
}

func (w *Wallet) Balance() decimal.Decimal {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.balance
}

func (w *Wallet) TransactionCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.txs)
}

func (w *Wallet) Transaction(index uint64) (*Transaction, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	tx, err := w.lookup(index)
	if err != nil {
		return nil, err
	}

	return tx.copy(), nil
}

func (w *Wallet) IsConfirmedBy(index uint64, owner string) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	tx, err := w.lookup(index)
	if err != nil {
		return false, err
	}

	return tx.isConfirmedBy(owner), nil
}

// Info returns a snapshot of the wallet header.
func (w *Wallet) Info() *WalletInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.info(w.balance)
}

func (w *Wallet) info(balance decimal.Decimal) *WalletInfo {
	return &WalletInfo{
		ID:        w.id,
		Owners:    slices.Clone(w.owners),
		Threshold: w.threshold,
		Balance:   balance,
		CreatedAt: w.createdAt,
	}
}

func (w *Wallet) onlyOwner(caller string) error {
	if !govalidator.IsIn(caller, w.owners...) {
		return fmt.Errorf("%w: %q is not an owner", ErrUnauthorized, caller)
	}

	return nil
}

func (w *Wallet) lookup(index uint64) (*Transaction, error) {
	if index >= uint64(len(w.txs)) {
		return nil, fmt.Errorf("transaction %d: %w", index, ErrNotFound)
	}

	return w.txs[index], nil
}

func (w *Wallet) emit(ctx context.Context, e *Event) {
	e.Wallet = w.id
	e.CreatedAt = time.Now()
	w.notifier.Notify(ctx, e)
}

// Deposit credits amount sent by sender. Anyone may deposit.
func (w *Wallet) Deposit(ctx context.Context, sender string, amount decimal.Decimal) error {
	return w.DepositWith(ctx, sender, amount, nil)
}

// DepositWith is Deposit with extra writes staged by stage. They commit in
// the same batch as the new balance, or not at all.
func (w *Wallet) DepositWith(ctx context.Context, sender string, amount decimal.Decimal, stage func(b Batch) error) error {
	if sender == "" {
		return fmt.Errorf("%w: empty sender", ErrInvalidArgument)
	}

	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidArgument, amount)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	balance := w.balance.Add(amount)
	if err := w.store.Update(func(b Batch) error {
		if err := b.SaveWallet(w.info(balance)); err != nil {
			return err
		}

		if stage != nil {
			return stage(b)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("save wallet failed: %w", err)
	}

	w.balance = balance
	w.emit(ctx, &Event{
		Kind:   EventDeposit,
		Actor:  sender,
		Amount: amount,
	})

	return nil
}

// Propose appends a new unconfirmed transaction and returns its index.
func (w *Wallet) Propose(ctx context.Context, caller, recipient string, amount decimal.Decimal, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.onlyOwner(caller); err != nil {
		return 0, err
	}

	if recipient == "" {
		return 0, fmt.Errorf("%w: empty recipient", ErrInvalidArgument)
	}

	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidArgument, amount)
	}

	if c, ok := w.settler.(RecipientChecker); ok {
		if err := c.CheckRecipient(recipient); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}

	tx := &Transaction{
		Index:     uint64(len(w.txs)),
		CreatedAt: time.Now(),
		Proposer:  caller,
		Recipient: recipient,
		Amount:    amount,
		Payload:   slices.Clone(payload),
	}

	if err := w.store.Update(func(b Batch) error {
		return b.SaveTransaction(w.id, tx)
	}); err != nil {
		return 0, fmt.Errorf("save transaction failed: %w", err)
	}

	w.txs = append(w.txs, tx)
	w.emit(ctx, &Event{
		Kind:      EventSubmit,
		Index:     tx.Index,
		Actor:     caller,
		Recipient: recipient,
		Amount:    amount,
		Payload:   slices.Clone(payload),
	})

	return tx.Index, nil
}

func (w *Wallet) Confirm(ctx context.Context, caller string, index uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.onlyOwner(caller); err != nil {
		return err
	}

	tx, err := w.lookup(index)
	if err != nil {
		return err
	}

	if tx.Executed {
		return fmt.Errorf("transaction %d: %w", index, ErrAlreadyExecuted)
	}

	if tx.isConfirmedBy(caller) {
		return fmt.Errorf("transaction %d by %s: %w", index, caller, ErrAlreadyConfirmed)
	}

	next := tx.copy()
	next.ConfirmedBy = append(next.ConfirmedBy, caller)
	next.Confirmations++

	if err := w.replace(next); err != nil {
		return err
	}

	w.emit(ctx, &Event{
		Kind:  EventConfirm,
		Index: index,
		Actor: caller,
	})

	return nil
}

// Revoke withdraws the caller's confirmation. Revoking without an active
// confirmation succeeds and changes nothing.
func (w *Wallet) Revoke(ctx context.Context, caller string, index uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.onlyOwner(caller); err != nil {
		return err
	}

	tx, err := w.lookup(index)
	if err != nil {
		return err
	}

	if tx.Executed {
		return fmt.Errorf("transaction %d: %w", index, ErrAlreadyExecuted)
	}

	if !tx.isConfirmedBy(caller) {
		return nil
	}

	next := tx.copy()
	next.ConfirmedBy = slices.DeleteFunc(next.ConfirmedBy, func(owner string) bool {
		return owner == caller
	})
	next.Confirmations--

	if err := w.replace(next); err != nil {
		return err
	}

	w.emit(ctx, &Event{
		Kind:  EventRevoke,
		Index: index,
		Actor: caller,
	})

	return nil
}

func (w *Wallet) replace(tx *Transaction) error {
	if err := w.store.Update(func(b Batch) error {
		return b.SaveTransaction(w.id, tx)
	}); err != nil {
		return fmt.Errorf("save transaction failed: %w", err)
	}

	w.txs[tx.Index] = tx
	return nil
}

// Execute settles a sufficiently confirmed transaction. The executed flag and
// the new balance are committed only after the settler reports success; a
// failed settlement leaves the wallet exactly as it was.
func (w *Wallet) Execute(ctx context.Context, caller string, index uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.onlyOwner(caller); err != nil {
		return err
	}

	tx, err := w.lookup(index)
	if err != nil {
		return err
	}

	if tx.Executed {
		return fmt.Errorf("transaction %d: %w", index, ErrAlreadyExecuted)
	}

	if tx.Confirmations < w.threshold {
		return fmt.Errorf("transaction %d has %d of %d: %w", index, tx.Confirmations, w.threshold, ErrInsufficientConfirmations)
	}

	if w.balance.LessThan(tx.Amount) {
		return fmt.Errorf("%w: balance %s below amount %s", ErrSettlementFailed, w.balance, tx.Amount)
	}

	next := tx.copy()
	next.Executed = true
	balance := w.balance.Sub(tx.Amount)

	transfer := &Transfer{
		TraceID:   transferTraceID(w.id, index),
		Wallet:    w.id,
		Index:     index,
		Recipient: tx.Recipient,
		Amount:    tx.Amount,
		Payload:   slices.Clone(tx.Payload),
	}

	var settled bool
	err = w.store.Update(func(b Batch) error {
		if err := b.SaveTransaction(w.id, next); err != nil {
			return err
		}

		if err := b.SaveWallet(w.info(balance)); err != nil {
			return err
		}

		if err := w.settler.Transfer(ctx, transfer); err != nil {
			return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}

		settled = true
		return nil
	})

	if err != nil {
		if !settled {
			return err
		}

		// the value already moved, so the wallet must never pay it again
		slog.Error(
			"commit executed transaction failed",
			"wallet", w.id,
			"index", index,
			"trace", transfer.TraceID,
			slog.Any("err", err),
		)
	}

	w.txs[index] = next
	w.balance = balance
	w.emit(ctx, &Event{
		Kind:      EventExecute,
		Index:     index,
		Actor:     caller,
		Recipient: tx.Recipient,
		Amount:    tx.Amount,
	})

	return nil
}
