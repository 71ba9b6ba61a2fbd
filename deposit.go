package msafe

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fox-one/mixin-sdk-go"
	"github.com/google/uuid"
)

const (
	depositOffsetProperty = "deposit_offset"
	depositSnapshotLimit  = 500
)

// SnapshotSource lists the transfers received by the service account.
// *mixin.Client implements it.
type SnapshotSource interface {
	ReadSnapshots(ctx context.Context, assetID string, offset time.Time, order string, limit int) ([]*mixin.Snapshot, error)
}

func (s *Server) LoopDeposits(ctx context.Context) error {
	for {
		_ = s.loopDeposits(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

func (s *Server) loopDeposits(ctx context.Context) error {
	var offset time.Time
	if err := s.store.ReadProperty(depositOffsetProperty, &offset); err != nil {
		slog.Error("read deposit offset", slog.Any("err", err))
		return err
	}

	snapshots, err := s.snapshots.ReadSnapshots(ctx, s.cfg.AssetID, offset, "ASC", depositSnapshotLimit)
	if err != nil {
		slog.Error("ReadSnapshots", slog.Any("err", err))
		return err
	}

	if len(snapshots) == 0 {
		return nil
	}

	slog.Info("ReadSnapshots", "count", len(snapshots), "offset", offset)

	for _, snapshot := range snapshots {
		if snapshot.CreatedAt.After(offset) {
			offset = snapshot.CreatedAt
		}

		if err := s.handleSnapshot(ctx, snapshot, offset); err != nil {
			slog.Error("handleSnapshot", "snapshot", snapshot.SnapshotID, slog.Any("err", err))
			return err
		}
	}

	return nil
}

// handleSnapshot credits an incoming transfer to the wallet whose handle is
// the memo and moves the deposit offset forward. The credit, the seen marker
// of the snapshot and the offset are committed in one batch.
func (s *Server) handleSnapshot(ctx context.Context, snapshot *mixin.Snapshot, offset time.Time) error {
	wallet, err := s.depositTarget(snapshot)
	if err != nil {
		return err
	}

	if wallet == nil {
		return s.store.SaveProperty(depositOffsetProperty, offset)
	}

	// on-chain deposits carry no opponent
	sender := snapshot.OpponentID
	if sender == "" {
		sender = snapshot.SnapshotID
	}

	slog.Info(
		"handle deposit",
		"wallet", wallet.ID(),
		"sender", sender,
		"amount", snapshot.Amount,
	)

	return wallet.DepositWith(ctx, sender, snapshot.Amount, func(b Batch) error {
		if err := b.SaveProperty(snapshotProperty(snapshot), true); err != nil {
			return err
		}

		return b.SaveProperty(depositOffsetProperty, offset)
	})
}

func snapshotProperty(snapshot *mixin.Snapshot) string {
	return "snapshot:" + snapshot.SnapshotID
}

// depositTarget returns the wallet a snapshot pays into, or nil when the
// snapshot is not a deposit or was credited already.
func (s *Server) depositTarget(snapshot *mixin.Snapshot) (*Wallet, error) {
	if !snapshot.Amount.IsPositive() || snapshot.AssetID != s.cfg.AssetID {
		return nil, nil
	}

	handle, err := uuid.Parse(strings.TrimSpace(snapshot.Memo))
	if err != nil {
		return nil, nil
	}

	var seen bool
	if err := s.store.ReadProperty(snapshotProperty(snapshot), &seen); err != nil {
		return nil, err
	}

	if seen {
		return nil, nil
	}

	wallet, err := s.registry.Wallet(handle)
	if err != nil {
		slog.Warn("deposit to unknown wallet", "wallet", handle, "snapshot", snapshot.SnapshotID)
		return nil, nil
	}

	return wallet, nil
}
