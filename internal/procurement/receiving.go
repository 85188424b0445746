package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/assettrack/internal/assets"
	"github.com/odyssey-erp/assettrack/internal/shared"
)

// ReceiveItems applies instructions to purchase order poID in one
// transaction: received quantities grow, one asset is created per unit, the
// status is recomputed and a single audit entry is written. Any failure
// leaves the order untouched. The call is not idempotent unless the context
// carries an idempotency key.
func (s *Service) ReceiveItems(ctx context.Context, poID string, instructions []ReceiptInstruction) (ReceiveResult, error) {
	if err := validateInstructions(poID, instructions); err != nil {
		return ReceiveResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.receiveTimeout)
	defer cancel()

	started := s.now()
	var result ReceiveResult
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if key := shared.IdempotencyKeyFromContext(ctx); key != "" {
			if err := tx.ClaimIdempotencyKey(ctx, key); err != nil {
				return err
			}
		}
		po, err := tx.LockPurchaseOrder(ctx, poID)
		if err != nil {
			return err
		}
		number = po.Number

		serials := newSerialSource(started)
		units := 0
		created := make([]assets.Asset, 0)
		for _, in := range instructions {
			if err := tx.IncrementReceived(ctx, po.ID, in.LineItemID, float64(in.Quantity)); err != nil {
				return err
			}
			name := DefaultProductName
			li, err := tx.FindLineItem(ctx, po.ID, in.LineItemID)
			switch {
			case err == nil && strings.TrimSpace(li.ProductName) != "":
				name = li.ProductName
			case err != nil && !errors.Is(err, ErrNotFound):
				return err
			}
			batch := buildAssets(po.ID, name, in, serials)
			if err := tx.CreateAssets(ctx, batch); err != nil {
				return err
			}
			created = append(created, batch...)
			units += in.Quantity
		}

		items, err := tx.ListLineItems(ctx, po.ID)
		if err != nil {
			return err
		}
		for _, li := range items {
			if li.ReceivedQty > li.Quantity {
				s.logger.Warn("line item over-received",
					slog.String("po_id", po.ID),
					slog.String("line_item_id", li.ID),
					slog.Float64("quantity", li.Quantity),
					slog.Float64("received_qty", li.ReceivedQty))
			}
		}
		status := computeStatus(items)
		if err := tx.UpdateStatus(ctx, po.ID, status); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  shared.ActorFromContext(ctx),
			Action:   "RECEIVE_ITEMS",
			Entity:   "PurchaseOrder",
			EntityID: po.ID,
			Meta:     map[string]any{"units": units, "status": string(status), "line_items": len(instructions)},
		}); err != nil {
			return err
		}
		result = ReceiveResult{PurchaseOrderID: po.ID, Status: status, UnitsReceived: units, Assets: created}
		return nil
	})
	if err != nil {
		s.logger.Error("receive items", slog.String("po_id", poID), slog.Any("error", err))
		return ReceiveResult{}, fmt.Errorf("failed to receive items: %w", err)
	}

	s.logger.Info("items received",
		slog.String("po_id", poID),
		slog.Int("units", result.UnitsReceived),
		slog.String("status", string(result.Status)),
		slog.Duration("elapsed", s.now().Sub(started)))
	s.publishReceived(ctx, number, started, result)
	return result, nil
}

func validateInstructions(poID string, instructions []ReceiptInstruction) error {
	if strings.TrimSpace(poID) == "" {
		return &ValidationError{Reason: "purchase order id is required"}
	}
	if len(instructions) == 0 {
		return &ValidationError{Reason: "at least one receipt instruction is required"}
	}
	for _, in := range instructions {
		switch {
		case strings.TrimSpace(in.LineItemID) == "":
			return &ValidationError{Reason: "line item id is required"}
		case strings.TrimSpace(in.TargetSubCategoryID) == "":
			return &ValidationError{LineItemID: in.LineItemID, Reason: "target sub-category is required"}
		case in.Quantity <= 0:
			return &ValidationError{LineItemID: in.LineItemID, Reason: "quantity must be positive"}
		case len(in.Serials) > in.Quantity:
			return &ValidationError{LineItemID: in.LineItemID, Reason: fmt.Sprintf("%d serials given for %d units", len(in.Serials), in.Quantity)}
		}
	}
	return nil
}

// serialSource synthesizes placeholder serials unique within one run.
type serialSource struct {
	prefix string
	n      int
}

func newSerialSource(t time.Time) *serialSource {
	return &serialSource{prefix: fmt.Sprintf("RCV-%d", t.UnixMilli())}
}

func (s *serialSource) next() string {
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// buildAssets returns exactly in.Quantity assets. Supplied serials are used in
// order, blank ones become UnknownSerial and the shortfall is synthesized.
func buildAssets(poID, name string, in ReceiptInstruction, serials *serialSource) []assets.Asset {
	out := make([]assets.Asset, 0, in.Quantity)
	for i := 0; i < in.Quantity; i++ {
		var serial string
		if i < len(in.Serials) {
			serial = strings.TrimSpace(in.Serials[i])
			if serial == "" {
				serial = UnknownSerial
			}
		} else {
			serial = serials.next()
		}
		out = append(out, assets.Asset{
			SubCategoryID:   in.TargetSubCategoryID,
			Status:          assets.StatusActive,
			PurchaseOrderID: poID,
			Properties:      shared.NewProperties("Name", name, "Serial No", serial, "PO Ref", poID),
		})
	}
	return out
}

func (s *Service) publishReceived(ctx context.Context, number string, at time.Time, result ReceiveResult) {
	if s.events == nil {
		return
	}
	ids := make([]string, 0, len(result.Assets))
	for _, a := range result.Assets {
		ids = append(ids, a.ID)
	}
	evt := ItemsReceivedEvent{
		PurchaseOrderID: result.PurchaseOrderID,
		PONumber:        number,
		Status:          result.Status,
		UnitsReceived:   result.UnitsReceived,
		AssetIDs:        ids,
		ReceivedAt:      at,
	}
	if err := s.events.HandleItemsReceived(ctx, evt); err != nil {
		s.logger.Warn("publish receive event", slog.String("po_id", result.PurchaseOrderID), slog.Any("error", err))
	}
}
