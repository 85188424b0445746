package procurement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/odyssey-erp/assettrack/internal/shared"
	"github.com/odyssey-erp/assettrack/internal/sheet"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindByNumber(ctx context.Context, number string) (PurchaseOrder, error)
	CreateFromDraft(ctx context.Context, draft PurchaseOrderDraft) (PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DefaultReceiveTimeout bounds a single receiving transaction.
const DefaultReceiveTimeout = 60 * time.Second

const idempotencyModule = "procurement.receive"

// Service orchestrates procurement flows.
type Service struct {
	repo           RepositoryPort
	audit          AuditPort
	events         EventHandler
	logger         *slog.Logger
	receiveTimeout time.Duration
	now            func() time.Time
}

// NewService constructs procurement service. audit and events may be nil.
func NewService(repo RepositoryPort, audit AuditPort, events EventHandler, logger *slog.Logger, receiveTimeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if receiveTimeout <= 0 {
		receiveTimeout = DefaultReceiveTimeout
	}
	return &Service{repo: repo, audit: audit, events: events, logger: logger, receiveTimeout: receiveTimeout, now: time.Now}
}

// ScanPDF parses an uploaded purchase order PDF into a draft for review.
func (s *Service) ScanPDF(ctx context.Context, path string) (PurchaseOrderDraft, error) {
	draft, err := ScanPDF(path, today(s.now()))
	if err != nil {
		s.logger.Error("scan purchase order pdf", slog.String("path", path), slog.Any("error", err))
		return PurchaseOrderDraft{}, err
	}
	s.logger.Info("scanned purchase order pdf",
		slog.String("po_number", draft.PONumber),
		slog.Int("line_items", len(draft.LineItems)),
		slog.Int("warnings", len(draft.Warnings)))
	return draft, nil
}

// ImportPurchaseOrderFile reads the workbook at path and imports its POs.
func (s *Service) ImportPurchaseOrderFile(ctx context.Context, path string) (ImportSummary, error) {
	r, err := sheet.Open(path)
	if err != nil {
		return ImportSummary{}, err
	}
	defer r.Close()
	return s.importSheet(ctx, r, path)
}

// ImportPurchaseOrderReader imports POs from an xlsx stream.
func (s *Service) ImportPurchaseOrderReader(ctx context.Context, src io.Reader, name string) (ImportSummary, error) {
	r, err := sheet.OpenReader(src)
	if err != nil {
		return ImportSummary{}, err
	}
	defer r.Close()
	return s.importSheet(ctx, r, name)
}

func (s *Service) importSheet(ctx context.Context, r *sheet.Reader, source string) (ImportSummary, error) {
	drafts, warnings, err := ParsePurchaseOrderSheet(r, today(s.now()))
	if err != nil {
		return ImportSummary{}, err
	}
	summary, err := s.ImportPurchaseOrders(ctx, drafts)
	summary.Warnings = append(warnings, summary.Warnings...)
	if err != nil {
		return summary, err
	}
	s.publishImported(ctx, source, summary)
	return summary, nil
}

// ImportPurchaseOrders persists every draft whose PO number is new, one
// transaction per PO. Existing numbers are skipped without merging. Drafts
// that fail validation are reported in Warnings and the run continues; any
// other failure stops it and POs created before it stay.
func (s *Service) ImportPurchaseOrders(ctx context.Context, drafts []PurchaseOrderDraft) (ImportSummary, error) {
	summary := ImportSummary{Total: len(drafts), Skipped: []string{}, PurchaseOrders: []PurchaseOrder{}}
	for _, draft := range drafts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		po, err := s.createIfNew(ctx, draft)
		if errors.Is(err, ErrDuplicate) {
			s.logger.Info("skipping existing purchase order", slog.String("po_number", draft.PONumber))
			summary.Skipped = append(summary.Skipped, draft.PONumber)
			continue
		}
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			s.logger.Warn("skipping invalid purchase order", slog.String("po_number", draft.PONumber), slog.Any("error", err))
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("purchase order %s not imported: %s", draft.PONumber, vErr.Reason))
			continue
		}
		if err != nil {
			s.logger.Error("import purchase order", slog.String("po_number", draft.PONumber), slog.Any("error", err))
			return summary, fmt.Errorf("import purchase order %s: %w", draft.PONumber, err)
		}
		summary.Created++
		summary.PurchaseOrders = append(summary.PurchaseOrders, po)
	}
	return summary, nil
}

// CreatePurchaseOrder persists a single reviewed draft.
func (s *Service) CreatePurchaseOrder(ctx context.Context, draft PurchaseOrderDraft) (PurchaseOrder, error) {
	po, err := s.createIfNew(ctx, draft)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.publishImported(ctx, "draft", ImportSummary{Total: 1, Created: 1})
	return po, nil
}

func (s *Service) createIfNew(ctx context.Context, draft PurchaseOrderDraft) (PurchaseOrder, error) {
	draft = normalizeDraft(draft)
	if err := validateDraft(draft); err != nil {
		return PurchaseOrder{}, err
	}
	if _, err := s.repo.FindByNumber(ctx, draft.PONumber); err == nil {
		return PurchaseOrder{}, fmt.Errorf("%w: %s", ErrDuplicate, draft.PONumber)
	} else if !errors.Is(err, ErrNotFound) {
		return PurchaseOrder{}, err
	}
	po, err := s.repo.CreateFromDraft(ctx, draft)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", po.ID, map[string]any{"number": po.Number, "line_items": len(po.LineItems)})
	return po, nil
}

// GetPurchaseOrder returns a PO with its line items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

// ListPurchaseOrders returns a page of PO headers and the total count.
func (s *Service) ListPurchaseOrders(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error) {
	return s.repo.ListPurchaseOrders(ctx, filters)
}

// normalizeDraft fills defaults and recomputes totals after operator edits.
func normalizeDraft(d PurchaseOrderDraft) PurchaseOrderDraft {
	items := make([]LineItemDraft, len(d.LineItems))
	for i, li := range d.LineItems {
		if li.GSTPercent.IsZero() && li.TotalAmount.IsZero() {
			li.GSTPercent = DefaultGSTPercent
		}
		items[i] = NewLineItemDraft(li.SrNo, li.ProductName, li.Quantity, li.UOM, li.UnitPrice, li.GSTPercent)
	}
	d.LineItems = items
	return d
}

func validateDraft(d PurchaseOrderDraft) error {
	if d.PONumber == "" {
		return &ValidationError{Reason: "po number is required"}
	}
	if len(d.LineItems) == 0 {
		return &ValidationError{Reason: fmt.Sprintf("purchase order %s has no line items", d.PONumber)}
	}
	for i, li := range d.LineItems {
		if li.SrNo != i+1 {
			return &ValidationError{Reason: fmt.Sprintf("line %d: serial number %d out of sequence", i+1, li.SrNo)}
		}
		if li.Quantity <= 0 {
			return &ValidationError{Reason: fmt.Sprintf("line %d: quantity must be positive", li.SrNo)}
		}
		if li.UnitPrice.IsNegative() {
			return &ValidationError{Reason: fmt.Sprintf("line %d: unit price must not be negative", li.SrNo)}
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: shared.ActorFromContext(ctx), Action: action, Entity: "PurchaseOrder", EntityID: entityID, Meta: meta})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publishImported(ctx context.Context, source string, summary ImportSummary) {
	if s.events == nil {
		return
	}
	evt := PurchaseOrdersImportedEvent{Source: source, Total: summary.Total, Created: summary.Created, Skipped: len(summary.Skipped)}
	if err := s.events.HandlePurchaseOrdersImported(ctx, evt); err != nil {
		s.logger.Warn("publish import event", slog.Any("error", err))
	}
}

func today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
