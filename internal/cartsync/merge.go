package cartsync

import (
	"context"
	"strconv"

	"github.com/dukerupert/cartcore/internal/domain"
)

// MergeReport summarizes a login drain.
type MergeReport struct {
	Attempted int                    `json:"attempted"`
	Drained   int                    `json:"drained"`
	Failures  []*domain.MergeFailure `json:"failures,omitempty"`
}

// Partial reports whether at least one item failed to merge.
func (r *MergeReport) Partial() bool {
	return r != nil && len(r.Failures) > 0
}

// drain issues one AddItem per local line item, sequentially and in
// insertion order. A failed item is recorded and skipped; it is neither
// retried nor written back to local storage.
//
// Each item leaves local storage as soon as its AddItem has been answered,
// so a drain aborted by cancellation or an expired session never sends an
// item twice on the next login. The item in flight when ctx is canceled
// stays local.
func (s *Synchronizer) drain(ctx context.Context) (*MergeReport, error) {
	items := s.local.GetAll(ctx)
	report := &MergeReport{Attempted: len(items)}
	if len(items) == 0 {
		return report, nil
	}

	storeID := s.local.Snapshot(ctx).StoreID
	if storeID == "" {
		storeID = s.StoreID()
	}

	s.logger.Info("draining local cart", "items", len(items), "store_id", storeID)

	for _, li := range items {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("login merge canceled", "drained", report.Drained, "remaining", len(items)-report.Drained-len(report.Failures))
			return report, err
		}

		_, err := s.remote.AddItem(ctx, storeID, li.Key(), li.Quantity)
		if err == nil {
			report.Drained++
			s.local.Remove(context.WithoutCancel(ctx), li.Key())
			continue
		}
		if ctx.Err() != nil {
			s.logger.Warn("login merge canceled", "drained", report.Drained)
			return report, ctx.Err()
		}
		if domain.IsCode(err, domain.EUNAUTHORIZED) {
			s.logger.Warn("login merge rejected, session invalid", "drained", report.Drained, "error", err)
			return report, err
		}

		failure := &domain.MergeFailure{Item: li, Err: err}
		report.Failures = append(report.Failures, failure)
		s.logMergeFailure(failure)
		s.local.Remove(context.WithoutCancel(ctx), li.Key())
	}

	return report, nil
}

func (s *Synchronizer) logMergeFailure(f *domain.MergeFailure) {
	attrs := []any{
		"product_id", f.Item.ProductID,
		"quantity", f.Item.Quantity,
		"error", f.Err,
	}
	tags := map[string]string{
		"component":  "cartsync",
		"product_id": strconv.FormatInt(f.Item.ProductID, 10),
	}
	if v := f.Item.Key().Variation(); v != nil {
		attrs = append(attrs, "variation_id", *v)
		tags["variation_id"] = strconv.FormatInt(*v, 10)
	}
	s.logger.Warn("merge item failed, skipping", attrs...)

	if s.reporter != nil {
		s.reporter.CaptureError(f, tags)
	}
}
