package indexer

import (
	"fmt"

	"go.uber.org/zap"

	"poolindexer/internal/model"
)

// RangeFailure is a block range that could not be applied completely.
type RangeFailure struct {
	Range BlockRange
	// Kind is the event kind whose fetch failed. Empty when the fetch
	// succeeded but events were dropped for store failures.
	Kind model.Kind
	Err  error
}

func (f *RangeFailure) Error() string {
	if f.Kind == "" {
		return fmt.Sprintf("range [%d,%d]: %v", f.Range.From, f.Range.To, f.Err)
	}
	return fmt.Sprintf("range [%d,%d] %s: %v", f.Range.From, f.Range.To, f.Kind, f.Err)
}

func (f *RangeFailure) Unwrap() error { return f.Err }

// BackfillReport summarizes one backfill pass.
type BackfillReport struct {
	From         uint64
	To           uint64
	Ranges       int
	Applied      map[model.Kind]int
	Failed       map[model.Kind]int
	FailedRanges []RangeFailure
	Watermark    uint64
}

func newBackfillReport(from, to uint64) BackfillReport {
	return BackfillReport{
		From:    from,
		To:      to,
		Applied: make(map[model.Kind]int),
		Failed:  make(map[model.Kind]int),
	}
}

// Complete reports whether every range was applied.
func (r BackfillReport) Complete() bool {
	return len(r.FailedRanges) == 0
}

func (r *BackfillReport) add(res batchResult) {
	for kind, n := range res.applied {
		r.Applied[kind] += n
	}
	for kind, n := range res.failed {
		r.Failed[kind] += n
	}
}

func (r BackfillReport) log(logger *zap.Logger) {
	fields := []zap.Field{
		zap.Uint64("from", r.From),
		zap.Uint64("to", r.To),
		zap.Int("ranges", r.Ranges),
		zap.Uint64("watermark", r.Watermark),
	}
	for _, kind := range model.AllKinds() {
		fields = append(fields,
			zap.Int(string(kind)+"_applied", r.Applied[kind]),
			zap.Int(string(kind)+"_failed", r.Failed[kind]),
		)
	}
	if r.Complete() {
		logger.Info("backfill complete", fields...)
		return
	}
	logger.Error("backfill finished with failed ranges", append(fields, zap.Int("failed_ranges", len(r.FailedRanges)))...)
	for i := range r.FailedRanges {
		f := r.FailedRanges[i]
		logger.Error("failed range",
			zap.Uint64("from", f.Range.From),
			zap.Uint64("to", f.Range.To),
			zap.String("kind", string(f.Kind)),
			zap.Error(f.Err),
		)
	}
}
