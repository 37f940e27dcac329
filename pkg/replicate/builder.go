package replicate

import (
	"errors"

	"github.com/theory-cloud/searchreplicator/pkg/observability"
)

// Builder folds change records into write operations, setting aside records that
// fail translation.
type Builder struct {
	logger observability.StructuredLogger
}

func NewBuilder(logger observability.StructuredLogger) *Builder {
	return &Builder{logger: observability.OrNoOp(logger)}
}

// Build translates records in delivery order. The returned operations keep that
// order so later changes to the same document win.
func (b *Builder) Build(records []ChangeRecord) ([]WriteOperation, []*TranslationError) {
	ops := make([]WriteOperation, 0, len(records))
	var failures []*TranslationError

	for _, rec := range records {
		op, err := Translate(rec)
		if err != nil {
			var terr *TranslationError
			if !errors.As(err, &terr) {
				terr = translationError(rec, err)
			}
			failures = append(failures, terr)
			b.logger.Warn("dropping untranslatable record", map[string]any{
				"sequence_number": terr.SequenceNumber,
				"event_id":        terr.EventID,
				"event_name":      string(rec.Kind),
				"reason":          terr.Reason(),
			})
			continue
		}

		b.logger.Debug("translated record", map[string]any{
			"sequence_number": rec.SequenceNumber,
			"op_type":         string(op.Kind()),
			"id":              op.DocID(),
		})
		ops = append(ops, op)
	}
	return ops, failures
}
