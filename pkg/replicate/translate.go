package replicate

import (
	"fmt"
	"strings"

	"github.com/theory-cloud/searchreplicator/pkg/attr"
)

// DocumentID joins the string form of every key value with ":" in the map's
// iteration order.
func DocumentID(keys attr.Map) (string, error) {
	if keys.Len() == 0 {
		return "", ErrNoKeyAttributes
	}
	parts := make([]string, len(keys))
	for i, f := range keys {
		parts[i] = attr.KeyString(f.Value)
	}
	id := strings.Join(parts, ":")
	if id == "" {
		return "", ErrEmptyDocumentID
	}
	return id, nil
}

// Translate maps one change record to its write operation. REMOVE records never
// look at NewImage.
func Translate(rec ChangeRecord) (WriteOperation, error) {
	origin := Origin{EventID: rec.EventID, SequenceNumber: rec.SequenceNumber}

	switch rec.Kind {
	case EventInsert, EventModify, EventRemove:
	default:
		return nil, translationError(rec, fmt.Errorf("%w %q", ErrUnknownEventKind, rec.Kind))
	}

	id, err := DocumentID(rec.Keys)
	if err != nil {
		return nil, translationError(rec, err)
	}

	if rec.Kind == EventRemove {
		return Delete{ID: id, Origin: origin}, nil
	}

	if rec.NewImage.Len() == 0 {
		return nil, translationError(rec, ErrMissingNewImage)
	}
	return Upsert{ID: id, Document: attr.ConvertMap(rec.NewImage), Origin: origin}, nil
}

func translationError(rec ChangeRecord, err error) *TranslationError {
	return &TranslationError{SequenceNumber: rec.SequenceNumber, EventID: rec.EventID, Err: err}
}
