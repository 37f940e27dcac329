package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/theory-cloud/searchreplicator/pkg/replicate"
)

var ErrMalformedResponse = errors.New("search: malformed bulk response")

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

// EncodeBulk renders ops as a _bulk NDJSON body. Upserts use the "index" action,
// which replaces the whole document.
func EncodeBulk(index string, ops []replicate.WriteOperation) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, op := range ops {
		meta := bulkMeta{Index: index, ID: op.DocID()}
		switch typed := op.(type) {
		case replicate.Upsert:
			if err := enc.Encode(map[string]bulkMeta{"index": meta}); err != nil {
				return nil, err
			}
			if typed.Document == nil {
				return nil, fmt.Errorf("search: operation %d: upsert without document", i)
			}
			if err := enc.Encode(typed.Document); err != nil {
				return nil, fmt.Errorf("search: operation %d: %w", i, err)
			}
		case replicate.Delete:
			if err := enc.Encode(map[string]bulkMeta{"delete": meta}); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("search: operation %d: unsupported type %T", i, op)
		}
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

type bulkItem struct {
	Index  string     `json:"_index"`
	ID     string     `json:"_id"`
	Status int        `json:"status"`
	Result string     `json:"result"`
	Error  *bulkError `json:"error"`
}

type bulkError struct {
	Type     string     `json:"type"`
	Reason   string     `json:"reason"`
	CausedBy *bulkError `json:"caused_by"`
}

func (e *bulkError) String() string {
	if e == nil {
		return ""
	}
	msg := e.Type
	if e.Reason != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Reason
	}
	if cause := e.CausedBy.String(); cause != "" {
		msg += " (caused by " + cause + ")"
	}
	return msg
}

// DecodeBulkResponse parses the items of a _bulk response in order.
func DecodeBulkResponse(r io.Reader) ([]replicate.ItemResult, error) {
	var resp bulkResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := make([]replicate.ItemResult, 0, len(resp.Items))
	for i, entry := range resp.Items {
		if len(entry) != 1 {
			return nil, fmt.Errorf("%w: item %d has %d actions", ErrMalformedResponse, i, len(entry))
		}
		for action, item := range entry {
			out = append(out, replicate.ItemResult{
				Action: strings.ToLower(action),
				Index:  item.Index,
				ID:     item.ID,
				Status: item.Status,
				Cause:  item.Error.String(),
			})
		}
	}
	return out, nil
}
