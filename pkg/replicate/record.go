package replicate

import "github.com/theory-cloud/searchreplicator/pkg/attr"

// EventKind is the mutation carried by a change record.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventModify EventKind = "MODIFY"
	EventRemove EventKind = "REMOVE"
)

// ChangeRecord is one entry of a delivered batch.
type ChangeRecord struct {
	EventID string
	Kind    EventKind

	// Keys iterates in the producer's order; DocumentID depends on it.
	Keys     attr.Map
	NewImage attr.Map

	SequenceNumber string
}

// Origin identifies the change record an operation was translated from.
type Origin struct {
	EventID        string
	SequenceNumber string
}

// OpKind is the search-engine action of a WriteOperation.
type OpKind string

const (
	OpUpsert OpKind = "upsert"
	OpDelete OpKind = "delete"
)

// WriteOperation is either an Upsert or a Delete.
type WriteOperation interface {
	DocID() string
	Kind() OpKind
	Source() Origin

	isWriteOperation()
}

// Upsert creates or replaces the document with ID.
type Upsert struct {
	ID       string
	Document *attr.Object
	Origin   Origin
}

// Delete removes the document with ID. Deleting an absent document is a no-op.
type Delete struct {
	ID     string
	Origin Origin
}

func (u Upsert) DocID() string  { return u.ID }
func (u Upsert) Kind() OpKind   { return OpUpsert }
func (u Upsert) Source() Origin { return u.Origin }
func (Upsert) isWriteOperation() {}

func (d Delete) DocID() string  { return d.ID }
func (d Delete) Kind() OpKind   { return OpDelete }
func (d Delete) Source() Origin { return d.Origin }
func (Delete) isWriteOperation() {}
