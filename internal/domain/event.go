package domain

// EventKind names a change event the way the wire format does.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// ChangeEvent is one row change on the wishes table. The set of
// implementations is closed: Inserted, Updated and Deleted.
type ChangeEvent interface {
	Kind() EventKind

	// WishID is the id of the affected row.
	WishID() string

	changeEvent()
}

// Inserted carries a newly created wish.
type Inserted struct {
	Wish Wish
}

// Updated carries the new state of an existing wish.
type Updated struct {
	Wish Wish
}

// Deleted carries the id of a removed wish.
type Deleted struct {
	ID string
}

func (Inserted) Kind() EventKind { return EventInsert }
func (Updated) Kind() EventKind  { return EventUpdate }
func (Deleted) Kind() EventKind  { return EventDelete }

func (e Inserted) WishID() string { return e.Wish.ID }
func (e Updated) WishID() string  { return e.Wish.ID }
func (e Deleted) WishID() string  { return e.ID }

func (Inserted) changeEvent() {}
func (Updated) changeEvent()  {}
func (Deleted) changeEvent()  {}
