package document

import "time"

// Model carries the identity and timestamps every stored entity has.
type Model struct {
	ID         string     `json:"Id" msgpack:"Id"`
	CreateDate time.Time  `json:"CreateDate" msgpack:"CreateDate"`
	ModifyDate *time.Time `json:"ModifyDate" msgpack:"ModifyDate"`
}

// Base returns the embedded model so repositories can stamp timestamps
// without knowing the concrete entity type.
func (m *Model) Base() *Model { return m }

// Document is implemented by pointers to entity structs embedding Model.
type Document interface {
	Base() *Model
	BaseKey() string
}

// Pointer constrains a type parameter to *T where *T is a Document. It lets
// generic code allocate a fresh T and still call Document methods on it.
type Pointer[T any] interface {
	*T
	Document
}

// IsNew reports whether doc has never been written through a save.
func IsNew(doc Document) bool {
	return doc.Base().ModifyDate == nil
}

// ModifiedAt returns the modify date or the zero time for new documents.
func ModifiedAt(doc Document) time.Time {
	if m := doc.Base().ModifyDate; m != nil {
		return *m
	}
	return time.Time{}
}
