// Package document defines the entity contract shared by every repository.
//
// An entity embeds Model and declares the namespace it lives under through
// BaseKey:
//
//	type Member struct {
//		document.Model
//		MemberID string
//		Title    string
//	}
//
//	func (*Member) BaseKey() string { return "member" }
//
// BaseKey is a method, so it never reaches the serialized form. The Id of a
// persisted entity is always BaseKey + ":" + natural key.
//
// A nil ModifyDate is the only signal that an entity has never been saved.
package document
