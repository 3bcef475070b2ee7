// Package testsupport holds the sample document, clocks and fixture helpers
// shared by the module tests.
package testsupport

import (
	"github.com/goliatone/go-repository-redis/document"
)

// MemberBaseKey namespaces every Member id.
const MemberBaseKey = "member"

// Member is the sample document used across tests.
type Member struct {
	document.Model

	MemberID int    `json:"MemberId" msgpack:"MemberId"`
	Title    string `json:"Title" msgpack:"Title"`
	UserName string `json:"UserName" msgpack:"UserName"`
	Email    string `json:"Email" msgpack:"Email"`
	Status   int    `json:"Status" msgpack:"Status"`
}

func (*Member) BaseKey() string { return MemberBaseKey }

// Order is a second document type, used to check that namespaces stay apart.
type Order struct {
	document.Model

	MemberID string  `json:"MemberId" msgpack:"MemberId"`
	Total    float64 `json:"Total" msgpack:"Total"`
}

func (*Order) BaseKey() string { return "order" }

var (
	_ document.Document = (*Member)(nil)
	_ document.Document = (*Order)(nil)
)
