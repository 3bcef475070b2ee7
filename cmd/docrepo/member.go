package main

import "github.com/goliatone/go-repository-redis/document"

const memberBaseKey = "member"

// Member is the document the command edits.
type Member struct {
	document.Model

	MemberID int    `json:"MemberId" msgpack:"MemberId"`
	Title    string `json:"Title" msgpack:"Title"`
	UserName string `json:"UserName" msgpack:"UserName"`
	Email    string `json:"Email" msgpack:"Email"`
	Status   int    `json:"Status" msgpack:"Status"`
}

func (*Member) BaseKey() string { return memberBaseKey }
