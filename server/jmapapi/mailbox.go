package jmapapi

import "github.com/hrmny/jig/server/imapbackend"

// Mailbox is the protocol representation of one mailbox.
type Mailbox struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	ParentID       *string       `json:"parentId"`
	Role           *string       `json:"role"`
	SortOrder      uint64        `json:"sortOrder"`
	TotalEmails    uint64        `json:"totalEmails"`
	UnreadEmails   uint64        `json:"unreadEmails"`
	TotalThreads   uint64        `json:"totalThreads"`
	UnreadThreads  uint64        `json:"unreadThreads"`
	MyRights       MailboxRights `json:"myRights"`
	IsSubscribed   bool          `json:"isSubscribed"`
}

// MailboxRights describes what the authenticated user may do with a
// mailbox.
type MailboxRights struct {
	MayReadItems   bool `json:"mayReadItems"`
	MayAddItems    bool `json:"mayAddItems"`
	MayRemoveItems bool `json:"mayRemoveItems"`
	MaySetSeen     bool `json:"maySetSeen"`
	MaySetKeywords bool `json:"maySetKeywords"`
	MayCreateChild bool `json:"mayCreateChild"`
	MayRename      bool `json:"mayRename"`
	MayDelete      bool `json:"mayDelete"`
	MaySubmit      bool `json:"maySubmit"`
}

// mailboxFromBackend maps one backend LIST entry into the protocol shape.
// Only id and name are populated from the backend; rights and counts are
// stubs until the gateway grows per-mailbox STATUS support.
func mailboxFromBackend(info imapbackend.MailboxInfo) Mailbox {
	return Mailbox{
		ID:   info.Name,
		Name: info.Name,
	}
}

// MailboxGetResponse is the result payload of a Mailbox/get call.
type MailboxGetResponse struct {
	AccountID string    `json:"accountId"`
	State     string    `json:"state"`
	List      []Mailbox `json:"list"`
	NotFound  []string  `json:"notFound"`
}
