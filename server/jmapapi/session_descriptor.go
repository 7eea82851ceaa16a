package jmapapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"lukechampine.com/blake3"

	"github.com/hrmny/jig/logger"
)

// SessionDescriptor is the JMAP session resource served from
// /.well-known/jmap.
type SessionDescriptor struct {
	Capabilities    Capabilities       `json:"capabilities"`
	Accounts        map[string]Account `json:"accounts"`
	PrimaryAccounts map[string]string  `json:"primaryAccounts"`
	Username        string             `json:"username"`
	APIURL          string             `json:"apiUrl"`
	DownloadURL     string             `json:"downloadUrl"`
	UploadURL       string             `json:"uploadUrl"`
	EventSourceURL  string             `json:"eventSourceUrl"`
	State           string             `json:"state"`
}

// Capabilities advertises the capability sets this server implements.
type Capabilities struct {
	Core CoreCapabilities  `json:"urn:ietf:params:jmap:core"`
	Mail EmptyCapabilities `json:"urn:ietf:params:jmap:mail"`
}

// CoreCapabilities advertises the core protocol limits.
type CoreCapabilities struct {
	MaxSizeUpload         uint64   `json:"maxSizeUpload"`
	MaxConcurrentUpload   uint64   `json:"maxConcurrentUpload"`
	MaxSizeRequest        uint64   `json:"maxSizeRequest"`
	MaxConcurrentRequests uint64   `json:"maxConcurrentRequests"`
	MaxCallsInRequest     uint64   `json:"maxCallsInRequest"`
	MaxObjectsInGet       uint64   `json:"maxObjectsInGet"`
	MaxObjectsInSet       uint64   `json:"maxObjectsInSet"`
	CollationAlgorithms   []string `json:"collationAlgorithms"`
}

// EmptyCapabilities marks a capability set with no parameters.
type EmptyCapabilities struct{}

// Account describes one account reachable through this session.
type Account struct {
	Name                string              `json:"name"`
	IsPersonal          bool                `json:"isPersonal"`
	IsReadOnly          bool                `json:"isReadOnly"`
	AccountCapabilities AccountCapabilities `json:"accountCapabilities"`
}

// AccountCapabilities holds per-account capability parameters.
type AccountCapabilities struct {
	Mail AccountMailCapabilities `json:"urn:ietf:params:jmap:mail"`
}

// AccountMailCapabilities holds the mail capability parameters of one
// account.
type AccountMailCapabilities struct {
	MaxMailboxesPerEmail       *uint64  `json:"maxMailboxesPerEmail"`
	MaxMailboxDepth            *uint64  `json:"maxMailboxDepth"`
	MaxSizeMailboxName         uint64   `json:"maxSizeMailboxName"`
	MaxSizeAttachmentsPerEmail uint64   `json:"maxSizeAttachmentsPerEmail"`
	EmailQuerySortOptions      []string `json:"emailQuerySortOptions"`
	MayCreateTopLevelMailbox   bool     `json:"mayCreateTopLevelMailbox"`
}

const mailCapabilityURN = "urn:ietf:params:jmap:mail"

// handleSessionDescriptor serves the per-identity session resource. The
// capability values are static; the state token is recomputed from the
// serialized descriptor on every response.
func (s *Server) handleSessionDescriptor(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "internal", "no identity on authenticated request")
		return
	}

	accountID := identity.Principal
	maxMailboxes := uint64(1000)

	descriptor := SessionDescriptor{
		Capabilities: Capabilities{
			Core: CoreCapabilities{
				MaxSizeUpload:         50_000_000,
				MaxConcurrentUpload:   4,
				MaxSizeRequest:        maxRequestBytes,
				MaxConcurrentRequests: 4,
				MaxCallsInRequest:     16,
				MaxObjectsInGet:       500,
				MaxObjectsInSet:       500,
				CollationAlgorithms:   []string{},
			},
		},
		Accounts: map[string]Account{
			accountID: {
				Name:       identity.Principal,
				IsPersonal: true,
				IsReadOnly: false,
				AccountCapabilities: AccountCapabilities{
					Mail: AccountMailCapabilities{
						MaxMailboxesPerEmail:       &maxMailboxes,
						MaxMailboxDepth:            nil,
						MaxSizeMailboxName:         490,
						MaxSizeAttachmentsPerEmail: 50_000_000,
						EmailQuerySortOptions: []string{
							"receivedAt",
							"from",
							"to",
							"subject",
							"size",
							"header.x-spam-score",
						},
						MayCreateTopLevelMailbox: true,
					},
				},
			},
		},
		PrimaryAccounts: map[string]string{
			mailCapabilityURN: accountID,
		},
		Username:       identity.Principal,
		APIURL:         "/jmap",
		DownloadURL:    "/download/{accountId}/{blobId}/{name}?accept={type}",
		UploadURL:      "/upload/{accountId}",
		EventSourceURL: "/eventsource?types={types}&closeafter={closeafter}&ping={ping}",
	}

	body, err := json.Marshal(descriptor)
	if err != nil {
		logger.Error("error serializing session descriptor", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal", "error building session descriptor")
		return
	}
	sum := blake3.Sum256(body)
	descriptor.State = hex.EncodeToString(sum[:8])

	writeJSON(w, http.StatusOK, descriptor)
}
