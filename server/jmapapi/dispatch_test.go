package jmapapi

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hrmny/jig/server"
	"github.com/hrmny/jig/server/imapbackend"
)

type fakeSession struct {
	mailboxes []string
	listErr   error
	closed    bool
}

func (f *fakeSession) ListMailboxes(ctx context.Context) ([]imapbackend.MailboxInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	infos := make([]imapbackend.MailboxInfo, 0, len(f.mailboxes))
	for _, name := range f.mailboxes {
		infos = append(infos, imapbackend.MailboxInfo{Name: name, Delim: '/'})
	}
	return infos, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newTestAPI(t *testing.T, session *fakeSession) *API {
	t.Helper()

	cache := server.NewSessionCache(func(ctx context.Context, creds server.Credentials) (server.BackendSession, error) {
		return session, nil
	})
	t.Cleanup(cache.Close)

	creds := server.Credentials{Username: "alice", Password: "secret"}
	if err := cache.EnsureConnection(context.Background(), "sid-1", creds); err != nil {
		t.Fatalf("EnsureConnection() error = %v", err)
	}
	return NewAPI("sid-1", "alice", cache)
}

func decodeRequest(t *testing.T, body string) *Request {
	t.Helper()
	var req Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decoding request: %v", err)
	}
	return &req
}

func TestHandleRequestEchoPassthrough(t *testing.T) {
	api := newTestAPI(t, &fakeSession{})
	req := decodeRequest(t, `{"using":[],"methodCalls":[["Core/echo",{"hello":"world"},"c1"]]}`)

	resp := api.HandleRequest(context.Background(), req)

	if len(resp.MethodResponses) != 1 {
		t.Fatalf("len(MethodResponses) = %d, want 1", len(resp.MethodResponses))
	}
	result := resp.MethodResponses[0]
	if result.Name != MethodCoreEcho {
		t.Errorf("Name = %q, want %q", result.Name, MethodCoreEcho)
	}
	if result.CallID != "c1" {
		t.Errorf("CallID = %q, want %q", result.CallID, "c1")
	}
	if string(result.Payload.(json.RawMessage)) != `{"hello":"world"}` {
		t.Errorf("Payload = %s, want echoed arguments", result.Payload)
	}
	if resp.SessionState == "" {
		t.Error("SessionState is empty")
	}
}

func TestHandleRequestPreservesOrder(t *testing.T) {
	api := newTestAPI(t, &fakeSession{mailboxes: []string{"INBOX"}})
	req := decodeRequest(t, `{"using":[],"methodCalls":[
		["Core/echo",{"n":1},"a"],
		["Mailbox/get",{"accountId":"alice"},"b"],
		["Core/echo",{"n":2},"c"]
	]}`)

	resp := api.HandleRequest(context.Background(), req)

	if len(resp.MethodResponses) != 3 {
		t.Fatalf("len(MethodResponses) = %d, want 3", len(resp.MethodResponses))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got := resp.MethodResponses[i].CallID; got != want {
			t.Errorf("MethodResponses[%d].CallID = %q, want %q", i, got, want)
		}
	}
}

func TestHandleRequestMailboxGet(t *testing.T) {
	api := newTestAPI(t, &fakeSession{mailboxes: []string{"INBOX", "Sent", "Archive/2024"}})
	req := decodeRequest(t, `{"using":[],"methodCalls":[["Mailbox/get",{"accountId":"alice"},"0"]]}`)

	resp := api.HandleRequest(context.Background(), req)

	result := resp.MethodResponses[0]
	if result.Name != MethodMailboxGet {
		t.Fatalf("Name = %q, want %q", result.Name, MethodMailboxGet)
	}
	payload := result.Payload.(*MailboxGetResponse)
	if payload.AccountID != "alice" {
		t.Errorf("AccountID = %q, want %q", payload.AccountID, "alice")
	}
	if len(payload.List) != 3 {
		t.Fatalf("len(List) = %d, want 3", len(payload.List))
	}
	if payload.List[2].Name != "Archive/2024" || payload.List[2].ID != "Archive/2024" {
		t.Errorf("List[2] = %+v, want id and name set from the backend name", payload.List[2])
	}
	if payload.NotFound == nil {
		t.Error("NotFound is nil, want empty slice")
	}
}

func TestHandleRequestMailboxGetByIDNotImplemented(t *testing.T) {
	api := newTestAPI(t, &fakeSession{mailboxes: []string{"INBOX"}})
	req := decodeRequest(t, `{"using":[],"methodCalls":[
		["Mailbox/get",{"accountId":"alice","ids":["INBOX"]},"get"],
		["Core/echo",{"still":"works"},"echo"]
	]}`)

	resp := api.HandleRequest(context.Background(), req)

	if len(resp.MethodResponses) != 2 {
		t.Fatalf("len(MethodResponses) = %d, want 2", len(resp.MethodResponses))
	}
	first := resp.MethodResponses[0]
	if first.Name != MethodErrorName {
		t.Fatalf("first result Name = %q, want %q", first.Name, MethodErrorName)
	}
	if errPayload := first.Payload.(MethodError); errPayload.Type != "notImplemented" {
		t.Errorf("error type = %q, want %q", errPayload.Type, "notImplemented")
	}
	if second := resp.MethodResponses[1]; second.Name != MethodCoreEcho {
		t.Errorf("second result Name = %q, want the batch to continue past a failed call", second.Name)
	}
}

func TestHandleRequestBackendFailureIsolated(t *testing.T) {
	api := newTestAPI(t, &fakeSession{listErr: errors.New("connection reset")})
	req := decodeRequest(t, `{"using":[],"methodCalls":[
		["Mailbox/get",{"accountId":"alice"},"get"],
		["Core/echo",{},"echo"]
	]}`)

	resp := api.HandleRequest(context.Background(), req)

	first := resp.MethodResponses[0]
	if first.Name != MethodErrorName {
		t.Fatalf("first result Name = %q, want %q", first.Name, MethodErrorName)
	}
	if errPayload := first.Payload.(MethodError); errPayload.Type != "serverFail" {
		t.Errorf("error type = %q, want %q", errPayload.Type, "serverFail")
	}
	if second := resp.MethodResponses[1]; second.Name != MethodCoreEcho {
		t.Errorf("second result Name = %q, want %q", second.Name, MethodCoreEcho)
	}
}

func TestSessionStateStablePerPrincipal(t *testing.T) {
	session := &fakeSession{}
	a := newTestAPI(t, session)

	state1 := a.sessionState()
	state2 := a.sessionState()
	if state1 != state2 {
		t.Errorf("sessionState() = %q then %q, want a stable token", state1, state2)
	}

	b := &API{sessionID: "sid-2", principal: "bob"}
	if b.sessionState() == state1 {
		t.Error("different principals produced the same session state")
	}
}
