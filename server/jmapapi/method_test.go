package jmapapi

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestInvocationDecodeEcho(t *testing.T) {
	data := []byte(`["Core/echo",{"hello":true,"n":1},"c1"]`)

	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	echo, ok := inv.Call.(*CoreEchoCall)
	if !ok {
		t.Fatalf("Call = %T, want *CoreEchoCall", inv.Call)
	}
	if string(echo.Args) != `{"hello":true,"n":1}` {
		t.Errorf("Args = %s, want raw arguments preserved", echo.Args)
	}
	if inv.CallID != "c1" {
		t.Errorf("CallID = %q, want %q", inv.CallID, "c1")
	}
}

func TestInvocationDecodeMailboxGet(t *testing.T) {
	data := []byte(`["Mailbox/get",{"accountId":"alice","ids":["INBOX"]},"0"]`)

	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	call, ok := inv.Call.(*MailboxGetCall)
	if !ok {
		t.Fatalf("Call = %T, want *MailboxGetCall", inv.Call)
	}
	if call.AccountID != "alice" {
		t.Errorf("AccountID = %q, want %q", call.AccountID, "alice")
	}
	if call.IDs == nil || len(*call.IDs) != 1 || (*call.IDs)[0] != "INBOX" {
		t.Errorf("IDs = %v, want [INBOX]", call.IDs)
	}
}

func TestInvocationDecodeMailboxGetNullIDs(t *testing.T) {
	data := []byte(`["Mailbox/get",{"accountId":"alice","ids":null},"0"]`)

	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	call := inv.Call.(*MailboxGetCall)
	if call.IDs != nil {
		t.Errorf("IDs = %v, want nil for a null ids argument", call.IDs)
	}
}

func TestInvocationDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not an array", `{"name":"Core/echo"}`},
		{"two elements", `["Core/echo",{}]`},
		{"four elements", `["Core/echo",{},"c1","extra"]`},
		{"name not a string", `[42,{},"c1"]`},
		{"call id not a string", `["Core/echo",{},7]`},
		{"echo args not an object", `["Core/echo",[1,2],"c1"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inv Invocation
			if err := json.Unmarshal([]byte(tt.data), &inv); err == nil {
				t.Errorf("Unmarshal(%s) succeeded, want error", tt.data)
			}
		})
	}
}

func TestInvocationDecodeUnknownMethod(t *testing.T) {
	var inv Invocation
	err := json.Unmarshal([]byte(`["Email/get",{"accountId":"a"},"c7"]`), &inv)
	if err == nil {
		t.Fatal("Unmarshal() succeeded, want UnknownMethodError")
	}

	var unknown *UnknownMethodError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownMethodError", err)
	}
	if unknown.Name != "Email/get" {
		t.Errorf("Name = %q, want %q", unknown.Name, "Email/get")
	}
	if unknown.CallID != "c7" {
		t.Errorf("CallID = %q, want %q", unknown.CallID, "c7")
	}
}

func TestInvocationRoundTrip(t *testing.T) {
	in := `["Core/echo",{"k":"v"},"my-call"]`

	var inv Invocation
	if err := json.Unmarshal([]byte(in), &inv); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	out, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != in {
		t.Errorf("round trip = %s, want %s", out, in)
	}
}

func TestRequestDecodePreservesDuplicateCallIDs(t *testing.T) {
	body := []byte(`{
		"using": ["urn:ietf:params:jmap:core"],
		"methodCalls": [
			["Core/echo",{"a":1},"dup"],
			["Core/echo",{"b":2},"dup"]
		]
	}`)

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(req.MethodCalls) != 2 {
		t.Fatalf("len(MethodCalls) = %d, want 2", len(req.MethodCalls))
	}
	for i, inv := range req.MethodCalls {
		if inv.CallID != "dup" {
			t.Errorf("MethodCalls[%d].CallID = %q, want %q", i, inv.CallID, "dup")
		}
	}
}

func TestInvocationResultEncoding(t *testing.T) {
	result := errorResult("c1", "notImplemented", "no such thing")
	out, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `["error",{"type":"notImplemented","description":"no such thing"},"c1"]`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}
}
