package jmapapi

import (
	"encoding/json"
	"fmt"
)

// Method names on the wire.
const (
	MethodCoreEcho   = "Core/echo"
	MethodMailboxGet = "Mailbox/get"
	MethodErrorName  = "error"
)

// MethodCall is the closed set of method call variants the gateway
// understands. Adding a method means adding a variant here, a case in
// Invocation.UnmarshalJSON/MarshalJSON, and a case in the dispatcher.
type MethodCall interface {
	methodName() string
}

// CoreEchoCall carries an arbitrary JSON object to be echoed back
// unchanged. The payload is kept raw so it round-trips exactly.
type CoreEchoCall struct {
	Args json.RawMessage
}

func (*CoreEchoCall) methodName() string { return MethodCoreEcho }

// MailboxGetCall requests the mailboxes of an account. A nil IDs pointer
// means "all mailboxes"; a non-nil one selects specific ids.
type MailboxGetCall struct {
	AccountID  string    `json:"accountId"`
	IDs        *[]string `json:"ids"`
	Properties *[]string `json:"properties"`
}

func (*MailboxGetCall) methodName() string { return MethodMailboxGet }

// UnknownMethodError is a decode failure for a method name outside the
// closed variant set. It names the offending call.
type UnknownMethodError struct {
	Name   string
	CallID string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown method %q in call %q", e.Name, e.CallID)
}

// Invocation is one method call of a batch. On the wire it is a positional
// 3-tuple [name, arguments, callId], not a keyed object.
type Invocation struct {
	Call   MethodCall
	CallID string
}

// UnmarshalJSON decodes the 3-tuple wire form, resolving the method name
// and arguments jointly into one MethodCall variant. The call id is
// carried through untouched.
func (inv *Invocation) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("method call must be a JSON array: %w", err)
	}
	if len(tuple) != 3 {
		return fmt.Errorf("method call must have exactly 3 elements, got %d", len(tuple))
	}

	var name string
	if err := json.Unmarshal(tuple[0], &name); err != nil {
		return fmt.Errorf("method name must be a string: %w", err)
	}
	var callID string
	if err := json.Unmarshal(tuple[2], &callID); err != nil {
		return fmt.Errorf("call id must be a string: %w", err)
	}

	switch name {
	case MethodCoreEcho:
		// Validate the shape but keep the raw bytes for exact echoing.
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(tuple[1], &obj); err != nil {
			return fmt.Errorf("%s arguments must be a JSON object: %w", MethodCoreEcho, err)
		}
		inv.Call = &CoreEchoCall{Args: append(json.RawMessage(nil), tuple[1]...)}
	case MethodMailboxGet:
		var call MailboxGetCall
		if err := json.Unmarshal(tuple[1], &call); err != nil {
			return fmt.Errorf("invalid %s arguments: %w", MethodMailboxGet, err)
		}
		inv.Call = &call
	default:
		return &UnknownMethodError{Name: name, CallID: callID}
	}

	inv.CallID = callID
	return nil
}

// MarshalJSON encodes the invocation back into its 3-tuple wire form.
func (inv Invocation) MarshalJSON() ([]byte, error) {
	if inv.Call == nil {
		return nil, fmt.Errorf("cannot encode invocation %q without a method call", inv.CallID)
	}

	var args any
	switch call := inv.Call.(type) {
	case *CoreEchoCall:
		args = call.Args
	case *MailboxGetCall:
		args = call
	default:
		return nil, fmt.Errorf("cannot encode method call of type %T", inv.Call)
	}

	return json.Marshal([3]any{inv.Call.methodName(), args, inv.CallID})
}

// InvocationResult is one method result of a batch response, encoded as
// the 3-tuple [name, payload, callId].
type InvocationResult struct {
	Name    string
	Payload any
	CallID  string
}

func (r InvocationResult) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{r.Name, r.Payload, r.CallID})
}

// MethodError is the payload of a per-call "error" result. Failures of a
// single call do not abort the rest of the batch.
type MethodError struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func errorResult(callID, errType, description string) InvocationResult {
	return InvocationResult{
		Name:    MethodErrorName,
		Payload: MethodError{Type: errType, Description: description},
		CallID:  callID,
	}
}

// Request is a decoded batch request.
type Request struct {
	Using       []string          `json:"using"`
	MethodCalls []Invocation      `json:"methodCalls"`
	CreatedIDs  map[string]string `json:"createdIds,omitempty"`
}

// Response is a batch response. MethodResponses preserves the order of the
// request's method calls 1:1.
type Response struct {
	MethodResponses []InvocationResult `json:"methodResponses"`
	CreatedIDs      map[string]string  `json:"createdIds,omitempty"`
	SessionState    string             `json:"sessionState"`
}
