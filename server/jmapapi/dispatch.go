package jmapapi

import (
	"context"
	"encoding/hex"
	"time"

	"lukechampine.com/blake3"

	"github.com/hrmny/jig/logger"
	"github.com/hrmny/jig/pkg/metrics"
	"github.com/hrmny/jig/server"
)

// API dispatches the method calls of one batch request against the
// caller's cached backend connection.
type API struct {
	sessionID string
	principal string
	cache     *server.SessionCache
}

// NewAPI creates a dispatcher bound to one authenticated request.
func NewAPI(sessionID, principal string, cache *server.SessionCache) *API {
	return &API{sessionID: sessionID, principal: principal, cache: cache}
}

// HandleRequest executes every method call of the batch in request order
// and returns results in the same order, each correlated by its call id.
// A failing call yields an "error" result for that call only; the batch
// continues.
func (a *API) HandleRequest(ctx context.Context, req *Request) *Response {
	resp := &Response{
		MethodResponses: make([]InvocationResult, 0, len(req.MethodCalls)),
		SessionState:    a.sessionState(),
	}

	for _, inv := range req.MethodCalls {
		start := time.Now()
		result := a.dispatch(ctx, inv)
		resp.MethodResponses = append(resp.MethodResponses, result)

		method := MethodErrorName
		if inv.Call != nil {
			method = inv.Call.methodName()
		}
		status := "ok"
		if result.Name == MethodErrorName {
			status = "error"
		}
		metrics.MethodCallsTotal.WithLabelValues(method, status).Inc()
		metrics.MethodCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}

	return resp
}

func (a *API) dispatch(ctx context.Context, inv Invocation) InvocationResult {
	switch call := inv.Call.(type) {
	case *CoreEchoCall:
		// Pure passthrough, no backend access. Used for connectivity probing.
		return InvocationResult{Name: MethodCoreEcho, Payload: call.Args, CallID: inv.CallID}
	case *MailboxGetCall:
		return a.handleMailboxGet(ctx, call, inv.CallID)
	default:
		return errorResult(inv.CallID, "unknownMethod", "method not handled by this server")
	}
}

func (a *API) handleMailboxGet(ctx context.Context, call *MailboxGetCall, callID string) InvocationResult {
	if call.IDs != nil {
		return errorResult(callID, "notImplemented", "fetching mailboxes by id is not supported")
	}

	var list []Mailbox
	err := a.cache.WithConnection(ctx, a.sessionID, func(conn server.BackendSession) error {
		infos, err := conn.ListMailboxes(ctx)
		if err != nil {
			return err
		}
		list = make([]Mailbox, 0, len(infos))
		for _, info := range infos {
			list = append(list, mailboxFromBackend(info))
		}
		return nil
	})
	if err != nil {
		logger.Error("mailbox listing failed", "user", a.principal, "call_id", callID, "error", err)
		return errorResult(callID, "serverFail", "mailbox listing failed")
	}

	return InvocationResult{
		Name: MethodMailboxGet,
		Payload: &MailboxGetResponse{
			AccountID: call.AccountID,
			State:     "",
			List:      list,
			NotFound:  []string{},
		},
		CallID: callID,
	}
}

// sessionState derives the opaque per-response state token from the
// authenticated principal.
func (a *API) sessionState() string {
	sum := blake3.Sum256([]byte(a.principal))
	return hex.EncodeToString(sum[:8])
}
