// Package imapbackend speaks the legacy IMAP protocol to the upstream mail
// store on behalf of the gateway. It owns the TLS dial and the login
// handshake; everything above it works with an already-authenticated Client.
package imapbackend

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/hrmny/jig/consts"
	"github.com/hrmny/jig/logger"
)

// Options controls how the connector reaches the backend.
type Options struct {
	// Port overrides the well-known IMAPS port (993).
	Port int
	// DialTimeout bounds the TCP connect and TLS handshake.
	DialTimeout time.Duration
}

// MailboxInfo is one entry of a backend LIST response.
type MailboxInfo struct {
	Name  string
	Delim rune
	Attrs []imap.MailboxAttr
}

// Client is a live, authenticated backend connection. It is not safe for
// concurrent use; callers borrow it through the session cache, which
// serializes access.
type Client struct {
	imap     *imapclient.Client
	username string
}

// Connect opens a TLS connection to the backend host, validates the
// certificate against that host, and logs in with the given credentials.
// The password is used for the handshake only and not retained.
//
// A transport or TLS failure maps to consts.ErrConnectionFailed; a login
// refused by the server maps to consts.ErrAuthenticationRejected. Neither
// error carries password material.
func Connect(ctx context.Context, host string, username, password string, opts Options) (*Client, error) {
	port := opts.Port
	if port == 0 {
		port = 993
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}

	// The dialer timeout bounds the TCP connect and, through
	// tls.DialWithDialer, the TLS handshake as well.
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", consts.ErrConnectionFailed, addr, err)
	}

	c := imapclient.New(conn, nil)

	if err := ctx.Err(); err != nil {
		_ = c.Close()
		return nil, err
	}

	if err := login(c, username, password); err != nil {
		_ = c.Close()
		return nil, classifyLoginError(err, username)
	}

	logger.Debug("backend session established", "host", host, "user", username)

	return &Client{imap: c, username: username}, nil
}

// login authenticates the connection, preferring SASL PLAIN when the server
// advertises it and falling back to the LOGIN command.
func login(c *imapclient.Client, username, password string) error {
	if c.Caps().Has(imap.AuthCap(sasl.Plain)) {
		return c.Authenticate(sasl.NewPlainClient("", username, password))
	}
	return c.Login(username, password).Wait()
}

// classifyLoginError maps a login failure to the error taxonomy. A status
// response from the server (NO/BAD) means the credentials were refused; any
// other error is a transport break after a successful dial, such as a
// connection reset mid-command. Neither carries password material.
func classifyLoginError(err error, username string) error {
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return fmt.Errorf("%w: user %s", consts.ErrAuthenticationRejected, username)
	}
	return fmt.Errorf("%w: login interrupted for user %s: %v", consts.ErrConnectionFailed, username, err)
}

// Username returns the principal this connection is authenticated as.
func (c *Client) Username() string {
	return c.username
}

// ListMailboxes issues LIST "" "*" against the backend and returns all
// mailboxes visible to the authenticated user.
func (c *Client) ListMailboxes(ctx context.Context) ([]MailboxInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := c.imap.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("backend LIST failed: %w", err)
	}

	mailboxes := make([]MailboxInfo, 0, len(data))
	for _, d := range data {
		mailboxes = append(mailboxes, MailboxInfo{
			Name:  d.Mailbox,
			Delim: d.Delim,
			Attrs: d.Attrs,
		})
	}
	return mailboxes, nil
}

// Close logs out and tears down the connection.
func (c *Client) Close() error {
	if err := c.imap.Logout().Wait(); err != nil {
		return c.imap.Close()
	}
	return c.imap.Close()
}
