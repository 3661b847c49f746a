package validate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// MailboxProber asks a mail exchanger whether a mailbox exists.
type MailboxProber interface {
	Probe(ctx context.Context, mxHost, email string) (intel.Outcome, string)
}

// SMTPProber runs a RCPT TO conversation against port 25 without sending mail.
type SMTPProber struct {
	HeloName string
	Port     string
	Timeout  time.Duration
}

// Probe reports Pass on a 250 reply, Fail when the server rejects the mailbox
// and Unknown for anything else, including blocked or refused connections.
func (p SMTPProber) Probe(ctx context.Context, mxHost, email string) (intel.Outcome, string) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	port := p.Port
	if port == "" {
		port = "25"
	}
	helo := p.HeloName
	if helo == "" {
		helo = "verify.local"
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(mxHost, port))
	if err != nil {
		return intel.Unknown, fmt.Sprintf("connect: %v", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		_ = conn.Close()
		return intel.Unknown, fmt.Sprintf("greeting: %v", err)
	}
	defer c.Close()

	if err := c.Hello(helo); err != nil {
		return intel.Unknown, fmt.Sprintf("helo: %v", err)
	}
	if err := c.Mail(""); err != nil {
		return intel.Unknown, fmt.Sprintf("mail from: %v", err)
	}
	err = c.Rcpt(email)
	_ = c.Quit()
	if err == nil {
		return intel.Pass, ""
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 550, 551, 553:
			return intel.Fail, fmt.Sprintf("mailbox rejected: %d %s", tpErr.Code, tpErr.Msg)
		}
		return intel.Unknown, fmt.Sprintf("rcpt: %d %s", tpErr.Code, tpErr.Msg)
	}
	return intel.Unknown, fmt.Sprintf("rcpt: %v", err)
}
