package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/docsbot/pkg/models"
)

// ErrAuthFailed means no candidate login identity was accepted.
var ErrAuthFailed = errors.New("mailbox: authentication failed for all login identities")

// Config holds connection parameters for one mailbox.
type Config struct {
	Address     string // full email address
	Password    string
	Server      string // host:port
	LoginName   string // optional explicit login, tried first when set
	DialTimeout time.Duration
}

// Client is a single-run IMAP session: connect once, scan, close.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	conn     *client.Client
	selected bool
}

// NewClient creates an IMAP client for one mailbox
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With("mailbox", cfg.Address),
	}
}

// loginCandidates returns the identities to try, in order. Some
// servers want the full address, others the bare local part.
func (c *Client) loginCandidates() []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			candidates = append(candidates, id)
		}
	}

	add(c.cfg.LoginName)
	add(c.cfg.Address)
	if local, _, ok := strings.Cut(c.cfg.Address, "@"); ok {
		add(local)
	}
	return candidates
}

// Connect dials the server over TLS and logs in with the first
// accepted identity.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	timeout := c.cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c.logger.Info("connecting to IMAP server", "server", c.cfg.Server)

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.cfg.Server, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}

	var lastErr error
	for _, identity := range c.loginCandidates() {
		if err := imapClient.Login(identity, c.cfg.Password); err != nil {
			c.logger.Debug("login rejected", "identity", identity, "error", err)
			lastErr = err
			continue
		}
		c.logger.Info("logged in", "identity", identity)
		c.conn = imapClient
		return nil
	}

	imapClient.Logout()
	return fmt.Errorf("%w: %v", ErrAuthFailed, lastErr)
}

// FetchUnread returns the currently unread messages, newest first.
func (c *Client) FetchUnread(ctx context.Context) ([]*models.MailMessage, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	if !c.selected {
		if _, err := c.conn.Select("INBOX", false); err != nil {
			return nil, fmt.Errorf("failed to select INBOX: %w", err)
		}
		c.selected = true
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search unread: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqSet, items, messages)
	}()

	var result []*models.MailMessage
	for msg := range messages {
		parsed, err := c.parseMessage(msg, section)
		if err != nil {
			c.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		result = append(result, parsed)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].UID > result[j].UID
	})
	return result, nil
}

func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*models.MailMessage, error) {
	parsed := &models.MailMessage{UID: msg.Uid}

	if msg.Envelope != nil {
		parsed.Subject = msg.Envelope.Subject
		parsed.Date = msg.Envelope.Date
		parsed.MessageID = msg.Envelope.MessageId
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			parsed.FromName = from.PersonalName
			parsed.FromAddr = from.Address()
		}
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return parsed, nil
	}

	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		return parsed, fmt.Errorf("failed to create mail reader: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("failed to read part", "uid", msg.Uid, "error", err)
			break
		}

		if h, ok := part.Header.(*mail.InlineHeader); ok {
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/html"):
				parsed.BodyHTML = string(body)
			case strings.HasPrefix(ct, "text/plain"):
				parsed.BodyText = string(body)
			}
		}
	}

	return parsed, nil
}

// MarkSeen adds the \Seen flag so the message stops matching the
// unread filter on the next scan.
func (c *Client) MarkSeen(ctx context.Context, uid uint32) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.conn.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark as seen: %w", err)
	}
	return nil
}

// Close logs out. Errors are logged, never returned: cleanup must not
// mask whatever the run failed with.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	conn := c.conn
	c.conn = nil
	c.selected = false

	done := make(chan error, 1)
	go func() { done <- conn.Logout() }()
	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn("IMAP logout failed", "error", err)
		}
	case <-time.After(2 * time.Second):
		c.logger.Warn("IMAP logout timed out, terminating connection")
		conn.Terminate()
	}
}
