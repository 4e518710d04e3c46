package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/mixelka/docsbot/internal/parser"
	"github.com/mixelka/docsbot/internal/poll"
	"github.com/mixelka/docsbot/pkg/models"
)

// ErrCodeNotReceived means no qualifying unread message arrived before
// the deadline. The caller decides whether to re-trigger the send and
// scan again.
var ErrCodeNotReceived = errors.New("mailbox: verification code not received before deadline")

// Fetcher is the slice of Client the scanner needs. FetchUnread must
// return messages newest first.
type Fetcher interface {
	FetchUnread(ctx context.Context) ([]*models.MailMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
}

// Ledger records messages whose codes were already consumed.
type Ledger interface {
	IsConsumed(ctx context.Context, mailbox string, uid uint32) (bool, error)
	MarkConsumed(ctx context.Context, mailbox string, uid uint32, fromAddr, kind string) error
}

// CodeRequest describes one verification email to wait for.
type CodeRequest struct {
	Matcher parser.Matcher
	Kind    string // ledger tag, e.g. "primary" or "github"

	// Digits > 0 selects digit-scan extraction (first Digits digits in
	// order); otherwise Pattern's first capture group is used.
	Digits  int
	Pattern *regexp.Regexp

	Wait     time.Duration // overall deadline
	Interval time.Duration // poll backoff
}

// Scanner polls a mailbox for one specific verification email and
// extracts its code. At most one code is returned per call.
type Scanner struct {
	mailbox string
	fetcher Fetcher
	ledger  Ledger
	logger  *slog.Logger
}

// NewScanner creates a scanner over an established mailbox session.
// ledger may be nil, in which case only the \Seen flag guards against
// reprocessing.
func NewScanner(mailboxAddr string, fetcher Fetcher, ledger Ledger, logger *slog.Logger) *Scanner {
	return &Scanner{
		mailbox: mailboxAddr,
		fetcher: fetcher,
		ledger:  ledger,
		logger:  logger.With("component", "scanner"),
	}
}

// WaitForCode scans unread messages newest-first until one matches the
// request, then extracts and returns its code. The scan repeats at
// req.Interval until req.Wait elapses, which yields ErrCodeNotReceived.
func (s *Scanner) WaitForCode(ctx context.Context, req CodeRequest) (string, error) {
	var code string

	err := poll.Until(ctx, req.Wait, req.Interval, func(ctx context.Context) (bool, error) {
		messages, err := s.fetcher.FetchUnread(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list unread messages: %w", err)
		}

		for _, msg := range messages {
			if s.alreadyConsumed(ctx, msg.UID) {
				continue
			}

			body := msg.BodyText
			if body == "" && msg.BodyHTML != "" {
				if body, err = parser.HTMLToText(msg.BodyHTML); err != nil {
					s.logger.Warn("failed to normalize HTML body", "uid", msg.UID, "error", err)
					continue
				}
			}

			if !req.Matcher.Matches(msg, body) {
				continue
			}

			extracted, err := extract(body, req)
			if err != nil {
				s.logger.Warn("matching message without extractable code", "uid", msg.UID, "error", err)
				continue
			}

			s.consume(ctx, msg, req.Kind)
			code = extracted
			return true, nil
		}
		return false, nil
	})

	if errors.Is(err, poll.ErrTimeout) {
		return "", ErrCodeNotReceived
	}
	if err != nil {
		return "", err
	}

	s.logger.Info("verification code extracted", "kind", req.Kind)
	return code, nil
}

func extract(body string, req CodeRequest) (string, error) {
	if req.Digits > 0 {
		return parser.ExtractDigits(body, req.Digits)
	}
	if req.Pattern == nil {
		return "", fmt.Errorf("code request has neither digit count nor pattern")
	}
	return parser.ExtractPattern(body, req.Pattern)
}

func (s *Scanner) alreadyConsumed(ctx context.Context, uid uint32) bool {
	if s.ledger == nil {
		return false
	}
	consumed, err := s.ledger.IsConsumed(ctx, s.mailbox, uid)
	if err != nil {
		s.logger.Warn("ledger lookup failed", "uid", uid, "error", err)
		return false
	}
	return consumed
}

// consume marks the message seen and records it in the ledger. Both
// are best effort: the code is already in hand.
func (s *Scanner) consume(ctx context.Context, msg *models.MailMessage, kind string) {
	if err := s.fetcher.MarkSeen(ctx, msg.UID); err != nil {
		s.logger.Warn("failed to mark message seen", "uid", msg.UID, "error", err)
	}
	if s.ledger != nil {
		if err := s.ledger.MarkConsumed(ctx, s.mailbox, msg.UID, msg.FromAddr, kind); err != nil {
			s.logger.Warn("failed to record consumed message", "uid", msg.UID, "error", err)
		}
	}
}
