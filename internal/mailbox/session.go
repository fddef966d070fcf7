package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	gosync "sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sdis/opsdash/internal/model"
)

// State is the lifecycle state of the IMAP session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// DialFunc opens a transport to the IMAP server and waits for its greeting.
// Login is performed by the session.
type DialFunc func(ctx context.Context) (*imapclient.Client, error)

// Option customizes a Session.
type Option func(*Session)

// WithDialer replaces the TCP/TLS dialer.
func WithDialer(d DialFunc) Option {
	return func(s *Session) { s.dial = d }
}

// Session owns the single IMAP connection used by the poller.
// Commands other than Connect and Disconnect require the authenticated state.
type Session struct {
	cfg    model.MailboxConfig
	logger *zap.Logger
	dial   DialFunc

	connectGroup singleflight.Group

	mu     gosync.Mutex
	state  State
	client *imapclient.Client
}

// NewSession creates a disconnected session for cfg.
func NewSession(cfg model.MailboxConfig, logger *zap.Logger, opts ...Option) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 20 * time.Second
	}
	if cfg.LogoutTimeout <= 0 {
		cfg.LogoutTimeout = 5 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Minute
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}

	s := &Session{
		cfg:    cfg,
		logger: logger.Named("mailbox"),
	}
	s.dial = s.dialServer
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Connect dials and authenticates. It returns immediately when the session
// is already authenticated, and concurrent callers share a single attempt.
// Each caller stops waiting when its own ctx is done; the attempt itself is
// bound to the ctx of the caller that started it.
func (s *Session) Connect(ctx context.Context) error {
	if s.State() == StateAuthenticated {
		return nil
	}

	ch := s.connectGroup.DoChan("connect", func() (any, error) {
		return nil, s.connect(ctx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("joined in-flight connect")
		}
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("waiting for connect: %w", ctx.Err())
	}
}

func (s *Session) connect(ctx context.Context) error {
	if s.State() == StateAuthenticated {
		return nil
	}

	// Never leak a previous client when reinitialising.
	s.forceClose()
	s.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.dialAndLogin(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err == nil {
		s.logger.Info("mailbox connected",
			zap.String("addr", s.cfg.Addr()),
			zap.String("user", s.cfg.Username))
		return nil
	}

	s.forceClose()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrConnectTimeout, s.cfg.ConnectTimeout)
	}
	return err
}

// dialAndLogin runs on its own goroutine so that the caller can abandon it
// on timeout. The client is published under the lock only while ctx is live,
// so an abandoned attempt always closes what it opened.
func (s *Session) dialAndLogin(ctx context.Context) error {
	client, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("connecting to IMAP %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = client.Close()
		return ctx.Err()
	}
	s.client = client
	s.state = StateConnected
	s.mu.Unlock()

	if err := client.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		return &AuthError{Username: s.cfg.Username, Err: err}
	}

	s.mu.Lock()
	if ctx.Err() != nil || s.client != client {
		s.mu.Unlock()
		return ctx.Err()
	}
	s.state = StateAuthenticated
	s.mu.Unlock()

	go s.watch(client)
	return nil
}

// watch drops the session to disconnected when the server or network
// closes the connection underneath us.
func (s *Session) watch(client *imapclient.Client) {
	<-client.Closed()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != client {
		return
	}
	s.client = nil
	s.state = StateDisconnected
	s.logger.Warn("mailbox connection closed by peer")
}

// forceClose tears down the live client, if any, without a LOGOUT.
func (s *Session) forceClose() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
}

// Disconnect logs out and closes the connection. It always succeeds: a
// LOGOUT that fails or exceeds the logout timeout is abandoned and the
// transport closed.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LogoutTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.Logout().Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Debug("logout failed", zap.Error(err))
		}
	case <-ctx.Done():
		s.logger.Warn("logout timed out, closing connection",
			zap.Duration("timeout", s.cfg.LogoutTimeout))
	}

	_ = client.Close()
	s.logger.Debug("mailbox disconnected")
	return nil
}

// authenticated returns the live client or ErrNotAuthenticated.
func (s *Session) authenticated() (*imapclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.client == nil {
		return nil, fmt.Errorf("%w (state %s)", ErrNotAuthenticated, s.state)
	}
	return s.client, nil
}

// bounded runs fn and gives up after the command timeout, closing the
// connection so the abandoned command cannot linger.
func (s *Session) bounded(ctx context.Context, what string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.forceClose()
		return fmt.Errorf("%s: %w", what, ctx.Err())
	}
}

// SelectInbox opens the configured mailbox read-only.
func (s *Session) SelectInbox(ctx context.Context) error {
	client, err := s.authenticated()
	if err != nil {
		return err
	}

	return s.bounded(ctx, "selecting "+s.cfg.Mailbox, func() error {
		if _, err := client.Select(s.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
			return fmt.Errorf("selecting %s: %w", s.cfg.Mailbox, err)
		}
		return nil
	})
}

// Search returns the sequence numbers of messages received since the
// given time.
func (s *Session) Search(ctx context.Context, since time.Time) ([]uint32, error) {
	client, err := s.authenticated()
	if err != nil {
		return nil, err
	}

	var seqNums []uint32
	err = s.bounded(ctx, "searching messages", func() error {
		data, err := client.Search(&imap.SearchCriteria{Since: since}, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching messages: %w", err)
		}
		seqNums = data.AllSeqNums()
		return nil
	})
	return seqNums, err
}

// FetchAndParse fetches the given messages and calls fn once per message
// that parses. Parse failures are logged and skipped. Parsing runs
// concurrently, so fn must not assume sequence-number order.
func (s *Session) FetchAndParse(
	ctx context.Context,
	seqNums []uint32,
	fn func(model.Email),
) error {
	client, err := s.authenticated()
	if err != nil {
		return err
	}
	if len(seqNums) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.fetch(client, seqNums, fn)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.forceClose()
		// The fetch loop ends once the connection is gone; in-flight
		// parses finish before we return so fn is never called late.
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s (%d messages)", ErrFetchTimeout, s.cfg.FetchTimeout, len(seqNums))
		}
		return ctx.Err()
	}
}

func (s *Session) fetch(client *imapclient.Client, seqNums []uint32, fn func(model.Email)) error {
	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.SeqSetNum(seqNums...), &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{section},
	})

	var g errgroup.Group
	g.SetLimit(s.cfg.FetchConcurrency)

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			s.logger.Warn("collecting message failed", zap.Error(err))
			continue
		}

		seqNum := buf.SeqNum
		raw := buf.FindBodySection(section)
		if raw == nil {
			s.logger.Warn("message has no body", zap.Uint32("seq", seqNum))
			continue
		}

		g.Go(func() error {
			email, err := ParseMessage(seqNum, raw)
			if err != nil {
				s.logger.Warn("skipping unparsable message",
					zap.Uint32("seq", seqNum), zap.Error(err))
				return nil
			}
			fn(email)
			return nil
		})
	}

	closeErr := fetchCmd.Close()
	_ = g.Wait()

	if closeErr != nil {
		return fmt.Errorf("fetching messages: %w", closeErr)
	}
	return nil
}

// dialServer opens a TCP or TLS connection honoring ctx and waits for the
// server greeting. Certificate verification follows the configuration.
func (s *Session) dialServer(ctx context.Context) (*imapclient.Client, error) {
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, //nolint:gosec // internal relay with self-signed cert
	}
	opts := &imapclient.Options{
		TLSConfig:   tlsConfig,
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	netDialer := &net.Dialer{}

	var client *imapclient.Client
	if s.cfg.TLS {
		dialer := &tls.Dialer{NetDialer: netDialer, Config: tlsConfig}
		conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr())
		if err != nil {
			return nil, err
		}
		client = imapclient.New(conn, opts)
	} else {
		conn, err := netDialer.DialContext(ctx, "tcp", s.cfg.Addr())
		if err != nil {
			return nil, err
		}
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	if err := client.WaitGreeting(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("waiting for greeting: %w", err)
	}

	return client, nil
}
