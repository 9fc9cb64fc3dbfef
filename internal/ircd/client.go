package ircd

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// maxBufferBytes is the cap on a client's unterminated inbound data before
// it is discarded as a "message too long" condition, per the data model.
const maxBufferBytes = 2048

// outboundQueueSize bounds each client's outbound line queue. A client that
// can't keep up has its queue drop further sends rather than block the
// manager goroutine -- see Client.Send.
const outboundQueueSize = 512

// Client holds all per-connection session state: identity, registration
// progress, the inbound line buffer, and the outbound send queue. Every
// field here is owned by exactly one goroutine at a time: the inbound
// buffer by this client's own read loop, everything else by the manager's
// single event-processing goroutine.
type Client struct {
	ID   uint64
	conn net.Conn
	Out  chan string

	Host string

	Nick     string
	User     string
	RealName string

	Authenticated  bool
	NickSet        bool
	UserSet        bool
	CapNegotiating bool

	LastActivity time.Time

	Channels map[string]struct{}

	pending strings.Builder
}

// NewClient creates a Client wrapping an accepted connection.
func NewClient(id uint64, conn net.Conn) *Client {
	host := conn.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return &Client{
		ID:           id,
		conn:         conn,
		Out:          make(chan string, outboundQueueSize),
		Host:         host,
		LastActivity: time.Now(),
		Channels:     make(map[string]struct{}),
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("%d %s", c.ID, c.Host)
}

// Registered reports whether the client has completed the registration
// handshake: authenticated, nickname set, username set, and not mid CAP
// negotiation.
func (c *Client) Registered() bool {
	return c.Authenticated && c.NickSet && c.UserSet && !c.CapNegotiating
}

// NickUhost renders the client's nick!user@host prefix used to source
// messages the client sends to others.
func (c *Client) NickUhost() string {
	return fmt.Sprintf("%s!%s@%s", c.Nick, c.User, c.Host)
}

// maxNickLength bounds nickname length, following RFC's classic nick limit.
const maxNickLength = 9

// nickSpecials are the non-alphanumeric characters RFC 1459's nickname
// grammar permits anywhere after the first character.
const nickSpecials = "-_[]\\^{}|"

// IsValidNick reports whether s is an acceptable nickname: a letter or
// special character first, then letters, digits, or specials, within
// maxNickLength characters.
func IsValidNick(s string) bool {
	if len(s) == 0 || len(s) > maxNickLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case strings.IndexByte(nickSpecials, c) >= 0:
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Send queues a pre-encoded line for delivery to this client. This is the
// session's send primitive: best effort, non-blocking. A client whose
// queue is full has the line dropped rather than stall the caller -- in
// practice the manager's single goroutine, which must never block on a
// slow reader.
func (c *Client) Send(line string) {
	if line == "" {
		return
	}
	select {
	case c.Out <- line:
	default:
	}
}

// touch records that a valid command was just processed from this client.
func (c *Client) touch() {
	c.LastActivity = time.Now()
}

// appendBytes feeds newly read bytes into the client's inbound buffer and
// returns any complete (CRLF-terminated) lines found, in order. It also
// reports whether the buffer overflowed its cap while accumulating an
// incomplete line, in which case the buffer has already been cleared.
func (c *Client) appendBytes(b []byte) (lines []string, overflowed bool) {
	c.pending.Write(b)

	for {
		s := c.pending.String()
		idx := strings.Index(s, "\r\n")
		if idx < 0 {
			if c.pending.Len() > maxBufferBytes {
				c.pending.Reset()
				overflowed = true
			}
			return lines, overflowed
		}
		lines = append(lines, s[:idx])
		rest := s[idx+2:]
		c.pending.Reset()
		c.pending.WriteString(rest)
	}
}
