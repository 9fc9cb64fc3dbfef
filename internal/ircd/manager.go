package ircd

import (
	"strconv"
	"strings"
	"time"
)

// EventType tags the kind of Event delivered to the manager's single
// processing loop.
type EventType int

const (
	// EventNewClient announces a freshly accepted connection.
	EventNewClient EventType = iota
	// EventMessage carries one complete, CRLF-terminated line read from a
	// client.
	EventMessage
	// EventBufferOverflow reports that a client's inbound buffer exceeded
	// its cap before a line terminator appeared.
	EventBufferOverflow
	// EventDeadClient reports that a client's connection ended, by error,
	// EOF, or hangup.
	EventDeadClient
	// EventTick drives periodic idle-timeout and ping-interval scanning.
	EventTick
)

// Event is the single type carried over the manager's event channel. It is
// how the per-connection I/O goroutines (see Listener) and the timer
// goroutine hand work to the one goroutine that owns all mutable server
// state.
type Event struct {
	Type   EventType
	Client *Client
	Line   string
}

// Metrics is the subset of observability hooks the manager calls into. It
// is satisfied by internal/metrics's collector and by a no-op in tests.
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	ChannelCreated()
	ChannelDestroyed()
	CommandProcessed(name string)
}

type noopMetrics struct{}

func (noopMetrics) ClientConnected()        {}
func (noopMetrics) ClientDisconnected()      {}
func (noopMetrics) ChannelCreated()          {}
func (noopMetrics) ChannelDestroyed()        {}
func (noopMetrics) CommandProcessed(string)  {}

// Manager is the session and channel manager: component C5. It owns the
// map of connected clients, the set of live channels, and the server
// password, and it is the only goroutine that ever mutates any of them --
// satisfying the "single owner per mutable state, no locks" requirement by
// construction: everything funnels through Events.
type Manager struct {
	password string

	idleTimeout  time.Duration
	pingInterval time.Duration

	clients  map[uint64]*Client
	nicks    map[string]*Client // exact-case nick -> client
	channels map[string]*Channel

	events chan Event

	metrics Metrics
}

// NewManager creates a Manager. password is the server's connection
// password clients must supply via PASS before registering.
func NewManager(password string, idleTimeout, pingInterval time.Duration, metrics Metrics) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		password:     password,
		idleTimeout:  idleTimeout,
		pingInterval: pingInterval,
		clients:      make(map[uint64]*Client),
		nicks:        make(map[string]*Client),
		channels:     make(map[string]*Channel),
		events:       make(chan Event, 4096),
		metrics:      metrics,
	}
}

// Events returns the channel I/O goroutines send Events to.
func (m *Manager) Events() chan<- Event {
	return m.events
}

// Run drains events until the channel is closed. It is the manager's
// entire concurrency footprint: one goroutine, one loop, no locks.
func (m *Manager) Run() {
	for ev := range m.events {
		m.handle(ev)
	}
}

func (m *Manager) handle(ev Event) {
	switch ev.Type {
	case EventNewClient:
		m.addClient(ev.Client)
	case EventMessage:
		m.handleLine(ev.Client, ev.Line)
	case EventBufferOverflow:
		ev.Client.Send(messageTooLong())
	case EventDeadClient:
		m.removeClient(ev.Client)
	case EventTick:
		m.scanIdleClients()
	}
}

func (m *Manager) addClient(c *Client) {
	m.clients[c.ID] = c
	c.Send(replyWelcomeBanner())
	m.metrics.ClientConnected()
}

// removeClient drops a client from every channel it was in (destroying any
// that become empty), frees its nickname, and forgets it. It is safe to
// call more than once for the same client.
func (m *Manager) removeClient(c *Client) {
	if _, ok := m.clients[c.ID]; !ok {
		return
	}

	for name := range c.Channels {
		if ch, ok := m.channels[name]; ok {
			if ch.RemoveMember(c.Nick) {
				delete(m.channels, name)
				m.metrics.ChannelDestroyed()
			} else {
				m.broadcastChannel(ch, "", "QUIT", nil, "Connection closed")
			}
		}
	}

	if c.Nick != "" && m.nicks[c.Nick] == c {
		delete(m.nicks, c.Nick)
	}

	delete(m.clients, c.ID)
	close(c.Out)
	m.metrics.ClientDisconnected()
}

func (m *Manager) handleLine(c *Client, line string) {
	cmd := ParseCommand(line + "\r\n")

	if !cmd.Valid {
		switch cmd.ErrCode {
		case ErrUnknownCommand:
			c.Send(replyUnknownCommand(m.target(c), cmd.Name))
		default:
			name := cmd.Name
			if name == "" {
				name = "*"
			}
			c.Send(replyNeedMoreParams(m.target(c), name))
		}
		return
	}

	c.touch()
	m.metrics.CommandProcessed(cmd.Name)

	if !c.Registered() {
		m.dispatchUnregistered(c, cmd)
		return
	}

	m.dispatchRegistered(c, cmd)
}

// target returns the identifier to address replies to: the client's own
// nick once set, or "*" before then, matching convention for replies sent
// before registration completes.
func (m *Manager) target(c *Client) string {
	if c.Nick != "" {
		return c.Nick
	}
	return "*"
}

// --- Unregistered client command path -------------------------------------

func (m *Manager) dispatchUnregistered(c *Client, cmd Command) {
	switch cmd.Name {
	case "PASS":
		if cmd.Params[0] == m.password {
			c.Authenticated = true
		} else {
			c.Send(replyPasswdMismatch(m.target(c)))
		}
	case "NICK":
		m.setNick(c, cmd.Params[0])
	case "USER":
		c.User = cmd.Params[0]
		c.RealName = cmd.Params[3]
		c.UserSet = true
	case "CAP":
		m.handleCap(c, cmd)
	default:
		c.Send(replyNotRegisteredYet(m.target(c), cmd.Name))
	}

	if c.Registered() {
		m.completeRegistration(c)
	}
}

func replyNotRegisteredYet(target, command string) string {
	return numeric(ErrNotRegistered, target, []string{command}, "You have not registered")
}

func (m *Manager) setNick(c *Client, nick string) {
	if nick == "" {
		c.Send(replyNoNicknameGiven(m.target(c)))
		return
	}
	if !IsValidNick(nick) {
		c.Send(replyErroneousNickname(m.target(c), nick))
		return
	}
	if existing, ok := m.nicks[nick]; ok && existing != c {
		c.Send(replyNicknameInUse(m.target(c), nick))
		return
	}
	if c.Nick != "" {
		delete(m.nicks, c.Nick)
	}
	c.Nick = nick
	c.NickSet = true
	m.nicks[nick] = c
}

func (m *Manager) handleCap(c *Client, cmd Command) {
	sub := strings.ToUpper(cmd.Params[0])
	switch sub {
	case "LS", "REQ", "ACK":
		c.CapNegotiating = true
		c.Send(encode(ServerName, "CAP", c.nickOrStar(), sub, ""))
	case "LIST":
		c.Send(encode(ServerName, "CAP", c.nickOrStar(), "LIST", ""))
	case "END":
		c.CapNegotiating = false
	}
}

func (c *Client) nickOrStar() string {
	if c.Nick != "" {
		return c.Nick
	}
	return "*"
}

func (m *Manager) completeRegistration(c *Client) {
	c.Send(replyWelcome(c.Nick, c.NickUhost()))
	c.Send(replyYourHost(c.Nick))
	c.Send(replyCreated(c.Nick))
	c.Send(replyMyInfo(c.Nick))
}

// --- Registered client command path ---------------------------------------

func (m *Manager) dispatchRegistered(c *Client, cmd Command) {
	switch cmd.Name {
	case "PASS", "USER":
		c.Send(replyAlreadyRegistered(m.target(c)))
	case "NICK":
		// No-op after registration: this server does not broadcast
		// nick changes to anyone already connected.
	case "JOIN":
		m.handleJoin(c, cmd)
	case "PRIVMSG":
		m.handlePrivmsg(c, cmd)
	case "TOPIC":
		m.handleTopic(c, cmd)
	case "KICK":
		m.handleKick(c, cmd)
	case "INVITE":
		m.handleInvite(c, cmd)
	case "MODE":
		m.handleMode(c, cmd)
	case "PING":
		c.Send(replyPong(cmd.Params[0]))
	case "PONG":
		// Activity already recorded by handleLine; nothing else to do.
	case "WHOIS":
		m.handleWhois(c, cmd)
	default:
		c.Send(replyUnknownCommand(m.target(c), cmd.Name))
	}
}

func (m *Manager) handleJoin(c *Client, cmd Command) {
	names := strings.Split(cmd.Params[0], ",")
	var keys []string
	if len(cmd.Params) > 1 {
		keys = strings.Split(cmd.Params[1], ",")
	}

	for i, rawName := range names {
		name := CanonicalizeChannel(rawName)
		if !IsValidChannelName(name) {
			c.Send(replyNoSuchChannel(m.target(c), rawName))
			continue
		}
		key := ""
		if i < len(keys) {
			key = keys[i]
		}

		if _, already := c.Channels[name]; already {
			continue
		}

		ch, exists := m.channels[name]
		if !exists {
			ch = NewChannel(name)
			m.channels[name] = ch
			ch.AddOperator(c)
			c.Channels[name] = struct{}{}
			m.metrics.ChannelCreated()
			m.announceJoin(c, ch)
			continue
		}

		switch ch.CheckAdmission(c.Nick, key) {
		case admissionInviteOnly:
			c.Send(replyInviteOnlyChan(m.target(c), rawName))
			continue
		case admissionBadKey:
			c.Send(replyBadChannelKey(m.target(c), rawName))
			continue
		case admissionFull:
			c.Send(replyChannelIsFull(m.target(c), rawName))
			continue
		}

		ch.AddMember(c)
		c.Channels[name] = struct{}{}
		m.announceJoin(c, ch)
	}
}

func (m *Manager) announceJoin(c *Client, ch *Channel) {
	m.broadcastChannel(ch, c.NickUhost(), "JOIN", nil, ch.Name)
	if ch.Topic == "" {
		c.Send(replyNoTopic(m.target(c), ch.Name))
	} else {
		c.Send(replyTopic(m.target(c), ch.Name, ch.Topic))
	}
	c.Send(replyNamReply(m.target(c), ch.Name, ch.Names()))
	c.Send(replyEndOfNames(m.target(c), ch.Name))
}

func (m *Manager) handlePrivmsg(c *Client, cmd Command) {
	target := cmd.Params[0]
	text := cmd.Params[1]

	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		name := CanonicalizeChannel(target)
		ch, ok := m.channels[name]
		if !ok {
			c.Send(replyNoSuchChannel(m.target(c), target))
			return
		}
		if !ch.HasMember(c.Nick) {
			c.Send(replyCannotSendToChan(m.target(c), target))
			return
		}
		m.broadcastChannelExcept(ch, c, c.NickUhost(), "PRIVMSG", []string{ch.Name}, text)
		return
	}

	dest, ok := m.nicks[target]
	if !ok {
		c.Send(replyNoSuchNick(m.target(c), target))
		return
	}
	dest.Send(encode(c.NickUhost(), "PRIVMSG", target, text))
}

func (m *Manager) handleTopic(c *Client, cmd Command) {
	name := CanonicalizeChannel(cmd.Params[0])
	ch, ok := m.channels[name]
	if !ok {
		c.Send(replyNoSuchChannel(m.target(c), cmd.Params[0]))
		return
	}
	if !ch.HasMember(c.Nick) {
		c.Send(replyNotOnChannel(m.target(c), cmd.Params[0]))
		return
	}

	if len(cmd.Params) == 1 {
		if ch.Topic == "" {
			c.Send(replyNoTopic(m.target(c), ch.Name))
		} else {
			c.Send(replyTopic(m.target(c), ch.Name, ch.Topic))
		}
		return
	}

	if ch.TopicLocked && !ch.IsOperator(c.Nick) {
		c.Send(replyChanOpPrivsNeeded(m.target(c), ch.Name))
		return
	}

	ch.Topic = cmd.Params[1]
	m.broadcastChannel(ch, c.NickUhost(), "TOPIC", []string{ch.Name}, ch.Topic)
}

func (m *Manager) handleKick(c *Client, cmd Command) {
	name := CanonicalizeChannel(cmd.Params[0])
	targetNick := cmd.Params[1]
	reason := targetNick
	if len(cmd.Params) == 3 {
		reason = cmd.Params[2]
	}

	ch, ok := m.channels[name]
	if !ok {
		c.Send(replyNoSuchChannel(m.target(c), cmd.Params[0]))
		return
	}
	if !ch.HasMember(c.Nick) {
		c.Send(replyNotOnChannel(m.target(c), cmd.Params[0]))
		return
	}
	if !ch.IsOperator(c.Nick) {
		c.Send(replyChanOpPrivsNeeded(m.target(c), ch.Name))
		return
	}
	target, ok := m.nicks[targetNick]
	if !ok {
		c.Send(replyNoSuchNick(m.target(c), targetNick))
		return
	}
	if !ch.HasMember(targetNick) {
		c.Send(replyUserNotInChannel(m.target(c), targetNick, ch.Name))
		return
	}

	m.broadcastChannel(ch, c.NickUhost(), "KICK", []string{ch.Name, targetNick}, reason)
	delete(target.Channels, name)
	if ch.RemoveMember(targetNick) {
		delete(m.channels, name)
		m.metrics.ChannelDestroyed()
	}
}

func (m *Manager) handleInvite(c *Client, cmd Command) {
	targetNick := cmd.Params[0]
	name := CanonicalizeChannel(cmd.Params[1])

	target, ok := m.nicks[targetNick]
	if !ok {
		c.Send(replyNoSuchNick(m.target(c), targetNick))
		return
	}
	ch, ok := m.channels[name]
	if !ok {
		c.Send(replyNoSuchChannel(m.target(c), cmd.Params[1]))
		return
	}
	if !ch.HasMember(c.Nick) {
		c.Send(replyNotOnChannel(m.target(c), cmd.Params[1]))
		return
	}
	if ch.HasMember(targetNick) {
		c.Send(replyUserOnChannel(m.target(c), targetNick, ch.Name))
		return
	}

	ch.AddInvitee(targetNick)
	target.Send(encode(c.NickUhost(), "INVITE", targetNick, ch.Name))
	c.Send(replyInviting(m.target(c), targetNick, ch.Name))
}

func (m *Manager) handleMode(c *Client, cmd Command) {
	name := CanonicalizeChannel(cmd.Params[0])
	ch, ok := m.channels[name]
	if !ok {
		c.Send(replyNoSuchChannel(m.target(c), cmd.Params[0]))
		return
	}

	if len(cmd.Params) == 1 {
		c.Send(replyChannelModeIs(m.target(c), ch.Name, ch.ModeString()))
		return
	}

	if !ch.IsOperator(c.Nick) {
		c.Send(replyChanOpPrivsNeeded(m.target(c), ch.Name))
		return
	}

	flags, ok := parseModeFlags(cmd.Params[1], cmd.Params[2:])
	if !ok {
		c.Send(replyNeedMoreParams(m.target(c), "MODE"))
		return
	}

	for _, f := range flags {
		switch f.flag {
		case 'i':
			ch.InviteOnly = f.add
		case 't':
			ch.TopicLocked = f.add
		case 'k':
			if f.add {
				ch.Key = f.arg
				ch.KeySet = true
			} else {
				ch.Key = ""
				ch.KeySet = false
			}
		case 'l':
			if f.add {
				n, numOK := parseLimit(f.arg)
				if !numOK {
					continue
				}
				ch.Limit = n
				ch.LimitSet = true
			} else {
				ch.Limit = 0
				ch.LimitSet = false
			}
		case 'o':
			target, exists := m.nicks[f.arg]
			if !exists || !ch.HasMember(f.arg) {
				c.Send(replyUserNotInChannel(m.target(c), f.arg, ch.Name))
				continue
			}
			if f.add {
				ch.Operators[target.Nick] = struct{}{}
			} else {
				delete(ch.Operators, target.Nick)
			}
		}
	}

	modeLine := replyChannelModeIs(c.Nick, ch.Name, ch.ModeString())
	for _, member := range ch.Members {
		member.Send(modeLine)
	}
}

func (m *Manager) handleWhois(c *Client, cmd Command) {
	nick := cmd.Params[0]
	target, ok := m.nicks[nick]
	if !ok {
		c.Send(replyNoSuchNick(m.target(c), nick))
		return
	}
	c.Send(replyWhoisUser(m.target(c), target.Nick, target.User, target.Host, target.RealName))
	c.Send(replyWhoisServer(m.target(c), target.Nick))
	c.Send(replyEndOfWhois(m.target(c), target.Nick))
}

// --- Broadcast helpers ------------------------------------------------------

func (m *Manager) broadcastChannel(ch *Channel, prefix, command string, middle []string, trailing string) {
	line := encode(prefix, command, append(append([]string{}, middle...), trailing)...)
	for _, member := range ch.Members {
		member.Send(line)
	}
}

func (m *Manager) broadcastChannelExcept(ch *Channel, except *Client, prefix, command string, middle []string, trailing string) {
	line := encode(prefix, command, append(append([]string{}, middle...), trailing)...)
	for nick, member := range ch.Members {
		if nick == except.Nick {
			continue
		}
		member.Send(line)
	}
}

// --- Idle / ping scanning ----------------------------------------------------

// scanIdleClients removes clients past idleTimeout and sends a
// server-initiated PING to every client past half that deadline, on each
// scan until the client shows activity or is removed.
func (m *Manager) scanIdleClients() {
	now := time.Now()
	var dead []*Client

	for _, c := range m.clients {
		age := now.Sub(c.LastActivity)
		if age >= m.idleTimeout {
			c.Send(encode("", "ERROR", "Connection closed: ping timeout"))
			dead = append(dead, c)
			continue
		}
		if age >= m.idleTimeout/2 {
			c.Send(replyPing(strconv.FormatInt(now.Unix(), 10)))
		}
	}

	for _, c := range dead {
		m.removeClient(c)
	}
}
