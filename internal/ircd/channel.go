package ircd

import "strings"

// Channel holds all state for one chat channel: membership, operators,
// invitees, topic, and the four supported mode flags.
type Channel struct {
	Name  string
	Topic string

	Members   map[string]*Client // exact-case nick -> client
	Operators map[string]struct{}
	Invitees  map[string]struct{}

	InviteOnly   bool // +i
	TopicLocked  bool // +t: only operators may change the topic
	Key          string
	KeySet       bool // +k
	Limit        int
	LimitSet     bool // +l
}

// NewChannel creates an empty channel. Channels are created lazily on
// first JOIN; the creator is added as the sole initial operator by the
// caller.
func NewChannel(name string) *Channel {
	return &Channel{
		Name:      name,
		Members:   make(map[string]*Client),
		Operators: make(map[string]struct{}),
		Invitees:  make(map[string]struct{}),
	}
}

func (ch *Channel) HasMember(nick string) bool {
	_, ok := ch.Members[nick]
	return ok
}

func (ch *Channel) IsOperator(nick string) bool {
	_, ok := ch.Operators[nick]
	return ok
}

func (ch *Channel) IsInvited(nick string) bool {
	_, ok := ch.Invitees[nick]
	return ok
}

// AddMember adds a client to the channel's membership. It does not imply
// operator status; callers that want to make the joiner an operator (e.g.
// the channel's creator) must call AddOperator too.
func (ch *Channel) AddMember(c *Client) {
	ch.Members[c.Nick] = c
}

// AddOperator adds nick as both a member and an operator.
func (ch *Channel) AddOperator(c *Client) {
	ch.AddMember(c)
	ch.Operators[c.Nick] = struct{}{}
}

func (ch *Channel) AddInvitee(nick string) {
	ch.Invitees[nick] = struct{}{}
}

// RemoveMember removes a member from the channel along with any operator
// or invitee status, maintaining the invariant that operators and invitees
// are always subsets of (or bypass lists not dependent on) membership.
// It returns true if the channel is now empty and should be destroyed.
func (ch *Channel) RemoveMember(nick string) (empty bool) {
	delete(ch.Members, nick)
	delete(ch.Operators, nick)
	delete(ch.Invitees, nick)
	return len(ch.Members) == 0
}

// Names renders the space-separated membership list for RPL_NAMREPLY,
// prefixing operators with '@'.
func (ch *Channel) Names() string {
	names := make([]string, 0, len(ch.Members))
	for nick := range ch.Members {
		if ch.IsOperator(nick) {
			names = append(names, "@"+nick)
		} else {
			names = append(names, nick)
		}
	}
	return strings.Join(names, " ")
}

// ModeString renders the channel's active flags, e.g. "+itl" with
// parameters, for RPL_CHANNELMODEIS and broadcast after a MODE change.
func (ch *Channel) ModeString() string {
	var flags strings.Builder
	var params []string
	flags.WriteByte('+')
	if ch.InviteOnly {
		flags.WriteByte('i')
	}
	if ch.TopicLocked {
		flags.WriteByte('t')
	}
	if ch.KeySet {
		flags.WriteByte('k')
		params = append(params, ch.Key)
	}
	if ch.LimitSet {
		flags.WriteByte('l')
		params = append(params, itoa(ch.Limit))
	}
	s := flags.String()
	if s == "+" {
		s = "+"
	}
	for _, p := range params {
		s += " " + p
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// admissionError is one of the JOIN admission policy failures, in
// first-failure-wins order: invite-only, bad key, then channel full. A
// client attempting to rejoin a channel it is already in is handled by
// the caller before admission is checked at all.
type admissionError int

const (
	admissionOK admissionError = iota
	admissionInviteOnly
	admissionBadKey
	admissionFull
)

// CheckAdmission applies the JOIN admission policy for an existing
// channel. It does not apply to a channel being created by this JOIN --
// the caller handles that case by making the joiner the initial operator
// directly.
func (ch *Channel) CheckAdmission(nick, key string) admissionError {
	if ch.InviteOnly && !ch.IsInvited(nick) {
		return admissionInviteOnly
	}
	if ch.KeySet && ch.Key != key {
		return admissionBadKey
	}
	if ch.LimitSet && len(ch.Members) >= ch.Limit {
		return admissionFull
	}
	return admissionOK
}

// IsValidChannelName reports whether s is an acceptable channel name: a
// '#' or '&' prefix, at least two characters total, and no spaces, commas
// or control characters anywhere in the name.
func IsValidChannelName(s string) bool {
	if len(s) < 2 {
		return false
	}
	if s[0] != '#' && s[0] != '&' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == ',' || c == 7 || c < 32 {
			return false
		}
	}
	return true
}

// CanonicalizeChannel lowercases a channel name for use as a map key.
// Channel names are compared case-insensitively.
func CanonicalizeChannel(s string) string {
	return strings.ToLower(s)
}
