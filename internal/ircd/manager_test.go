package ircd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, password string) *Manager {
	t.Helper()
	return NewManager(password, 90*time.Second, 45*time.Second, nil)
}

func newTestClientForManager(t *testing.T, id uint64) *Client {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return NewClient(id, client)
}

// drain collects whatever lines are currently queued on a client's
// outbound channel without blocking.
func drain(c *Client) []string {
	var lines []string
	for {
		select {
		case line := <-c.Out:
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

func containsCode(lines []string, code ReplyCode) bool {
	for _, l := range lines {
		if strings.Contains(l, " "+string(code)+" ") {
			return true
		}
	}
	return false
}

func register(t *testing.T, m *Manager, c *Client, password, nick, user string) {
	t.Helper()
	m.handleLine(c, "PASS "+password)
	m.handleLine(c, "NICK "+nick)
	m.handleLine(c, "USER "+user+" 0 * :"+user+" Realname")
	drain(c)
}

func TestRegistrationWrongPassword(t *testing.T) {
	m := newTestManager(t, "correct_password")
	c := newTestClientForManager(t, 1)
	m.addClient(c)

	m.handleLine(c, "PASS wrong_password")
	lines := drain(c)

	require.True(t, containsCode(lines, ErrPasswdMismatch))
	assert.False(t, c.Authenticated)
}

func TestFullRegistrationSendsWelcome(t *testing.T) {
	m := newTestManager(t, "correct_password")
	c := newTestClientForManager(t, 1)
	m.addClient(c)

	m.handleLine(c, "PASS correct_password")
	m.handleLine(c, "NICK alice")
	m.handleLine(c, "USER alice 0 * :Alice Example")

	lines := drain(c)
	require.True(t, containsCode(lines, RplWelcome))
	assert.True(t, c.Registered())
}

func TestDuplicateNicknameRejected(t *testing.T) {
	m := newTestManager(t, "correct_password")
	alice := newTestClientForManager(t, 1)
	bob := newTestClientForManager(t, 2)
	m.addClient(alice)
	m.addClient(bob)

	register(t, m, alice, "correct_password", "alice", "alice")

	m.handleLine(bob, "PASS correct_password")
	m.handleLine(bob, "NICK alice")
	lines := drain(bob)

	require.True(t, containsCode(lines, ErrNicknameInUse))
	assert.False(t, bob.NickSet)
}

func TestJoinCreatesChannelAndMakesCreatorOperator(t *testing.T) {
	m := newTestManager(t, "correct_password")
	alice := newTestClientForManager(t, 1)
	m.addClient(alice)
	register(t, m, alice, "correct_password", "alice", "alice")

	m.handleLine(alice, "JOIN #test")
	drain(alice)

	ch, ok := m.channels["#test"]
	require.True(t, ok)
	assert.True(t, ch.IsOperator("alice"))
	assert.True(t, ch.HasMember("alice"))
}

func TestJoinInviteOnlyRequiresInvite(t *testing.T) {
	m := newTestManager(t, "correct_password")
	alice := newTestClientForManager(t, 1)
	bob := newTestClientForManager(t, 2)
	m.addClient(alice)
	m.addClient(bob)

	register(t, m, alice, "correct_password", "alice", "alice")
	register(t, m, bob, "correct_password", "bob", "bob")

	m.handleLine(alice, "JOIN #test")
	drain(alice)
	m.handleLine(alice, "MODE #test +i")
	drain(alice)

	m.handleLine(bob, "JOIN #test")
	lines := drain(bob)
	require.True(t, containsCode(lines, ErrInviteOnlyChan))

	m.handleLine(alice, "INVITE bob #test")
	drain(alice)

	m.handleLine(bob, "JOIN #test")
	drain(bob)

	ch := m.channels["#test"]
	assert.True(t, ch.HasMember("bob"))
}

func TestTopicRequiresOperatorWhenLocked(t *testing.T) {
	m := newTestManager(t, "correct_password")
	alice := newTestClientForManager(t, 1)
	bob := newTestClientForManager(t, 2)
	m.addClient(alice)
	m.addClient(bob)

	register(t, m, alice, "correct_password", "alice", "alice")
	register(t, m, bob, "correct_password", "bob", "bob")

	m.handleLine(alice, "JOIN #test")
	drain(alice)
	m.handleLine(alice, "MODE #test +t")
	drain(alice)

	m.handleLine(bob, "JOIN #test")
	drain(bob)

	m.handleLine(bob, "TOPIC #test :new topic")
	lines := drain(bob)
	require.True(t, containsCode(lines, ErrChanOpPrivsNeeded))

	ch := m.channels["#test"]
	assert.Empty(t, ch.Topic)

	m.handleLine(alice, "TOPIC #test :alice's topic")
	drain(alice)
	assert.Equal(t, "alice's topic", ch.Topic)
}

func TestPingPong(t *testing.T) {
	m := newTestManager(t, "correct_password")
	alice := newTestClientForManager(t, 1)
	m.addClient(alice)
	register(t, m, alice, "correct_password", "alice", "alice")

	m.handleLine(alice, "PING :abc123")
	lines := drain(alice)
	require.Len(t, lines, 1)
	assert.Equal(t, "PONG abc123\r\n", lines[0])
}

func TestRemoveClientDestroysEmptyChannelAndFreesNick(t *testing.T) {
	m := newTestManager(t, "correct_password")
	alice := newTestClientForManager(t, 1)
	m.addClient(alice)
	register(t, m, alice, "correct_password", "alice", "alice")

	m.handleLine(alice, "JOIN #test")
	drain(alice)

	m.removeClient(alice)

	_, channelExists := m.channels["#test"]
	assert.False(t, channelExists)
	_, nickExists := m.nicks["alice"]
	assert.False(t, nickExists)
}

func TestReRegistrationRejected(t *testing.T) {
	m := newTestManager(t, "correct_password")
	alice := newTestClientForManager(t, 1)
	m.addClient(alice)
	register(t, m, alice, "correct_password", "alice", "alice")

	m.handleLine(alice, "USER alice 0 * :Alice Example")
	lines := drain(alice)
	require.True(t, containsCode(lines, ErrAlreadyRegistered))
}
