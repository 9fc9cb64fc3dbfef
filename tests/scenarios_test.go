// Package tests holds black-box, wire-protocol-level scenario tests that
// drive a real listening server over a real TCP connection, the way
// catbox's own tests/ package does -- but self-contained in-process rather
// than shelling out to a built binary and a second linked server, since
// this server has no server-to-server linking to exercise.
package tests

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Godot04/ft-irc/internal/ircd"
)

const testPassword = "correct_password"

type harness struct {
	t        *testing.T
	manager  *ircd.Manager
	listener *ircd.Listener
	addr     string
}

func startHarness(t *testing.T) *harness {
	t.Helper()

	manager := ircd.NewManager(testPassword, 90*time.Second, 45*time.Second, nil)
	go manager.Run()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	listener := ircd.NewListener(addr, manager, time.Hour)

	errChan := make(chan error, 1)
	go func() {
		errChan <- listener.Run()
	}()

	// Give the listener a moment to bind before dialing.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never started listening on %s", addr)
		}
		time.Sleep(10 * time.Millisecond)
	}

	h := &harness{t: t, manager: manager, listener: listener, addr: addr}
	t.Cleanup(func() {
		listener.Shutdown()
	})
	return h
}

type wireClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (h *harness) connect() *wireClient {
	h.t.Helper()
	conn, err := net.Dial("tcp", h.addr)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = conn.Close() })
	c := &wireClient{t: h.t, conn: conn, r: bufio.NewReader(conn)}
	c.readUntilCode("001") // connect banner, distinct from the post-registration welcome
	return c
}

func (c *wireClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

func (c *wireClient) readLine() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return line
}

// readUntilCode reads lines until one contains the given numeric or
// command token, failing the test if it doesn't show up within a handful
// of lines.
func (c *wireClient) readUntilCode(code string) string {
	c.t.Helper()
	for i := 0; i < 20; i++ {
		line := c.readLine()
		if strings.Contains(line, " "+code+" ") || strings.Contains(line, " "+code+"\r\n") {
			return line
		}
	}
	c.t.Fatalf("never saw code %s", code)
	return ""
}

func (c *wireClient) register(nick, user string) {
	c.t.Helper()
	c.send("PASS " + testPassword)
	c.send("NICK " + nick)
	c.send(fmt.Sprintf("USER %s 0 * :%s Example", user, user))
	c.readUntilCode("001")
}

func TestScenarioWrongPassword(t *testing.T) {
	h := startHarness(t)
	c := h.connect()

	c.send("PASS wrong_password")
	line := c.readUntilCode("464")
	require.Contains(t, line, "464")
}

func TestScenarioFullRegistration(t *testing.T) {
	h := startHarness(t)
	c := h.connect()

	c.send("PASS " + testPassword)
	c.send("NICK alice")
	c.send("USER alice 0 * :Alice Example")

	line := c.readUntilCode("001")
	require.Contains(t, line, "Welcome")
}

func TestScenarioDuplicateNickname(t *testing.T) {
	h := startHarness(t)
	alice := h.connect()
	alice.register("dup", "alice")

	bob := h.connect()
	bob.send("PASS " + testPassword)
	bob.send("NICK dup")
	line := bob.readUntilCode("433")
	require.Contains(t, line, "433")
}

func TestScenarioJoinCreatesChannel(t *testing.T) {
	h := startHarness(t)
	alice := h.connect()
	alice.register("alice2", "alice2")

	alice.send("JOIN #scenario")
	line := alice.readUntilCode("JOIN")
	require.Contains(t, line, "#scenario")
}

func TestScenarioInviteOnlyChannel(t *testing.T) {
	h := startHarness(t)
	alice := h.connect()
	alice.register("alice3", "alice3")
	bob := h.connect()
	bob.register("bob3", "bob3")

	alice.send("JOIN #locked")
	alice.readUntilCode("JOIN")
	alice.send("MODE #locked +i")

	bob.send("JOIN #locked")
	line := bob.readUntilCode("473")
	require.Contains(t, line, "473")
}

func TestScenarioTopicProtection(t *testing.T) {
	h := startHarness(t)
	alice := h.connect()
	alice.register("alice4", "alice4")
	bob := h.connect()
	bob.register("bob4", "bob4")

	alice.send("JOIN #topicprot")
	alice.readUntilCode("JOIN")
	alice.send("MODE #topicprot +t")

	bob.send("JOIN #topicprot")
	bob.readUntilCode("JOIN")

	bob.send("TOPIC #topicprot :new topic")
	line := bob.readUntilCode("482")
	require.Contains(t, line, "482")
}
