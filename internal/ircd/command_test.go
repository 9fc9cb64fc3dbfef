package ircd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandValid(t *testing.T) {
	cases := []struct {
		name string
		line string
		want Command
	}{
		{
			name: "PASS",
			line: "PASS secret\r\n",
			want: Command{Name: "PASS", Params: []string{"secret"}, Known: true, Valid: true},
		},
		{
			name: "NICK",
			line: "NICK alice\r\n",
			want: Command{Name: "NICK", Params: []string{"alice"}, Known: true, Valid: true},
		},
		{
			name: "USER with trailing realname",
			line: "USER alice 0 * :Alice Example\r\n",
			want: Command{
				Name:   "USER",
				Params: []string{"alice", "0", "*", "Alice Example"},
				Known:  true, Valid: true,
			},
		},
		{
			name: "JOIN single channel",
			line: "JOIN #test\r\n",
			want: Command{Name: "JOIN", Params: []string{"#test"}, Known: true, Valid: true},
		},
		{
			name: "PRIVMSG to channel",
			line: "PRIVMSG #test :hello there\r\n",
			want: Command{
				Name:   "PRIVMSG",
				Params: []string{"#test", "hello there"},
				Known:  true, Valid: true,
			},
		},
		{
			name: "PING",
			line: "PING :token\r\n",
			want: Command{Name: "PING", Params: []string{"token"}, Known: true, Valid: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseCommand(tc.line)
			assert.Equal(t, tc.want.Name, got.Name)
			assert.Equal(t, tc.want.Params, got.Params)
			assert.Equal(t, tc.want.Known, got.Known)
			assert.True(t, got.Valid)
		})
	}
}

func TestParseCommandInvalid(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		errCode ReplyCode
	}{
		{"missing terminator", "NICK alice", ErrNeedMoreParams},
		{"unknown command", "FROBNICATE foo\r\n", ErrUnknownCommand},
		{"USER too few params", "USER alice 0 *\r\n", ErrNeedMoreParams},
		{"PRIVMSG empty text", "PRIVMSG #test :\r\n", ErrNeedMoreParams},
		{"CAP bad subcommand", "CAP BOGUS\r\n", ErrNeedMoreParams},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseCommand(tc.line)
			require.False(t, got.Valid)
			assert.Equal(t, tc.errCode, got.ErrCode)
		})
	}
}

func TestParseModeFlags(t *testing.T) {
	flags, ok := parseModeFlags("+lk", []string{"10", "secret"})
	require.True(t, ok)
	require.Len(t, flags, 2)
	assert.Equal(t, modeFlag{add: true, flag: 'l', arg: "10"}, flags[0])
	assert.Equal(t, modeFlag{add: true, flag: 'k', arg: "secret"}, flags[1])
}

func TestParseModeFlagsInsufficientParams(t *testing.T) {
	_, ok := parseModeFlags("+k", nil)
	assert.False(t, ok)
}

func TestParseModeFlagsMixedAddRemove(t *testing.T) {
	flags, ok := parseModeFlags("+i-t", nil)
	require.True(t, ok)
	require.Len(t, flags, 2)
	assert.Equal(t, modeFlag{add: true, flag: 'i'}, flags[0])
	assert.Equal(t, modeFlag{add: false, flag: 't'}, flags[1])
}

func TestParseLimit(t *testing.T) {
	n, ok := parseLimit("42")
	require.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = parseLimit("4x")
	assert.False(t, ok)
}
