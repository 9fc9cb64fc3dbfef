// Package ircd implements the core of an RFC 1459-style IRC server: line
// parsing, client and channel state, registration, and command dispatch.
package ircd

import (
	"log"

	irc "github.com/horgh/irc"
)

// ServerName is the name this server identifies itself as in every reply
// prefix. It is a compile-time constant, not configuration, per design.
const ServerName = "ft_irc.42.de"

// ServerVersion and ServerCreated feed the 002/003/004 welcome replies.
const (
	ServerVersion = "ft-irc-0.1"
	ServerCreated = "2026-07-31"
)

// ReplyCode is a three digit numeric reply code.
type ReplyCode string

// Numeric replies. Names follow RFC 1459 conventions.
const (
	RplWelcome       ReplyCode = "001"
	RplYourHost      ReplyCode = "002"
	RplCreated       ReplyCode = "003"
	RplMyInfo        ReplyCode = "004"
	RplNoTopic       ReplyCode = "331"
	RplTopic         ReplyCode = "332"
	RplInviting      ReplyCode = "341"
	RplNamReply      ReplyCode = "353"
	RplEndOfNames    ReplyCode = "366"
	RplWhoisUser     ReplyCode = "311"
	RplWhoisServer   ReplyCode = "312"
	RplEndOfWhois    ReplyCode = "318"
	RplChannelModeIs ReplyCode = "324"

	ErrNoSuchNick        ReplyCode = "401"
	ErrNoSuchChannel     ReplyCode = "403"
	ErrCannotSendToChan  ReplyCode = "404"
	ErrUnknownCommand    ReplyCode = "421"
	ErrNoNicknameGiven   ReplyCode = "431"
	ErrErroneousNickname ReplyCode = "432"
	ErrNicknameInUse     ReplyCode = "433"
	ErrUserNotInChannel  ReplyCode = "441"
	ErrNotOnChannel      ReplyCode = "442"
	ErrUserOnChannel     ReplyCode = "443"
	ErrNotRegistered     ReplyCode = "451"
	ErrNeedMoreParams    ReplyCode = "461"
	ErrAlreadyRegistered ReplyCode = "462"
	ErrPasswdMismatch    ReplyCode = "464"
	ErrChannelIsFull     ReplyCode = "471"
	ErrInviteOnlyChan    ReplyCode = "473"
	ErrBadChannelKey     ReplyCode = "475"
	ErrChanOpPrivsNeeded ReplyCode = "482"
	ErrUsersDontMatch    ReplyCode = "502"
)

// encode builds a single CRLF-terminated wire line using the same codec we
// use to parse incoming messages, so truncation and trailing-parameter
// rules stay consistent in both directions.
func encode(prefix, command string, params ...string) string {
	m := irc.Message{
		Prefix:  prefix,
		Command: command,
		Params:  params,
	}
	s, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		log.Printf("ircd: failed to encode reply %s: %s", command, err)
		return ""
	}
	return s
}

// numeric builds a numeric reply of the form
// ":<server> <code> <target> <middle...> :<text>".
//
// The numeric code and target are never truncated: only the trailing text
// parameter is subject to shortening by Message.Encode when the line would
// otherwise exceed the 512 byte wire limit.
func numeric(code ReplyCode, target string, middle []string, text string) string {
	params := make([]string, 0, len(middle)+2)
	params = append(params, target)
	params = append(params, middle...)
	params = append(params, text)
	return encode(ServerName, string(code), params...)
}

func replyWelcome(target, nickUhost string) string {
	return numeric(RplWelcome, target, nil, "Welcome to the Internet Relay Network "+nickUhost)
}

// replyWelcomeBanner is sent immediately on accept, before the client has
// passed PASS/NICK/USER -- the connection multiplexer's greeting, distinct
// from the 001 sent again once registration actually completes.
func replyWelcomeBanner() string {
	return numeric(RplWelcome, "*", nil, "Welcome to the ft_IRC Network")
}

func replyYourHost(target string) string {
	return numeric(RplYourHost, target, nil,
		"Your host is "+ServerName+", running version "+ServerVersion)
}

func replyCreated(target string) string {
	return numeric(RplCreated, target, nil, "This server was created "+ServerCreated)
}

func replyMyInfo(target string) string {
	return encode(ServerName, string(RplMyInfo), target, ServerName, ServerVersion, "o", "itkol")
}

func replyPasswdMismatch(target string) string {
	return numeric(ErrPasswdMismatch, target, nil, "Password incorrect")
}

func replyAlreadyRegistered(target string) string {
	return numeric(ErrAlreadyRegistered, target, nil, "You may not reregister")
}

func replyUnknownCommand(target, command string) string {
	return numeric(ErrUnknownCommand, target, []string{command}, "Unknown command")
}

func replyNeedMoreParams(target, command string) string {
	return numeric(ErrNeedMoreParams, target, []string{command}, "Not enough parameters")
}

func replyNicknameInUse(target, nick string) string {
	return numeric(ErrNicknameInUse, target, []string{nick}, "Nickname is already in use")
}

func replyNoNicknameGiven(target string) string {
	return numeric(ErrNoNicknameGiven, target, nil, "No nickname given")
}

func replyErroneousNickname(target, nick string) string {
	return numeric(ErrErroneousNickname, target, []string{nick}, "Erroneous nickname")
}

func replyNoSuchNick(target, nick string) string {
	return numeric(ErrNoSuchNick, target, []string{nick}, "No such nick/channel")
}

func replyNoSuchChannel(target, channel string) string {
	return numeric(ErrNoSuchChannel, target, []string{channel}, "No such channel")
}

func replyNotOnChannel(target, channel string) string {
	return numeric(ErrNotOnChannel, target, []string{channel}, "You're not on that channel")
}

func replyCannotSendToChan(target, channel string) string {
	return numeric(ErrCannotSendToChan, target, []string{channel}, "Cannot send to channel")
}

func replyUsersDontMatch(target string) string {
	return numeric(ErrUsersDontMatch, target, nil, "Can't change mode for other users")
}

func replyChanOpPrivsNeeded(target, channel string) string {
	return numeric(ErrChanOpPrivsNeeded, target, []string{channel}, "You're not channel operator")
}

func replyInviteOnlyChan(target, channel string) string {
	return numeric(ErrInviteOnlyChan, target, []string{channel}, "Cannot join channel (+i)")
}

func replyBadChannelKey(target, channel string) string {
	return numeric(ErrBadChannelKey, target, []string{channel}, "Cannot join channel (+k)")
}

func replyChannelIsFull(target, channel string) string {
	return numeric(ErrChannelIsFull, target, []string{channel}, "Cannot join channel (+l)")
}

func replyUserNotInChannel(target, nick, channel string) string {
	return numeric(ErrUserNotInChannel, target, []string{nick, channel}, "They aren't on that channel")
}

func replyUserOnChannel(target, nick, channel string) string {
	return numeric(ErrUserOnChannel, target, []string{nick, channel}, "is already on channel")
}

func replyInviting(target, nick, channel string) string {
	return numeric(RplInviting, target, []string{nick}, channel)
}

func replyNoTopic(target, channel string) string {
	return numeric(RplNoTopic, target, []string{channel}, "No topic is set")
}

func replyTopic(target, channel, topic string) string {
	return numeric(RplTopic, target, []string{channel}, topic)
}

func replyNamReply(target, channel, names string) string {
	return numeric(RplNamReply, target, []string{"=", channel}, names)
}

func replyEndOfNames(target, channel string) string {
	return numeric(RplEndOfNames, target, []string{channel}, "End of /NAMES list")
}

func replyChannelModeIs(target, channel, modes string) string {
	return numeric(RplChannelModeIs, target, []string{channel, modes}, "")
}

func replyWhoisUser(target, nick, user, host, realName string) string {
	return encode(ServerName, string(RplWhoisUser), target, nick, user, host, "*", realName)
}

func replyWhoisServer(target, nick string) string {
	return numeric(RplWhoisServer, target, []string{nick, ServerName}, "ft-irc")
}

func replyEndOfWhois(target, nick string) string {
	return numeric(RplEndOfWhois, target, []string{nick}, "End of /WHOIS list")
}

func messageTooLong() string {
	return encode("", "ERROR", "Message too long")
}

// replyPong answers a client PING. Unlike the numeric replies here it
// carries no server prefix: `PONG <token>` byte-exact, per the round-trip
// contract.
func replyPong(token string) string {
	return encode("", "PONG", token)
}

func replyPing(token string) string {
	return encode(ServerName, "PING", token)
}
