package ircd

import (
	"strconv"
	"strings"

	irc "github.com/horgh/irc"
)

// Command is a parsed, validated protocol line. It is an immutable value:
// once built it is either Valid, or carries an ErrCode describing why not.
// This is the tagged sum-type the server's dispatch logic switches on,
// rather than a class hierarchy of command objects.
type Command struct {
	Raw    string
	Name   string
	Prefix string
	Params []string

	Known   bool
	Valid   bool
	ErrCode ReplyCode
}

type arity struct {
	min, max int // max < 0 means unbounded
}

var commandArity = map[string]arity{
	"PASS":    {1, 1},
	"NICK":    {1, 1},
	"USER":    {4, 4},
	"CAP":     {1, -1},
	"JOIN":    {1, 2},
	"PRIVMSG": {2, 2},
	"INVITE":  {2, 2},
	"KICK":    {2, 3},
	"TOPIC":   {1, 2},
	"PING":    {1, 1},
	"PONG":    {1, 1},
	"MODE":    {1, -1},
	"WHOIS":   {1, 1},
}

var capSubCommands = map[string]bool{
	"LS": true, "REQ": true, "ACK": true, "END": true, "LIST": true, "NAK": true,
}

// ParseCommand parses a single CRLF-terminated line into a Command value.
// A line that does not parse as a well-formed IRC message at all -- missing
// its terminator, malformed prefix, too many parameters -- is reported as
// invalid with ErrNeedMoreParams, matching the "lines lacking a terminator
// are rejected as invalid" requirement.
func ParseCommand(line string) Command {
	m, err := irc.ParseMessage(line)
	if err != nil {
		return Command{Raw: line, Valid: false, ErrCode: ErrNeedMoreParams}
	}

	name := strings.ToUpper(m.Command)
	cmd := Command{
		Raw:    line,
		Name:   name,
		Prefix: m.Prefix,
		Params: m.Params,
	}

	spec, known := commandArity[name]
	if !known {
		cmd.ErrCode = ErrUnknownCommand
		return cmd
	}
	cmd.Known = true

	if len(m.Params) < spec.min || (spec.max >= 0 && len(m.Params) > spec.max) {
		cmd.ErrCode = ErrNeedMoreParams
		return cmd
	}

	if !validateShape(name, m.Params) {
		cmd.ErrCode = ErrNeedMoreParams
		return cmd
	}

	cmd.Valid = true
	return cmd
}

// validateShape applies the per-command grammar rules from the protocol
// table that go beyond plain arity: non-empty trailing text, recognized
// sub-commands, numeric-only fields, and the like.
func validateShape(name string, params []string) bool {
	switch name {
	case "PRIVMSG":
		return len(params[1]) > 0
	case "CAP":
		return capSubCommands[strings.ToUpper(params[0])]
	case "MODE":
		if len(params) < 2 {
			return true
		}
		if !isModeString(params[1]) {
			return false
		}
		flags, ok := parseModeFlags(params[1], params[2:])
		if !ok {
			return false
		}
		for _, f := range flags {
			if f.flag == 'l' && f.add {
				if _, numOK := parseLimit(f.arg); !numOK {
					return false
				}
			}
		}
		return true
	case "PING", "PONG":
		return len(params[0]) > 0
	default:
		return true
	}
}

func isModeString(s string) bool {
	if len(s) == 0 {
		return false
	}
	sawFlag := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '+' || c == '-' {
			continue
		}
		if strings.IndexByte("itkol", c) < 0 {
			return false
		}
		sawFlag = true
	}
	return sawFlag
}

// modeFlag is one parsed +/- flag from a MODE string, with its consumed
// argument, if the flag takes one (k, l, o consume the next pending
// positional parameter, in left-to-right order).
type modeFlag struct {
	add bool
	flag byte
	arg  string
}

// parseModeFlags walks a mode string such as "+lk" against the remaining
// positional parameters, consuming one per k/l/o flag in the order they
// appear. It returns ok=false if there were not enough parameters to
// satisfy every parameterized flag.
func parseModeFlags(modeString string, args []string) ([]modeFlag, bool) {
	var flags []modeFlag
	add := true
	argIdx := 0

	for i := 0; i < len(modeString); i++ {
		c := modeString[i]
		switch c {
		case '+':
			add = true
		case '-':
			add = false
		case 'k', 'l', 'o':
			if argIdx >= len(args) {
				return nil, false
			}
			flags = append(flags, modeFlag{add: add, flag: c, arg: args[argIdx]})
			argIdx++
		case 'i', 't':
			flags = append(flags, modeFlag{add: add, flag: c})
		default:
			return nil, false
		}
	}
	return flags, true
}

// parseLimit parses the numeric argument to +l; the spec requires decimal
// digits only.
func parseLimit(s string) (int, bool) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
