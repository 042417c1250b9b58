package chat

import "strings"

// Operator commands. Matching is case-insensitive on the first token.
const (
	CommandQuit     = "quit"
	CommandClients  = "clients"
	CommandNickname = "nick"
)

// IsCommand reports whether line consists of exactly the given command,
// ignoring case and surrounding whitespace.
func IsCommand(line, command string) bool {
	return strings.EqualFold(strings.TrimSpace(line), command)
}

// ParseNickname extracts the requested name from a "nick <name>" message.
// It returns false when the first token is not the nickname command or when
// no name follows it; extra tokens after the name are ignored.
func ParseNickname(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 || !strings.EqualFold(fields[0], CommandNickname) {
		return "", false
	}
	return fields[1], true
}
