package chat

import (
	"fmt"
	"strings"
)

const clientPrefix = "Client "

// FormatChat renders a chat line relayed on behalf of a peer.
func FormatChat(displayName, text string) string {
	return fmt.Sprintf("%s says: %s", displayName, text)
}

// FormatNicknameChange renders the announcement broadcast after a rename.
// The old name is always shown with a single "Client " prefix, so a fallback
// name ("Client 42") and a chosen nickname ("Bob") both read naturally.
func FormatNicknameChange(oldName, newName string) string {
	return fmt.Sprintf("%s%s changed the nickname to %s",
		clientPrefix, strings.TrimPrefix(oldName, clientPrefix), newName)
}
