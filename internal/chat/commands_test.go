package chat

import "testing"

func TestParseNickname(t *testing.T) {
	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{text: "nick Bob", want: "Bob", wantOK: true},
		{text: "NICK Bob", want: "Bob", wantOK: true},
		{text: "  Nick   Alice  ", want: "Alice", wantOK: true},
		{text: "nick Bob Marley", want: "Bob", wantOK: true},
		{text: "nick", wantOK: false},
		{text: "nick   ", wantOK: false},
		{text: "nickname Bob", wantOK: false},
		{text: "hello nick Bob", wantOK: false},
		{text: "", wantOK: false},
	}

	for _, tt := range tests {
		got, ok := ParseNickname(tt.text)
		if ok != tt.wantOK {
			t.Errorf("ParseNickname(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNickname(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestIsCommand(t *testing.T) {
	if !IsCommand("QUIT", CommandQuit) {
		t.Error("Expected QUIT to match the quit command")
	}
	if !IsCommand(" clients \n", CommandClients) {
		t.Error("Expected padded clients to match the clients command")
	}
	if IsCommand("quit now", CommandQuit) {
		t.Error("Expected 'quit now' not to match the quit command")
	}
}

func TestFormats(t *testing.T) {
	if got := FormatChat("Bob", "hi"); got != "Bob says: hi" {
		t.Errorf("Unexpected chat line %q", got)
	}

	tests := []struct {
		oldName string
		want    string
	}{
		{oldName: "Client 42", want: "Client 42 changed the nickname to Bob"},
		{oldName: "Alice", want: "Client Alice changed the nickname to Bob"},
	}
	for _, tt := range tests {
		if got := FormatNicknameChange(tt.oldName, "Bob"); got != tt.want {
			t.Errorf("FormatNicknameChange(%q) = %q, want %q", tt.oldName, got, tt.want)
		}
	}
}
