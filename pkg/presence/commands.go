package presence

import "strings"

// Command action kinds produced by ParseCommand.
const (
	ActionSend    = "send"    // plain chat message
	ActionEmote   = "emote"   // /me
	ActionWhisper = "whisper" // /w and aliases
	ActionLocal   = "local"   // synthesized locally, nothing sent
	ActionNone    = "none"    // empty input, nothing to do
)

const helpText = `Available commands:
/me <action> - perform an emote
/w <player> <message> - whisper to a player (aliases: /whisper, /msg, /tell)
/help - show this message`

// Command is the parsed outcome of one line of chat input.
type Command struct {
	Action  string
	Content string // message or emote body, or local text to display
	Target  string // whisper target, username or id

	// Handled is false only for an unrecognized /command; Content then
	// carries the error text to show locally.
	Handled bool
}

// ParseCommand interprets one line of chat input. Slash-prefixed input is
// tokenized on whitespace into a command and arguments; anything else
// non-empty becomes a plain send.
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	if input == "" {
		return Command{Action: ActionNone, Handled: true}
	}
	if !strings.HasPrefix(input, "/") {
		return Command{Action: ActionSend, Content: input, Handled: true}
	}

	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return Command{Action: ActionLocal, Content: "Unknown command: /", Handled: false}
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "me":
		if len(args) == 0 {
			return Command{Action: ActionLocal, Content: "Usage: /me <action>", Handled: false}
		}
		return Command{Action: ActionEmote, Content: strings.Join(args, " "), Handled: true}

	case "w", "whisper", "msg", "tell":
		if len(args) < 2 {
			return Command{Action: ActionLocal, Content: "Usage: /" + name + " <player> <message>", Handled: false}
		}
		return Command{
			Action:  ActionWhisper,
			Target:  args[0],
			Content: strings.Join(args[1:], " "),
			Handled: true,
		}

	case "help":
		return Command{Action: ActionLocal, Content: helpText, Handled: true}

	default:
		return Command{Action: ActionLocal, Content: "Unknown command: /" + name, Handled: false}
	}
}
