package message

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrUnknownCommand is returned by Decode for commands with no registered
// message type.
var ErrUnknownCommand = errors.New("message: unknown command")

// factories maps a command name to a constructor of its zero message.
var factories = map[string]func() Message{}

func register(fn func() Message) {
	factories[fn().Command()] = fn
}

func init() {
	register(func() Message { return new(Version) })
	register(func() Message { return new(VerAck) })
	register(func() Message { return new(Ping) })
	register(func() Message { return new(Pong) })
	register(func() Message { return new(GetAddress) })
	register(func() Message { return new(FilterLoad) })
	register(func() Message { return new(FilterClear) })
}

// New returns an empty message for command, or false if the command is not
// registered.
func New(command string) (Message, bool) {
	fn, ok := factories[command]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Decode parses payload as the message type registered for command.
func Decode(command string, payload []byte) (Message, error) {
	m, ok := New(command)
	if !ok {
		return nil, errors.Wrap(ErrUnknownCommand, command)
	}
	if err := FromData(m, payload); err != nil {
		return nil, err
	}
	return m, nil
}

// Commands returns the registered command names in sorted order.
func Commands() []string {
	out := make([]string, 0, len(factories))
	for cmd := range factories {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}
