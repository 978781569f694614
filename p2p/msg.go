package p2p

import (
	"github.com/satwire/satwire/message"
)

// Msg is one raw frame: a command name and its undecoded payload.
type Msg struct {
	Command string
	Payload []byte
}

// NewMsg encodes m into a frame.
func NewMsg(m message.Message) Msg {
	return Msg{Command: m.Command(), Payload: message.ToData(m)}
}

// Decode parses the payload as the message registered for the command.
func (m Msg) Decode() (message.Message, error) {
	return message.Decode(m.Command, m.Payload)
}
