package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Action is the kind of an inline button press.
type Action string

const (
	ActionConfirm        Action = "confirm"
	ActionDecline        Action = "decline"
	ActionApprovePayment Action = "pay_ok"
	ActionRejectPayment  Action = "pay_no"
	ActionUntrust        Action = "untrust"
)

var ErrUnknownCommand = errors.New("unknown callback command")

// Command is the payload of an inline button: an action and the id it acts on
// (a debt, a payment or a user). It is encoded as "action:id".
type Command struct {
	Action Action
	ID     int64
}

func (c Command) String() string { return fmt.Sprintf("%s:%d", c.Action, c.ID) }

func ParseCommand(data string) (Command, error) {
	action, rawID, ok := strings.Cut(data, ":")
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, data)
	}
	switch a := Action(action); a {
	case ActionConfirm, ActionDecline, ActionApprovePayment, ActionRejectPayment, ActionUntrust:
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			return Command{}, fmt.Errorf("%w: bad id in %q", ErrUnknownCommand, data)
		}
		return Command{Action: a, ID: id}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, data)
	}
}
