// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRejected is returned for a command the current state does not accept.
var ErrRejected = errors.New("command rejected")

// Command is an operator request handled at the start of a cycle.
type Command uint8

const (
	CommandStart Command = iota + 1
	CommandStandby
	CommandRaise
	CommandRaiseBypass
	CommandLower
	CommandPause
	CommandResume
	CommandClearFault
	CommandApplyVelocity
	CommandZeroVelocity
	CommandApplyAcceleration
	CommandZeroAcceleration
	CommandResetILCs
)

var commandNames = map[Command]string{
	CommandStart:       "start",
	CommandStandby:     "standby",
	CommandRaise:       "raise",
	CommandRaiseBypass: "raise-bypass",
	CommandLower:       "lower",
	CommandPause:       "pause",
	CommandResume:      "resume",
	CommandClearFault:  "clear-fault",

	CommandApplyVelocity:     "apply-velocity",
	CommandZeroVelocity:      "zero-velocity",
	CommandApplyAcceleration: "apply-acceleration",
	CommandZeroAcceleration:  "zero-acceleration",
	CommandResetILCs:         "reset-ilcs",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

// ParseCommand returns the command named s.
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range commandNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

type request struct {
	cmd  Command
	done chan error
}
