package model

import (
	"fmt"
	"strings"
)

// Role identifies what part a host plays in the network. It is assigned
// when the host is constructed and never derived from the host's name.
type Role int

const (
	// RoleSurvivor is a regular mobile DTN participant.
	RoleSurvivor Role = iota
	// RoleResponder is a fixed collector (responder) that exemplars forward to.
	RoleResponder
	// RoleSink is a control station that terminates traffic.
	RoleSink
)

func (r Role) String() string {
	switch r {
	case RoleSurvivor:
		return "survivor"
	case RoleResponder:
		return "responder"
	case RoleSink:
		return "sink"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole maps a configuration string to a Role. The legacy short forms
// used by scenario generators ("n", "CD", "CS", "ADB", "control_station")
// are accepted as aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "survivor", "n", "":
		return RoleSurvivor, nil
	case "responder", "collector", "cd", "cs", "adb":
		return RoleResponder, nil
	case "sink", "control_station", "controlstation":
		return RoleSink, nil
	default:
		return 0, fmt.Errorf("unknown host role %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
