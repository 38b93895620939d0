package utmp

import (
	"fmt"
	"strings"
)

// Width selects the record layout to decode.
type Width int

const (
	Narrow Width = iota
	Wide
)

// Size returns the record size for w.
func (w Width) Size() int {
	if w == Wide {
		return Size64
	}
	return Size32
}

func (w Width) String() string {
	switch w {
	case Narrow:
		return "narrow"
	case Wide:
		return "wide"
	default:
		return fmt.Sprintf("Width(%d)", int(w))
	}
}

// ParseWidth parses "narrow", "wide" or "native". The empty string is native.
func ParseWidth(s string) (Width, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native":
		return Native, nil
	case "narrow", "32":
		return Narrow, nil
	case "wide", "64":
		return Wide, nil
	}
	return 0, fmt.Errorf("utmp: unknown record width %q", s)
}
