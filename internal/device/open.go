package device

import (
	"fmt"
	"sort"
	"strings"

	"github.com/decred/slog"
)

// backends holds the hardware backends compiled into this binary.
var backends = map[string]func(log slog.Logger) Device{}

// ByName returns the output device called name. "null" and "wav:<path>" are
// always available; "beep" and "malgo" need cgo.
func ByName(name string, log slog.Logger) (Device, error) {
	switch {
	case name == "null":
		return &Null{}, nil
	case strings.HasPrefix(name, "wav:") && len(name) > 4:
		return &WAVFile{Path: strings.TrimPrefix(name, "wav:")}, nil
	}
	if mk, ok := backends[name]; ok {
		return mk(log), nil
	}
	return nil, fmt.Errorf("unknown output device %q (available: %v)", name, Names())
}

// Names lists the device names accepted by ByName.
func Names() []string {
	names := []string{"null", "wav:<path>"}
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names[2:])
	return names
}

// DefaultName is the device used when none is configured: the speaker when
// built with audio support, null otherwise.
func DefaultName() string {
	if _, ok := backends["beep"]; ok {
		return "beep"
	}
	return "null"
}
