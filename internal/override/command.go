// v0
// internal/override/command.go
package override

import (
	"errors"
	"fmt"
	"strings"

	"nrgchamp/greenhouse/internal/model"
)

// Command is one discrete operator request.
type Command string

const (
	TempUp    Command = "temp_up"
	TempDown  Command = "temp_down"
	TempReset Command = "temp_reset"
	HumUp     Command = "hum_up"
	HumDown   Command = "hum_down"
	HumReset  Command = "hum_reset"
	SoilUp    Command = "soil_up"
	SoilDown  Command = "soil_down"
	SoilReset Command = "soil_reset"
	Quit      Command = "quit"
)

var ErrUnknownCommand = errors.New("unknown override command")

// DefaultIncrements is the step change of one up/down command.
var DefaultIncrements = model.Steps{Temp: 0.1, Humidity: 0.2, Soil: 2.0}

var keyMap = map[rune]Command{
	't': TempUp, 'T': TempDown, 'r': TempReset,
	'h': HumUp, 'H': HumDown, 'u': HumReset,
	's': SoilUp, 'S': SoilDown, 'l': SoilReset,
	'q': Quit, 'Q': Quit,
}

var known = map[Command]struct{}{
	TempUp: {}, TempDown: {}, TempReset: {},
	HumUp: {}, HumDown: {}, HumReset: {},
	SoilUp: {}, SoilDown: {}, SoilReset: {},
	Quit: {},
}

// ParseCommand accepts the command name in any case.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := known[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	return c, nil
}

// KeyCommand maps a keyboard key to its command.
func KeyCommand(r rune) (Command, bool) {
	c, ok := keyMap[r]
	return c, ok
}

// apply folds c into s using inc. Results keep two decimals.
func apply(s model.Steps, c Command, inc model.Steps) model.Steps {
	switch c {
	case TempUp:
		s.Temp = model.Round2(s.Temp + inc.Temp)
	case TempDown:
		s.Temp = model.Round2(s.Temp - inc.Temp)
	case TempReset:
		s.Temp = 0
	case HumUp:
		s.Humidity = model.Round2(s.Humidity + inc.Humidity)
	case HumDown:
		s.Humidity = model.Round2(s.Humidity - inc.Humidity)
	case HumReset:
		s.Humidity = 0
	case SoilUp:
		s.Soil = model.Round2(s.Soil + inc.Soil)
	case SoilDown:
		s.Soil = model.Round2(s.Soil - inc.Soil)
	case SoilReset:
		s.Soil = 0
	}
	return s
}
