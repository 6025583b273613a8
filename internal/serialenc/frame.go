package serialenc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedFrame = errors.New("serialenc: malformed encoder frame")
	ErrNoFrame        = errors.New("serialenc: no encoder frame received yet")
)

// ParseFrame decodes one encoder line of the form "<left> <right>" or
// "<left> <right> <middle>". Fields may be separated by any whitespace or
// commas.
func ParseFrame(line string) ([]int32, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '\r' || r == '\n'
	})
	if len(fields) < 2 || len(fields) > 3 {
		return nil, fmt.Errorf("%w: %q has %d fields", ErrMalformedFrame, line, len(fields))
	}

	ticks := make([]int32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedFrame, line, err)
		}
		ticks[i] = int32(v)
	}
	return ticks, nil
}

// FormatCommand encodes a motor command line for the board.
func FormatCommand(left, right float64) string {
	return fmt.Sprintf("M %.4f %.4f\n", left, right)
}
