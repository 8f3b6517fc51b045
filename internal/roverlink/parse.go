package roverlink

import (
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/rovermap/internal/pathstore"
)

// CoordTag is the leading field of every position update.
const CoordTag = "COORD"

const coordFields = 3

// ParseLine decodes a trimmed `COORD,<x>,<y>` line. Any other line yields a
// *MalformedMessageError.
func ParseLine(line string) (pathstore.Sample, error) {
	if !strings.HasPrefix(line, CoordTag) {
		return pathstore.Sample{}, &MalformedMessageError{Line: line, Reason: "missing " + CoordTag + " tag"}
	}

	parts := strings.Split(line, ",")
	if len(parts) != coordFields {
		return pathstore.Sample{}, &MalformedMessageError{
			Line:   line,
			Reason: "expected " + strconv.Itoa(coordFields) + " fields, got " + strconv.Itoa(len(parts)),
		}
	}

	x, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return pathstore.Sample{}, &MalformedMessageError{Line: line, Reason: "invalid x: " + err.Error()}
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return pathstore.Sample{}, &MalformedMessageError{Line: line, Reason: "invalid y: " + err.Error()}
	}

	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return pathstore.Sample{}, &MalformedMessageError{Line: line, Reason: "non-finite coordinate"}
	}

	return pathstore.Sample{X: x, Y: y}, nil
}
