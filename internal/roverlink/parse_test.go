package roverlink

import (
	"errors"
	"testing"

	"github.com/banshee-data/rovermap/internal/pathstore"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    pathstore.Sample
		wantErr bool
	}{
		{name: "integers", line: "COORD,10,0", want: pathstore.Sample{X: 10, Y: 0}},
		{name: "decimals", line: "COORD,-12.5,3.25", want: pathstore.Sample{X: -12.5, Y: 3.25}},
		{name: "exponent", line: "COORD,1e2,2E-1", want: pathstore.Sample{X: 100, Y: 0.2}},
		{name: "padded fields", line: "COORD, 4 , 5", want: pathstore.Sample{X: 4, Y: 5}},
		{name: "missing field", line: "COORD,5", wantErr: true},
		{name: "extra field", line: "COORD,1,2,3", wantErr: true},
		{name: "wrong tag", line: "POS,1,2", wantErr: true},
		{name: "lowercase tag", line: "coord,1,2", wantErr: true},
		{name: "non numeric x", line: "COORD,abc,2", wantErr: true},
		{name: "non numeric y", line: "COORD,1,", wantErr: true},
		{name: "nan", line: "COORD,NaN,1", wantErr: true},
		{name: "inf", line: "COORD,1,+Inf", wantErr: true},
		{name: "tag only", line: "COORD", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if tt.wantErr {
				var mm *MalformedMessageError
				if !errors.As(err, &mm) {
					t.Fatalf("ParseLine(%q) error = %v, want *MalformedMessageError", tt.line, err)
				}
				if mm.Line != tt.line {
					t.Errorf("error line = %q, want %q", mm.Line, tt.line)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine(%q) unexpected error: %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestIsAllowedCommand(t *testing.T) {
	for _, c := range []string{"START", "STOP", "START\n", "STOP\r\n"} {
		if !IsAllowedCommand(c) {
			t.Errorf("IsAllowedCommand(%q) = false, want true", c)
		}
	}
	for _, c := range []string{"", "start", "RESET", "START STOP"} {
		if IsAllowedCommand(c) {
			t.Errorf("IsAllowedCommand(%q) = true, want false", c)
		}
	}
}
