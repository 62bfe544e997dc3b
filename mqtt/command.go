package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kilianp07/open3e-harness/addressing"
)

// Mode selects what the bridge does with a command.
type Mode string

const (
	ModeRead     Mode = "read"
	ModeReadJSON Mode = "read-json"
	ModeReadRaw  Mode = "read-raw"
)

// DID references a DID in a bridge command, optionally narrowed to a field.
type DID struct {
	Number  int
	SubPath []string
}

// DIDs wraps plain DID numbers.
func DIDs(numbers ...int) []DID {
	out := make([]DID, len(numbers))
	for i, n := range numbers {
		out[i] = DID{Number: n}
	}
	return out
}

// SubDID references a field of a DID, rendered as "<did>.<field>".
func SubDID(number int, subPath ...string) DID {
	return DID{Number: number, SubPath: subPath}
}

// MarshalJSON renders plain DIDs as numbers and sub-DIDs as strings.
func (d DID) MarshalJSON() ([]byte, error) {
	if len(d.SubPath) == 0 {
		return json.Marshal(d.Number)
	}
	return json.Marshal(addressing.SubDID(d.Number, d.SubPath...))
}

// UnmarshalJSON accepts both forms written by MarshalJSON.
func (d *DID) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*d = DID{Number: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("did %s: want a number or \"<did>.<field>\"", data)
	}
	head, rest, _ := strings.Cut(s, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return fmt.Errorf("did %q: invalid number %q", s, head)
	}
	*d = DID{Number: n}
	if rest != "" {
		d.SubPath = strings.Split(rest, ".")
	}
	return nil
}

// Command is the payload published on the bridge command topic.
type Command struct {
	Mode Mode   `json:"mode"`
	Addr string `json:"addr"`
	Data []DID  `json:"data"`
}
