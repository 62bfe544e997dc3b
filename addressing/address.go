// Package addressing converts between DID addresses and the two syntaxes the
// diagnostic tool understands: the dotted request strings of its command line
// and the MQTT topics its bridge publishes to.
package addressing

import (
	"fmt"
	"strconv"
	"strings"
)

// Address names a DID of an ECU, optionally narrowed to a nested field.
type Address struct {
	ECU     string
	DID     int
	SubPath []string
}

// String renders a in request syntax, e.g. "0x680.256.BusType".
func (a Address) String() string {
	parts := append([]string{a.ECU, strconv.Itoa(a.DID)}, a.SubPath...)
	return strings.Join(parts, ".")
}

// Parent drops the sub path.
func (a Address) Parent() Address {
	return Address{ECU: a.ECU, DID: a.DID}
}

// ParseAddress parses a fully qualified request string such as
// "0x680.256" or "0x680.256.BusType.ID".
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || parts[0] == "" {
		return Address{}, fmt.Errorf("address %q: want <ecu>.<did>[.<field>...]", s)
	}
	if _, err := ECUNumber(parts[0]); err != nil {
		return Address{}, fmt.Errorf("address %q: %w", s, err)
	}
	did, err := strconv.ParseUint(parts[1], 10, 31)
	if err != nil {
		return Address{}, fmt.Errorf("address %q: invalid did %q", s, parts[1])
	}
	a := Address{ECU: parts[0], DID: int(did)}
	for _, f := range parts[2:] {
		if f == "" {
			return Address{}, fmt.Errorf("address %q: empty field name", s)
		}
		a.SubPath = append(a.SubPath, f)
	}
	return a, nil
}

// ECUNumber decodes an ECU address; "0x" prefixed hex and plain decimal are
// accepted.
func ECUNumber(ecu string) (uint64, error) {
	n, err := strconv.ParseUint(ecu, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ecu address %q", ecu)
	}
	return n, nil
}

// CLIArgument renders the read/write argument for dids of one ECU:
// "0x680.256,0x680.505".
func CLIArgument(ecu string, dids ...int) string {
	parts := make([]string, len(dids))
	for i, did := range dids {
		parts[i] = ecu + "." + strconv.Itoa(did)
	}
	return strings.Join(parts, ",")
}

// QualifiedCLIArgument passes a pre-composed request string through unchanged.
func QualifiedCLIArgument(s string) string { return s }

// SubDID renders the "<did>.<field>" form used in bridge commands.
func SubDID(did int, subPath ...string) string {
	return strings.Join(append([]string{strconv.Itoa(did)}, subPath...), ".")
}
