package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ErrMalformedFixture is returned when a fixture is not an object of objects
// keyed by integer DIDs.
var ErrMalformedFixture = errors.New("malformed fixture")

// Record is one expected (ECU, DID) value.
type Record struct {
	ECU      string
	DID      int
	Expected Value
}

// Canonical returns the canonical expected string.
func (r Record) Canonical() string { return r.Expected.Canonical() }

// Dataset is the ordered list of records of a fixture file.
type Dataset []Record

// Mapping groups canonical expected values by ECU and DID.
type Mapping map[string]map[int]string

// Load reads and parses the fixture at path.
func Load(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer func() { _ = f.Close() }()
	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes a fixture, keeping the file order of ECUs and DIDs.
func Parse(r io.Reader) (Dataset, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{', "top level"); err != nil {
		return nil, err
	}
	var ds Dataset
	for dec.More() {
		ecu, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if err := expectDelim(dec, '{', "ecu "+ecu); err != nil {
			return nil, err
		}
		for dec.More() {
			key, err := readKey(dec)
			if err != nil {
				return nil, err
			}
			did, err := strconv.ParseUint(key, 10, 31)
			if err != nil {
				return nil, fmt.Errorf("%w: ecu %s: did key %q is not a non-negative integer", ErrMalformedFixture, ecu, key)
			}
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, fmt.Errorf("%w: ecu %s did %d: %v", ErrMalformedFixture, ecu, did, err)
			}
			v, err := decodeValue(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: ecu %s did %d: %v", ErrMalformedFixture, ecu, did, err)
			}
			ds = append(ds, Record{ECU: ecu, DID: int(did), Expected: v})
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFixture, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFixture, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after top-level object", ErrMalformedFixture)
	}
	return ds, nil
}

func expectDelim(dec *json.Decoder, want json.Delim, where string) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFixture, where, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: %s: expected an object, got %v", ErrMalformedFixture, where, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFixture, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: unexpected token %v", ErrMalformedFixture, tok)
	}
	return key, nil
}

// AsMapping groups the records for lookup. Duplicate (ECU, DID) pairs resolve to
// the last one in file order.
func (ds Dataset) AsMapping() Mapping {
	m := make(Mapping)
	for _, r := range ds {
		dids, ok := m[r.ECU]
		if !ok {
			dids = make(map[int]string)
			m[r.ECU] = dids
		}
		dids[r.DID] = r.Canonical()
	}
	return m
}

// Lookup returns the last record value for (ecu, did).
func (ds Dataset) Lookup(ecu string, did int) (Value, bool) {
	for i := len(ds) - 1; i >= 0; i-- {
		if ds[i].ECU == ecu && ds[i].DID == did {
			return ds[i].Expected, true
		}
	}
	return Value{}, false
}

// ECUs lists the ECU addresses in file order without duplicates.
func (ds Dataset) ECUs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range ds {
		if _, ok := seen[r.ECU]; ok {
			continue
		}
		seen[r.ECU] = struct{}{}
		out = append(out, r.ECU)
	}
	return out
}

// Filter keeps the records of ecu.
func (ds Dataset) Filter(ecu string) Dataset {
	var out Dataset
	for _, r := range ds {
		if r.ECU == ecu {
			out = append(out, r)
		}
	}
	return out
}
