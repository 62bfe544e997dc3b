package addressing

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicFormat is the topic template handed to the bridge with -mfstr.
const DefaultTopicFormat = "{ecuAddr:03X}_{didNumber:04d}"

const (
	fieldECU = "ecuAddr"
	fieldDID = "didNumber"
)

type segment struct {
	literal string
	field   string
	zero    bool
	width   int
	verb    byte
}

// TopicFormat is a parsed topic template. Placeholders follow the
// "{name:verb}" form the tool accepts, where verb is an optional zero flag, a
// width and one of d, x or X.
type TopicFormat struct {
	template string
	segments []segment
}

// ParseTopicFormat parses tmpl. "{{" and "}}" are literal braces.
func ParseTopicFormat(tmpl string) (TopicFormat, error) {
	f := TopicFormat{template: tmpl}
	var lit strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return TopicFormat{}, fmt.Errorf("topic format %q: unclosed placeholder", tmpl)
			}
			seg, err := parsePlaceholder(tmpl[i+1 : i+end])
			if err != nil {
				return TopicFormat{}, fmt.Errorf("topic format %q: %w", tmpl, err)
			}
			if lit.Len() > 0 {
				f.segments = append(f.segments, segment{literal: lit.String()})
				lit.Reset()
			}
			f.segments = append(f.segments, seg)
			i += end
		case c == '}':
			return TopicFormat{}, fmt.Errorf("topic format %q: unmatched '}'", tmpl)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		f.segments = append(f.segments, segment{literal: lit.String()})
	}
	return f, nil
}

// MustParseTopicFormat is ParseTopicFormat for constant templates.
func MustParseTopicFormat(tmpl string) TopicFormat {
	f, err := ParseTopicFormat(tmpl)
	if err != nil {
		panic(err)
	}
	return f
}

func parsePlaceholder(body string) (segment, error) {
	name, verb, _ := strings.Cut(body, ":")
	if name != fieldECU && name != fieldDID {
		return segment{}, fmt.Errorf("unsupported placeholder %q", name)
	}
	seg := segment{field: name, verb: 'd'}
	if verb == "" {
		return seg, nil
	}
	if last := verb[len(verb)-1]; last == 'd' || last == 'x' || last == 'X' {
		seg.verb = last
		verb = verb[:len(verb)-1]
	}
	if strings.HasPrefix(verb, "0") {
		seg.zero = true
		verb = verb[1:]
	}
	if verb != "" {
		w, err := strconv.Atoi(verb)
		if err != nil || w < 0 {
			return segment{}, fmt.Errorf("invalid format verb %q for %s", body, name)
		}
		seg.width = w
	}
	return seg, nil
}

// String returns the template text.
func (f TopicFormat) String() string { return f.template }

// Topic renders the topic of (ecu, did) followed by the "/"-joined subPath.
// The base topic is not included, see JoinTopic.
func (f TopicFormat) Topic(ecu string, did int, subPath ...string) (string, error) {
	ecuNum, err := ECUNumber(ecu)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, s := range f.segments {
		switch s.field {
		case "":
			b.WriteString(s.literal)
		case fieldECU:
			b.WriteString(s.render(ecuNum))
		case fieldDID:
			b.WriteString(s.render(uint64(did)))
		}
	}
	for _, p := range subPath {
		b.WriteByte('/')
		b.WriteString(p)
	}
	return b.String(), nil
}

func (s segment) render(n uint64) string {
	var digits string
	switch s.verb {
	case 'x':
		digits = strconv.FormatUint(n, 16)
	case 'X':
		digits = strings.ToUpper(strconv.FormatUint(n, 16))
	default:
		digits = strconv.FormatUint(n, 10)
	}
	if pad := s.width - len(digits); pad > 0 {
		fill := " "
		if s.zero {
			fill = "0"
		}
		digits = strings.Repeat(fill, pad) + digits
	}
	return digits
}

// AddressTopic renders the topic of a, sub path included.
func (f TopicFormat) AddressTopic(a Address) (string, error) {
	return f.Topic(a.ECU, a.DID, a.SubPath...)
}

// SubDIDTopic returns the topic a sub-DID read ("<did>.<field>") is published
// on. The bridge publishes such reads on the parent DID topic, not on a topic
// derived from the field; subPath is ignored.
func (f TopicFormat) SubDIDTopic(ecu string, did int, subPath ...string) (string, error) {
	return f.Topic(ecu, did)
}

// JoinTopic prefixes topic levels with base, skipping empty levels.
func JoinTopic(base string, levels ...string) string {
	parts := make([]string, 0, len(levels)+1)
	for _, l := range append([]string{base}, levels...) {
		l = strings.Trim(l, "/")
		if l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "/")
}
