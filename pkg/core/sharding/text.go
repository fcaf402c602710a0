// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding

import (
	"strconv"
	"strings"

	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/gomlx/hlosharding/pkg/support/ndarray"
	"github.com/pkg/errors"
)

// String returns the canonical text form of the sharding, always enclosed in curly braces. Examples:
//
//   - "{replicated}"
//   - "{maximal device=3}", "{maximal device=host}", "{maximal device=unassigned}"
//   - "{f32[2,2] devices=[2,1]0,1}": tile shape, tile assignment dimensions and devices in row-major order.
//   - "{{replicated},{maximal device=0}}" for tuples.
//
// It can be parsed back with Parse.
func (s Sharding) String() string {
	var sb strings.Builder
	s.writeText(&sb)
	return sb.String()
}

func (s Sharding) writeText(sb *strings.Builder) {
	switch s.kind {
	case KindReplicated:
		sb.WriteString("{replicated}")
	case KindTileMaximal:
		sb.WriteString("{maximal device=")
		sb.WriteString(s.device.String())
		sb.WriteByte('}')
	case KindTiled:
		sb.WriteByte('{')
		sb.WriteString(s.tileShape.HumanString())
		sb.WriteString(" devices=[")
		for i, dim := range s.tileAssignment.Dims() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(dim))
		}
		sb.WriteByte(']')
		for i, device := range s.tileAssignment.Flat() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(device))
		}
		sb.WriteByte('}')
	case KindTuple:
		sb.WriteByte('{')
		for i, element := range s.elements {
			if i > 0 {
				sb.WriteByte(',')
			}
			element.writeText(sb)
		}
		sb.WriteByte('}')
	}
}

// MarshalText implements encoding.TextMarshaler, using the canonical text form.
func (s Sharding) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, see Parse.
func (s *Sharding) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Parse the canonical text form of a sharding, as generated by Sharding.String.
func Parse(text string) (Sharding, error) {
	p := &textParser{text: text}
	s, err := p.parseSharding()
	if err != nil {
		return Sharding{}, err
	}
	if p.pos != len(p.text) {
		return Sharding{}, p.errorf("unexpected trailing text %q", p.text[p.pos:])
	}
	return s, nil
}

type textParser struct {
	text string
	pos  int
}

func (p *textParser) errorf(format string, args ...any) error {
	return errors.Wrapf(errors.Errorf(format, args...), "parsing sharding %q at position %d", p.text, p.pos)
}

func (p *textParser) consume(prefix string) bool {
	if strings.HasPrefix(p.text[p.pos:], prefix) {
		p.pos += len(prefix)
		return true
	}
	return false
}

// readUntil returns the text up to (and not including) the first of any of the given bytes.
func (p *textParser) readUntil(stops string) string {
	start := p.pos
	for p.pos < len(p.text) && !strings.ContainsRune(stops, rune(p.text[p.pos])) {
		p.pos++
	}
	return p.text[start:p.pos]
}

func (p *textParser) parseSharding() (Sharding, error) {
	if !p.consume("{") {
		return Sharding{}, p.errorf("expected '{'")
	}
	switch {
	case p.consume("replicated}"):
		return Replicate(), nil

	case p.consume("maximal device="):
		deviceText := p.readUntil("}")
		if !p.consume("}") {
			return Sharding{}, p.errorf("missing '}' closing maximal sharding")
		}
		device, err := ParseDevice(deviceText)
		if err != nil {
			return Sharding{}, p.errorf("%v", err)
		}
		return AssignDevice(device), nil

	case strings.HasPrefix(p.text[p.pos:], "{"):
		var elements []Sharding
		for {
			element, err := p.parseSharding()
			if err != nil {
				return Sharding{}, err
			}
			if element.IsTuple() {
				return Sharding{}, p.errorf("nested tuple shardings are not valid, tuple elements must be leaf shardings")
			}
			elements = append(elements, element)
			if p.consume("}") {
				return newTuple(elements), nil
			}
			if !p.consume(",") {
				return Sharding{}, p.errorf("expected ',' or '}' in tuple sharding")
			}
		}
	}
	return p.parseTiled()
}

func (p *textParser) parseTiled() (Sharding, error) {
	shapeEnd := strings.Index(p.text[p.pos:], " devices=[")
	if shapeEnd < 0 {
		return Sharding{}, p.errorf("expected \"replicated\", \"maximal device=\", a tuple or a tiled sharding")
	}
	tileShape, err := shapes.ParseHumanString(p.text[p.pos : p.pos+shapeEnd])
	if err != nil {
		return Sharding{}, p.errorf("invalid tile shape: %v", err)
	}
	if tileShape.IsTuple() {
		return Sharding{}, p.errorf("tile shape %s cannot be a tuple", tileShape)
	}
	p.pos += shapeEnd + len(" devices=[")
	dims, err := p.parseInts(p.readUntil("]"))
	if err != nil {
		return Sharding{}, err
	}
	if !p.consume("]") {
		return Sharding{}, p.errorf("missing ']' closing tile assignment dimensions")
	}
	devices, err := p.parseInts(p.readUntil("}"))
	if err != nil {
		return Sharding{}, err
	}
	if !p.consume("}") {
		return Sharding{}, p.errorf("missing '}' closing tiled sharding")
	}
	tileAssignment, err := ndarray.FromFlat(dims, devices)
	if err != nil {
		return Sharding{}, p.errorf("invalid tile assignment: %v", err)
	}
	return Sharding{kind: KindTiled, tileShape: tileShape, tileAssignment: tileAssignment}, nil
}

func (p *textParser) parseInts(text string) ([]int, error) {
	if text == "" {
		return nil, nil
	}
	parts := strings.Split(text, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 {
			return nil, p.errorf("invalid non-negative integer %q", part)
		}
		values = append(values, v)
	}
	return values, nil
}
