// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// shortNames are the compact XLA names for the dtypes, used by HumanString.
// Other dtypes use their lower-cased DType name, e.g. "f8e4m3fn" or "s4".
var shortNames = map[dtypes.DType]string{
	dtypes.Bool:       "pred",
	dtypes.Int8:       "s8",
	dtypes.Int16:      "s16",
	dtypes.Int32:      "s32",
	dtypes.Int64:      "s64",
	dtypes.Uint8:      "u8",
	dtypes.Uint16:     "u16",
	dtypes.Uint32:     "u32",
	dtypes.Uint64:     "u64",
	dtypes.Float16:    "f16",
	dtypes.BFloat16:   "bf16",
	dtypes.Float32:    "f32",
	dtypes.Float64:    "f64",
	dtypes.Complex64:  "c64",
	dtypes.Complex128: "c128",
}

// dtypeForShortName maps back the name used by HumanString of every valid dtype.
var dtypeForShortName = func() map[string]dtypes.DType {
	m := make(map[string]dtypes.DType, len(dtypes.DTypeValues()))
	for _, dtype := range dtypes.DTypeValues() {
		if dtype != dtypes.InvalidDType {
			m[shortName(dtype)] = dtype
		}
	}
	return m
}()

func shortName(dtype dtypes.DType) string {
	if name, found := shortNames[dtype]; found {
		return name
	}
	return strings.ToLower(dtype.String())
}

// HumanString returns the compact form of the shape, e.g. "f32[3,2]", "s32[]" or "(f32[2], pred[])".
//
// It can be parsed back with ParseHumanString.
func (s Shape) HumanString() string {
	var sb strings.Builder
	s.writeHuman(&sb)
	return sb.String()
}

func (s Shape) writeHuman(sb *strings.Builder) {
	if s.IsTuple() {
		sb.WriteByte('(')
		for i, element := range s.TupleShapes {
			if i > 0 {
				sb.WriteString(", ")
			}
			element.writeHuman(sb)
		}
		sb.WriteByte(')')
		return
	}
	sb.WriteString(shortName(s.DType))
	sb.WriteByte('[')
	for i, dim := range s.Dimensions {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(dim))
	}
	sb.WriteByte(']')
}

// ParseHumanString parses the form generated by Shape.HumanString.
func ParseHumanString(text string) (Shape, error) {
	p := &humanParser{text: text}
	s, err := p.parseShape()
	if err != nil {
		return Invalid(), err
	}
	p.skipSpaces()
	if p.pos != len(p.text) {
		return Invalid(), errors.Errorf("unexpected trailing text %q after shape in %q", p.text[p.pos:], text)
	}
	return s, nil
}

type humanParser struct {
	text string
	pos  int
}

func (p *humanParser) skipSpaces() {
	for p.pos < len(p.text) && p.text[p.pos] == ' ' {
		p.pos++
	}
}

func (p *humanParser) errorf(format string, args ...any) error {
	return errors.Wrapf(errors.Errorf(format, args...), "parsing shape %q at position %d", p.text, p.pos)
}

func (p *humanParser) parseShape() (Shape, error) {
	p.skipSpaces()
	if p.pos >= len(p.text) {
		return Invalid(), p.errorf("unexpected end of text")
	}
	if p.text[p.pos] == '(' {
		p.pos++
		elements := make([]Shape, 0)
		p.skipSpaces()
		if p.pos < len(p.text) && p.text[p.pos] == ')' {
			p.pos++
			return MakeTuple(elements...), nil
		}
		for {
			element, err := p.parseShape()
			if err != nil {
				return Invalid(), err
			}
			elements = append(elements, element)
			p.skipSpaces()
			if p.pos >= len(p.text) {
				return Invalid(), p.errorf("missing ')' closing tuple")
			}
			switch p.text[p.pos] {
			case ',':
				p.pos++
			case ')':
				p.pos++
				return MakeTuple(elements...), nil
			default:
				return Invalid(), p.errorf("unexpected %q in tuple", p.text[p.pos])
			}
		}
	}

	start := p.pos
	for p.pos < len(p.text) && p.text[p.pos] != '[' {
		p.pos++
	}
	if p.pos >= len(p.text) {
		return Invalid(), p.errorf("missing '[' after dtype")
	}
	name := p.text[start:p.pos]
	dtype, found := dtypeForShortName[name]
	if !found {
		return Invalid(), p.errorf("unknown dtype %q", name)
	}
	p.pos++ // Skip '['.
	end := strings.IndexByte(p.text[p.pos:], ']')
	if end < 0 {
		return Invalid(), p.errorf("missing ']' closing dimensions")
	}
	dimsText := p.text[p.pos : p.pos+end]
	p.pos += end + 1
	var dims []int
	if dimsText != "" {
		for _, part := range strings.Split(dimsText, ",") {
			dim, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || dim < 0 {
				return Invalid(), p.errorf("invalid dimension %q", part)
			}
			dims = append(dims, dim)
		}
	}
	return Make(dtype, dims...), nil
}
