package cfg

import "strings"

// parser reads the engine's INI dialect:
//
//	# comment
//	global_key = value
//	[Section Name]
//	key = "quoted # value with \"escapes\"\n"   # trailing comment
//
// Lines that cannot be parsed are skipped. A quoted value may span lines.
type parser struct {
	src []byte
	pos int
}

// sanitize drops control characters other than tab and newline, so CRLF input
// reads like LF input.
func sanitize(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for _, c := range raw {
		if (c < ' ' && c != '\n' && c != '\t') || c == 0x7f {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (p *parser) next() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	c := p.src[p.pos]
	p.pos++
	return c, true
}

func (p *parser) skip(set string) {
	for p.pos < len(p.src) && strings.IndexByte(set, p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *parser) skipLine() {
	for {
		c, ok := p.next()
		if !ok || c == '\n' {
			return
		}
	}
}

func (p *parser) run(s *Store) {
	sect := ""
	for {
		p.skip(" \t\n")
		c, ok := p.next()
		if !ok {
			return
		}
		switch c {
		case '#':
			p.skipLine()
		case '[':
			if name, ok := p.readSection(); ok {
				sect = name
			}
		default:
			p.pos--
			if key, value, ok := p.readVar(); ok {
				s.set(sect, key, value, true)
			}
		}
	}
}

func (p *parser) readSection() (string, bool) {
	p.skip(" \t")
	name, term, eof := p.scan(func(c byte) bool { return c == ']' }, false)
	if eof || term != ']' {
		return "", false
	}
	p.skip(" \t")
	c, ok := p.next()
	if !ok || c == '\n' {
		return name, true
	}
	p.skipLine()
	// anything but a comment after the closing bracket voids the header
	return name, c == '#'
}

func (p *parser) readVar() (string, string, bool) {
	key, term, eof := p.scan(func(c byte) bool { return c == '=' }, false)
	if eof || term != '=' {
		return "", "", false
	}
	p.skip(" \t")
	value, term, _ := p.scan(func(c byte) bool { return c == '#' }, true)
	if term == '#' {
		p.skipLine()
	}
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// scan reads up to an unquoted stop byte or newline and returns the text with
// quotes removed and trailing unquoted blanks trimmed. With multiline set, a
// quoted string may contain newlines.
func (p *parser) scan(stop func(byte) bool, multiline bool) (string, byte, bool) {
	buf := make([]byte, 0, 32)
	keep := 0
	inStr := false
	for {
		c, ok := p.next()
		if !ok {
			return string(buf[:keep]), 0, true
		}
		if inStr {
			switch {
			case c == '\\':
				n, ok := p.next()
				if !ok {
					buf = append(buf, '\\')
					return string(buf), 0, true
				}
				if n == '\n' {
					if !multiline {
						return string(buf[:keep]), '\n', false
					}
					buf = append(buf, '\n')
				} else {
					buf = append(buf, p.escape(n)...)
				}
				keep = len(buf)
			case c == '"':
				inStr = false
			case c == '\n' && !multiline:
				return string(buf[:keep]), '\n', false
			default:
				buf = append(buf, c)
				keep = len(buf)
			}
			continue
		}
		if c == '\n' || stop(c) {
			return string(buf[:keep]), c, false
		}
		if c == '"' {
			inStr = true
			keep = len(buf)
			continue
		}
		buf = append(buf, c)
		if c != ' ' && c != '\t' {
			keep = len(buf)
		}
	}
}

func (p *parser) escape(c byte) []byte {
	switch c {
	case 'a':
		return []byte{'\a'}
	case 'b':
		return []byte{'\b'}
	case 'e':
		return []byte{0x1b}
	case 'f':
		return []byte{'\f'}
	case 'n':
		return []byte{'\n'}
	case 'r':
		return []byte{'\r'}
	case 't':
		return []byte{'\t'}
	case 'v':
		return []byte{'\v'}
	case '"', '\\':
		return []byte{c}
	case 'x':
		start := p.pos
		if p.pos+2 <= len(p.src) {
			h1, h2 := hexval(p.src[p.pos]), hexval(p.src[p.pos+1])
			if h1 >= 0 && h2 >= 0 {
				p.pos += 2
				return []byte{byte(h1<<4 | h2)}
			}
		}
		p.pos = start
		return []byte{'\\', 'x'}
	}
	return []byte{'\\', c}
}

func hexval(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
