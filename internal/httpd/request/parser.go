// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package request

// Size caps for the parser's bounded allocations. Exceeding any of them is
// an ErrInternal (a bounded allocation was exceeded), never ErrBad.
const (
	URISizeMax     = 1024
	URLVarNameMax  = 128
	URLVarValueMax = 1024
	headerValueMax = 8192
)

// byteSource is the two primitives the parser is allowed to suspend on.
// *transport.Transport satisfies this; tests use a byte-slice stub.
type byteSource interface {
	Peek() (byte, error)
	Next() (byte, error)
}

// Parse reads one request from src and returns either a fully formed
// Request or a classified ParseError. On any error path, nothing the
// parser allocated leaks beyond the returned value: Go's GC makes this
// automatic, but the state machine still returns at the first invalid byte
// rather than continuing to accumulate into buffers that will be discarded.
func Parse(src byteSource) (*Request, *ParseError) {
	p := &parser{src: src}
	return p.parse()
}

type parser struct {
	src byteSource
}

func (p *parser) next() (byte, *ParseError) {
	b, err := p.src.Next()
	if err != nil {
		return 0, ioErr(err)
	}
	return b, nil
}

func (p *parser) peek() (byte, *ParseError) {
	b, err := p.src.Peek()
	if err != nil {
		return 0, ioErr(err)
	}
	return b, nil
}

func (p *parser) expect(want byte) *ParseError {
	b, perr := p.next()
	if perr != nil {
		return perr
	}
	if b != want {
		return badErr("expected byte not found")
	}
	return nil
}

// expectLiteral consumes len(lit) bytes and requires each to match lit.
func (p *parser) expectLiteral(lit string) *ParseError {
	for i := 0; i < len(lit); i++ {
		if err := p.expect(lit[i]); err != nil {
			return err
		}
	}
	return nil
}

func isHorizontalWhitespace(b byte) bool { return b == ' ' || b == '\t' }

func (p *parser) parse() (*Request, *ParseError) {
	req := &Request{}

	method, err := p.readMethod()
	if err != nil {
		return nil, err
	}
	req.Method = method

	// Post-method: a peek-only check that the token ended at whitespace.
	b, err := p.peek()
	if err != nil {
		return nil, err
	}
	if !isHorizontalWhitespace(b) {
		return nil, badErr("method not followed by whitespace")
	}

	if err := p.skipPostMethodWhitespace(); err != nil {
		return nil, err
	}

	uri, err := p.readURI()
	if err != nil {
		return nil, err
	}
	req.URI = rewriteTrailingSlash(uri)

	b, err = p.peek()
	if err != nil {
		return nil, err
	}
	if b == '?' {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		query, err := p.readQuery()
		if err != nil {
			return nil, err
		}
		req.Query = query
		b, err = p.peek()
		if err != nil {
			return nil, err
		}
	}

	if b == '#' {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		frag, err := p.readFragment()
		if err != nil {
			return nil, err
		}
		req.Fragment = frag
	}

	simple, err := p.skipWhitespaceAndCheckSimple()
	if err != nil {
		return nil, err
	}
	if simple {
		if req.Method != MethodGET {
			return nil, badErr("simple request method must be GET")
		}
		req.Kind = KindSimple
		req.VersionMajor, req.VersionMinor = 0, 9
		return req, nil
	}

	major, minor, err := p.readVersion()
	if err != nil {
		return nil, err
	}
	req.Kind = KindFull
	req.VersionMajor = major
	req.VersionMinor = minor

	if err := p.expectLiteral("\r\n"); err != nil {
		return nil, err
	}

	headers, err := p.readHeaders()
	if err != nil {
		return nil, err
	}
	req.Headers = headers

	return req, nil
}

// readMethod switches on the first byte, then exactly matches the
// remaining letters of one of the eight tokens.
func (p *parser) readMethod() (Method, *ParseError) {
	b0, err := p.next()
	if err != nil {
		return MethodUnknown, err
	}
	switch b0 {
	case 'C':
		if err := p.expectLiteral("ONNECT"); err != nil {
			return MethodUnknown, err
		}
		return MethodCONNECT, nil
	case 'D':
		if err := p.expectLiteral("ELETE"); err != nil {
			return MethodUnknown, err
		}
		return MethodDELETE, nil
	case 'G':
		if err := p.expectLiteral("ET"); err != nil {
			return MethodUnknown, err
		}
		return MethodGET, nil
	case 'H':
		if err := p.expectLiteral("EAD"); err != nil {
			return MethodUnknown, err
		}
		return MethodHEAD, nil
	case 'O':
		if err := p.expectLiteral("PTIONS"); err != nil {
			return MethodUnknown, err
		}
		return MethodOPTIONS, nil
	case 'P':
		b1, err := p.next()
		if err != nil {
			return MethodUnknown, err
		}
		switch b1 {
		case 'O':
			if err := p.expectLiteral("ST"); err != nil {
				return MethodUnknown, err
			}
			return MethodPOST, nil
		case 'U':
			if err := p.expectLiteral("T"); err != nil {
				return MethodUnknown, err
			}
			return MethodPUT, nil
		default:
			return MethodUnknown, badErr("unrecognized method")
		}
	case 'T':
		if err := p.expectLiteral("RACE"); err != nil {
			return MethodUnknown, err
		}
		return MethodTRACE, nil
	default:
		return MethodUnknown, badErr("unrecognized method")
	}
}

// skipPostMethodWhitespace consumes one required space, then skips further
// horizontal whitespace; a bare '\n' before the URI is malformed.
func (p *parser) skipPostMethodWhitespace() *ParseError {
	if err := p.expect(' '); err != nil {
		return err
	}
	for {
		b, err := p.peek()
		if err != nil {
			return err
		}
		if b == '\n' {
			return badErr("unexpected newline before URI")
		}
		if !isHorizontalWhitespace(b) {
			return nil
		}
		if _, err := p.next(); err != nil {
			return err
		}
	}
}

// readURI accumulates the request path, decoding %HH escapes as
// (nibble(H1)<<4)|nibble(H2). Terminators: whitespace, CR, LF, '?', '#'.
func (p *parser) readURI() (string, *ParseError) {
	buf := make([]byte, 0, 64)
	for {
		b, err := p.peek()
		if err != nil {
			return "", err
		}
		if isHorizontalWhitespace(b) || b == '\r' || b == '\n' || b == '?' || b == '#' {
			break
		}
		if _, err := p.next(); err != nil {
			return "", err
		}
		if b == '%' {
			decoded, err := p.readPercentEscape()
			if err != nil {
				return "", err
			}
			b = decoded
		}
		if len(buf) >= URISizeMax {
			return "", internalErr("uri too long")
		}
		buf = append(buf, b)
	}
	if len(buf) == 0 {
		return "", badErr("empty uri")
	}
	return string(buf), nil
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// readPercentEscape consumes exactly two hex digits after an already-
// consumed '%' and returns the decoded byte (nibble(H1)<<4 | nibble(H2)).
func (p *parser) readPercentEscape() (byte, *ParseError) {
	h1, err := p.next()
	if err != nil {
		return 0, err
	}
	h2, err := p.next()
	if err != nil {
		return 0, err
	}
	n1, ok1 := nibble(h1)
	n2, ok2 := nibble(h2)
	if !ok1 || !ok2 {
		return 0, badErr("invalid percent-escape")
	}
	return (n1 << 4) | n2, nil
}

// rewriteTrailingSlash appends "index.html" to a URI ending in '/'.
func rewriteTrailingSlash(uri string) string {
	if len(uri) > 0 && uri[len(uri)-1] == '/' {
		return uri + "index.html"
	}
	return uri
}

// readQuery parses var "=" val ( "&" var "=" val )*.
func (p *parser) readQuery() ([]QueryPair, *ParseError) {
	var pairs []QueryPair
	for {
		name, err := p.readQueryToken('=', URLVarNameMax, true)
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		value, more, err := p.readQueryValue()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, QueryPair{Name: name, Value: value})
		if !more {
			return pairs, nil
		}
	}
}

// readQueryToken reads a query variable name up to (not including) stopOn,
// capped at max bytes. Whitespace inside the name is BAD when rejectSpace.
func (p *parser) readQueryToken(stopOn byte, max int, rejectSpace bool) (string, *ParseError) {
	buf := make([]byte, 0, 32)
	for {
		b, err := p.peek()
		if err != nil {
			return "", err
		}
		if b == stopOn {
			break
		}
		if rejectSpace && isHorizontalWhitespace(b) {
			return "", badErr("unexpected whitespace in query variable name")
		}
		if _, err := p.next(); err != nil {
			return "", err
		}
		if len(buf) >= max {
			return "", internalErr("query variable name too long")
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

// readQueryValue reads a query value terminated by '&', '\r', '\n', '#', or
// whitespace, capped at URLVarValueMax. It reports whether another
// var=val pair follows (terminator was '&').
func (p *parser) readQueryValue() (string, bool, *ParseError) {
	buf := make([]byte, 0, 32)
	for {
		b, err := p.peek()
		if err != nil {
			return "", false, err
		}
		if b == '&' {
			if _, err := p.next(); err != nil {
				return "", false, err
			}
			return string(buf), true, nil
		}
		if b == '\r' || isHorizontalWhitespace(b) || b == '\n' || b == '#' {
			return string(buf), false, nil
		}
		if _, err := p.next(); err != nil {
			return "", false, err
		}
		if len(buf) >= URLVarValueMax {
			return "", false, internalErr("query variable value too long")
		}
		buf = append(buf, b)
	}
}

// readFragment reads the '#' component, percent-decoded like the URI, until
// whitespace or the end of the request line.
func (p *parser) readFragment() (string, *ParseError) {
	buf := make([]byte, 0, 32)
	for {
		b, err := p.peek()
		if err != nil {
			return "", err
		}
		if isHorizontalWhitespace(b) || b == '\r' || b == '\n' {
			break
		}
		if _, err := p.next(); err != nil {
			return "", err
		}
		if b == '%' {
			decoded, err := p.readPercentEscape()
			if err != nil {
				return "", err
			}
			b = decoded
		}
		if len(buf) >= URISizeMax {
			return "", internalErr("fragment too long")
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

// skipWhitespaceAndCheckSimple skips horizontal whitespace after the
// request target and reports simple=true (having consumed the terminating
// line ending) when the request is HTTP/0.9-style: no version token follows.
func (p *parser) skipWhitespaceAndCheckSimple() (bool, *ParseError) {
	for {
		b, err := p.peek()
		if err != nil {
			return false, err
		}
		if !isHorizontalWhitespace(b) {
			break
		}
		if _, err := p.next(); err != nil {
			return false, err
		}
	}
	b, err := p.peek()
	if err != nil {
		return false, err
	}
	switch b {
	case '\n':
		if _, err := p.next(); err != nil {
			return false, err
		}
		return true, nil
	case '\r':
		if _, err := p.next(); err != nil {
			return false, err
		}
		if err := p.expect('\n'); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// readVersion parses "HTTP/" major "." minor.
func (p *parser) readVersion() (int, int, *ParseError) {
	if err := p.expectLiteral("HTTP/"); err != nil {
		return 0, 0, err
	}
	major, err := p.readDigits()
	if err != nil {
		return 0, 0, err
	}
	if err := p.expect('.'); err != nil {
		return 0, 0, err
	}
	minor, err := p.readDigits()
	if err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}

func (p *parser) readDigits() (int, *ParseError) {
	n := 0
	count := 0
	for {
		b, err := p.peek()
		if err != nil {
			return 0, err
		}
		if b < '0' || b > '9' {
			break
		}
		if _, err := p.next(); err != nil {
			return 0, err
		}
		n = n*10 + int(b-'0')
		count++
	}
	if count == 0 {
		return 0, badErr("expected at least one digit")
	}
	return n, nil
}

// readHeaders reads name ":" SP value CRLF lines until a bare CRLF.
func (p *parser) readHeaders() ([]Header, *ParseError) {
	var headers []Header
	for {
		b, err := p.peek()
		if err != nil {
			return nil, err
		}
		if b == '\r' {
			if _, err := p.next(); err != nil {
				return nil, err
			}
			if err := p.expect('\n'); err != nil {
				return nil, err
			}
			return headers, nil
		}
		name, err := p.readQueryToken(':', URLVarNameMax, false)
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		if err := p.expect(' '); err != nil {
			return nil, err
		}
		value, err := p.readHeaderValue()
		if err != nil {
			return nil, err
		}
		if err := p.expectLiteral("\r\n"); err != nil {
			return nil, err
		}
		headers = append(headers, Header{Name: name, Value: value})
	}
}

func (p *parser) readHeaderValue() (string, *ParseError) {
	buf := make([]byte, 0, 32)
	for {
		b, err := p.peek()
		if err != nil {
			return "", err
		}
		if b == '\r' {
			return string(buf), nil
		}
		if _, err := p.next(); err != nil {
			return "", err
		}
		if len(buf) >= headerValueMax {
			return "", internalErr("header value too long")
		}
		buf = append(buf, b)
	}
}
