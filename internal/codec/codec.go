// Package codec converts packages to and from their wire representation.
//
// The wire format is a JSON object with the keys
//
//	dest, from, type, slices, sliceNum, packageID, timestamp
//
// followed by exactly one payload key: "subs" for node sync packages and
// "msg" for everything else. All integers are unsigned. A receiver groups
// slices by packageID, orders them by sliceNum and concatenates the payloads
// once the slice with sliceNum == slices has arrived.
//
// String payloads are written byte for byte. Only '"', '\\' and control
// characters are escaped, so a fragment that ends inside a multi-byte UTF-8
// sequence survives the trip and concatenation restores the message.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/bft-labs/meshlink/internal/domain"
)

// wireHeader holds the integer keys of a package. Field order is the wire
// order.
type wireHeader struct {
	Dest      uint32 `json:"dest"`
	From      uint32 `json:"from"`
	Type      uint8  `json:"type"`
	Slices    uint16 `json:"slices"`
	SliceNum  uint16 `json:"sliceNum"`
	PackageID uint32 `json:"packageID"`
	Timestamp uint32 `json:"timestamp"`
}

// wirePackage is the decoded JSON layout of a package.
type wirePackage struct {
	wireHeader
	Subs json.RawMessage `json:"subs,omitempty"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// Encode serializes p to its wire representation.
//
// Node sync payloads of a single-slice transfer are embedded as a JSON list,
// and a single-slice time sync payload that holds a JSON object is embedded
// as that object. Every other payload, including every fragment of a sliced
// transfer, is embedded as a JSON string.
func Encode(p domain.Package) ([]byte, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownPackageType, uint8(p.Type))
	}
	if p.SliceNum > p.Slices {
		return nil, fmt.Errorf("codec: slice %d beyond last slice %d", p.SliceNum, p.Slices)
	}

	body, err := payloadValue(p)
	if err != nil {
		return nil, err
	}

	head, err := json.MarshalNoEscape(wireHeader{
		Dest:      p.Dest,
		From:      p.From,
		Type:      uint8(p.Type),
		Slices:    p.Slices,
		SliceNum:  p.SliceNum,
		PackageID: p.PackageID,
		Timestamp: p.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal package: %w", err)
	}

	key := "msg"
	if p.Type.IsNodeSync() {
		key = "subs"
	}

	// The payload is appended after the header so that string fragments
	// keep their raw bytes.
	out := make([]byte, 0, len(head)+len(key)+len(body)+4)
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',', '"')
	out = append(out, key...)
	out = append(out, '"', ':')
	out = append(out, body...)
	out = append(out, '}')
	return out, nil
}

func payloadValue(p domain.Package) (json.RawMessage, error) {
	whole := p.Slices == 0

	switch {
	case p.Type.IsNodeSync() && whole:
		subs, err := NormalizeSubs(p.Payload)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(subs), nil
	case p.Type == domain.TypeTimeSync && whole:
		if obj, ok := compactObject(p.Payload); ok {
			return obj, nil
		}
	}

	return appendString(make([]byte, 0, len(p.Payload)+2), p.Payload), nil
}

const hexDigits = "0123456789abcdef"

// appendString appends s to dst as a JSON string. Bytes are copied as they
// are; invalid UTF-8 is not replaced and no HTML escaping takes place.
func appendString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		dst = append(dst, s[start:i]...)
		switch c {
		case '"', '\\':
			dst = append(dst, '\\', c)
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		default:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		}
		start = i + 1
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}

var errBadString = errors.New("malformed string")

// unquote reverses appendString. Escapes are resolved; every other byte,
// including parts of a split UTF-8 sequence, is returned unchanged.
func unquote(raw []byte) (string, error) {
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return "", errBadString
	}
	raw = raw[1 : len(raw)-1]
	if bytes.IndexByte(raw, '\\') < 0 {
		return string(raw), nil
	}

	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(raw) {
			return "", errBadString
		}
		switch raw[i] {
		case '"', '\\', '/':
			out = append(out, raw[i])
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'u':
			r, ok := hex4(raw[i+1:])
			if !ok {
				return "", errBadString
			}
			i += 4
			if utf16.IsSurrogate(r) {
				r2, ok := lowSurrogate(raw[i+1:])
				if dec := utf16.DecodeRune(r, r2); ok && dec != utf8.RuneError {
					r = dec
					i += 6
				} else {
					r = utf8.RuneError
				}
			}
			out = utf8.AppendRune(out, r)
		default:
			return "", errBadString
		}
	}
	return string(out), nil
}

// lowSurrogate reads a \uXXXX escape at the start of b.
func lowSurrogate(b []byte) (rune, bool) {
	if len(b) < 6 || b[0] != '\\' || b[1] != 'u' {
		return 0, false
	}
	return hex4(b[2:])
}

func hex4(b []byte) (rune, bool) {
	if len(b) < 4 {
		return 0, false
	}
	v, err := strconv.ParseUint(string(b[:4]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// NormalizeSubs parses payload as a JSON list and returns its compact text.
// Slicing operates on this canonical form.
func NormalizeSubs(payload string) (string, error) {
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		return "", fmt.Errorf("%w: subs is not a list: %v", domain.ErrMalformedPayload, err)
	}
	if list == nil {
		return "", fmt.Errorf("%w: subs is null", domain.ErrMalformedPayload)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(payload)); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return buf.String(), nil
}

func compactObject(payload string) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace([]byte(payload))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}

// Decode parses a wire package. JSON string payloads are unquoted with their
// raw bytes kept; list and object payloads are returned as their JSON text.
func Decode(wire []byte) (domain.Package, error) {
	var w wirePackage
	if err := json.Unmarshal(wire, &w); err != nil {
		return domain.Package{}, fmt.Errorf("unmarshal package: %w", err)
	}

	t, err := domain.ParsePackageType(w.Type)
	if err != nil {
		return domain.Package{}, err
	}
	if w.SliceNum > w.Slices {
		return domain.Package{}, fmt.Errorf("codec: slice %d beyond last slice %d", w.SliceNum, w.Slices)
	}

	raw, key := w.Msg, "msg"
	if t.IsNodeSync() {
		raw, key = w.Subs, "subs"
	}
	if len(raw) == 0 {
		return domain.Package{}, fmt.Errorf("codec: missing %q for %s package", key, t)
	}

	payload := string(raw)
	if raw[0] == '"' {
		if payload, err = unquote(raw); err != nil {
			return domain.Package{}, fmt.Errorf("unmarshal %s: %w", key, err)
		}
	}

	return domain.Package{
		Dest:      w.Dest,
		From:      w.From,
		Type:      t,
		Slices:    w.Slices,
		SliceNum:  w.SliceNum,
		PackageID: w.PackageID,
		Timestamp: w.Timestamp,
		Payload:   payload,
	}, nil
}
