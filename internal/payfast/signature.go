// Package payfast builds signed onsite payment requests and creates payment
// sessions with the processor.
package payfast

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
)

type Field struct {
	Key   string
	Value string
}

// Fields keeps insertion order; the processor verifies the signature over the
// fields in exactly the order they were sent.
type Fields []Field

func (f Fields) Add(key, value string) Fields {
	return append(f, Field{Key: key, Value: value})
}

func (f Fields) Get(key string) (string, bool) {
	for _, fld := range f {
		if fld.Key == key {
			return fld.Value, true
		}
	}
	return "", false
}

var componentUnescaper = strings.NewReplacer(
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// Encode matches encodeURIComponent with %20 rewritten to '+'.
func Encode(v string) string {
	return componentUnescaper.Replace(url.QueryEscape(v))
}

func join(fields Fields, trim bool) string {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte('&')
		}
		v := f.Value
		if trim {
			v = strings.TrimSpace(v)
		}
		sb.WriteString(f.Key)
		sb.WriteByte('=')
		sb.WriteString(Encode(v))
	}
	return sb.String()
}

// Signature is the md5 hex digest of the encoded fields followed by the
// encoded passphrase.
func Signature(fields Fields, passphrase string) string {
	s := join(fields, false) + "&passphrase=" + Encode(passphrase)
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Sign returns a copy of fields with the signature appended.
func Sign(fields Fields, passphrase string) Fields {
	out := make(Fields, 0, len(fields)+1)
	out = append(out, fields...)
	return out.Add("signature", Signature(fields, passphrase))
}

// ParamString is the form body posted to the processor. Values are trimmed.
func ParamString(fields Fields) string {
	return join(fields, true)
}
