package loader

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/nconklindev/mergeline/internal/ingesterr"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DefaultEncodings is the cascade order used when none is configured.
var DefaultEncodings = []string{"utf-8", "utf-8-sig", "windows-1252", "latin1"}

var errUndecodable = errors.New("undecodable byte sequence")

// Decoder is one named strategy of the encoding cascade.
type Decoder struct {
	Name   string
	Decode func([]byte) (string, error)
}

var decoders = map[string]Decoder{
	"utf-8":        {Name: "utf-8", Decode: decodeUTF8},
	"utf-8-sig":    {Name: "utf-8-sig", Decode: decodeUTF8BOM},
	"windows-1252": {Name: "windows-1252", Decode: decodeWindows1252},
	"latin1":       {Name: "latin1", Decode: decodeLatin1},
}

// aliases accepted in configuration
var encodingAliases = map[string]string{
	"utf8":       "utf-8",
	"utf8-sig":   "utf-8-sig",
	"utf-8-bom":  "utf-8-sig",
	"cp1252":     "windows-1252",
	"latin-1":    "latin1",
	"iso-8859-1": "latin1",
}

// KnownEncoding reports whether name resolves to a cascade strategy.
func KnownEncoding(name string) bool {
	_, ok := decoders[canonicalEncoding(name)]
	return ok
}

func canonicalEncoding(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := encodingAliases[name]; ok {
		return alias
	}
	return name
}

// EncodingAttempt is the outcome of one cascade step.
type EncodingAttempt struct {
	Encoding string
	Err      error
}

func (a EncodingAttempt) OK() bool { return a.Err == nil }

// Cascade is an ordered list of decoders tried until one succeeds.
type Cascade struct {
	decoders []Decoder
	log      *zap.Logger
}

// NewCascade resolves names into decoders. Unknown names are an error.
func NewCascade(names []string, log *zap.Logger) (*Cascade, error) {
	if len(names) == 0 {
		names = DefaultEncodings
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cascade{log: log}
	for _, n := range names {
		d, ok := decoders[canonicalEncoding(n)]
		if !ok {
			return nil, fmt.Errorf("unknown encoding %q", n)
		}
		c.decoders = append(c.decoders, d)
	}
	return c, nil
}

// Names returns the cascade order.
func (c *Cascade) Names() []string {
	out := make([]string, len(c.decoders))
	for i, d := range c.decoders {
		out[i] = d.Name
	}
	return out
}

// Decode tries each decoder in order and returns the first successful text
// with the name of the encoding used. Every attempt is returned, including
// failures, whether or not a decoder succeeded.
func (c *Cascade) Decode(path string, data []byte) (string, string, []EncodingAttempt, error) {
	attempts := make([]EncodingAttempt, 0, len(c.decoders))
	for _, d := range c.decoders {
		text, err := d.Decode(data)
		attempts = append(attempts, EncodingAttempt{Encoding: d.Name, Err: err})
		if err != nil {
			c.log.Debug("encoding attempt failed",
				zap.String("path", path),
				zap.String("encoding", d.Name),
				zap.Error(err),
			)
			continue
		}
		c.log.Debug("encoding attempt succeeded",
			zap.String("path", path),
			zap.String("encoding", d.Name),
		)
		return text, d.Name, attempts, nil
	}
	return "", "", attempts, ingesterr.New(ingesterr.KindEncodingExhausted, path,
		"all encodings failed, tried %s", strings.Join(c.Names(), ", "))
}

func decodeUTF8(data []byte) (string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		return "", errors.New("byte order mark present")
	}
	if !utf8.Valid(data) {
		return "", errUndecodable
	}
	return string(data), nil
}

func decodeUTF8BOM(data []byte) (string, error) {
	if !bytes.HasPrefix(data, utf8BOM) {
		return "", errors.New("no byte order mark")
	}
	if !utf8.Valid(data[len(utf8BOM):]) {
		return "", errUndecodable
	}
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// windows1252Undefined are the code points the code page leaves unassigned.
var windows1252Undefined = [256]bool{0x81: true, 0x8D: true, 0x8F: true, 0x90: true, 0x9D: true}

func decodeWindows1252(data []byte) (string, error) {
	for i, b := range data {
		if windows1252Undefined[b] {
			return "", fmt.Errorf("%w: 0x%02X at offset %d", errUndecodable, b, i)
		}
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func decodeLatin1(data []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
