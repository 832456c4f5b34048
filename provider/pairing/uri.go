package pairing

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const (
	uriVersion    = "2"
	relayProtocol = "irn"
)

// URI is the pairing URI a wallet scans: wc:<topic>@2?relay-protocol=irn&symKey=<hex>.
type URI struct {
	Topic         string
	SymKey        string
	RelayProtocol string
}

func (u URI) String() string {
	q := url.Values{}
	q.Set("relay-protocol", u.RelayProtocol)
	q.Set("symKey", u.SymKey)
	return fmt.Sprintf("wc:%s@%s?%s", u.Topic, uriVersion, q.Encode())
}

func ParseURI(s string) (URI, error) {
	if !strings.HasPrefix(s, "wc:") {
		return URI{}, fmt.Errorf("not a pairing uri: %q", s)
	}
	rest := strings.TrimPrefix(s, "wc:")
	at := strings.Index(rest, "@")
	q := strings.Index(rest, "?")
	if at <= 0 || q < at {
		return URI{}, fmt.Errorf("malformed pairing uri: %q", s)
	}
	if version := rest[at+1 : q]; version != uriVersion {
		return URI{}, fmt.Errorf("unsupported pairing uri version %s", version)
	}
	values, err := url.ParseQuery(rest[q+1:])
	if err != nil {
		return URI{}, err
	}
	uri := URI{
		Topic:         rest[:at],
		SymKey:        values.Get("symKey"),
		RelayProtocol: values.Get("relay-protocol"),
	}
	if _, err := decodeKey(uri.SymKey); err != nil {
		return URI{}, err
	}
	return uri, nil
}

// QRCode renders the URI as a PNG of size pixels.
func (u URI) QRCode(size int) ([]byte, error) {
	return qrcode.Encode(u.String(), qrcode.Medium, size)
}

// QRText renders the URI for a terminal.
func (u URI) QRText() (string, error) {
	qr, err := qrcode.New(u.String(), qrcode.Low)
	if err != nil {
		return "", err
	}
	return qr.ToString(false), nil
}
