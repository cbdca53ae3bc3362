package ovenrack

import (
	"bytes"
	"testing"

	"github.com/powerman/check"
)

func TestExtractHostAndPort(tt *testing.T) {
	t := check.T(tt)
	tests := []struct {
		in   string
		host string
		port int
	}{
		{"127.0.0.1", "127.0.0.1", 53},
		{"127.0.0.1:5353", "127.0.0.1", 5353},
		{"::1", "::1", 53},
		{"[::1]", "::1", 53},
		{"[::1]:853", "::1", 853},
		{"dns.example.net", "dns.example.net", 53},
		{"dns.example.net:443", "dns.example.net", 443},
		{"dns.example.net:", "dns.example.net:", 53},
	}
	for _, test := range tests {
		host, port := ExtractHostAndPort(test.in, 53)
		t.Equal(host, test.host, test.in)
		t.Equal(port, test.port, test.in)
	}
}

func TestPrefixedFraming(tt *testing.T) {
	t := check.T(tt)
	packet := bytes.Repeat([]byte{0xab}, 300)
	prefixed, err := PrefixWithSize(packet)
	t.Must(t.Nil(err))
	t.BytesEqual(prefixed[:2], []byte{0x01, 0x2c})

	var stream bytes.Buffer
	stream.Write(prefixed)
	stream.Write(prefixed)
	for i := 0; i < 2; i++ {
		read, err := ReadPrefixed(&stream)
		t.Nil(err)
		t.BytesEqual(read, packet)
	}
	_, err = ReadPrefixed(&stream)
	t.NotNil(err)

	_, err = ReadPrefixed(bytes.NewReader([]byte{0x00, 0x02, 0x01, 0x02}))
	t.NotNil(err)
	_, err = ReadPrefixed(bytes.NewReader(prefixed[:100]))
	t.NotNil(err)
	_, err = PrefixWithSize(make([]byte, 0x10000))
	t.NotNil(err)
}

func TestStringQuote(tt *testing.T) {
	t := check.T(tt)
	t.Equal(StringQuote("example.com"), "example.com")
	t.Equal(StringQuote("tab\there"), `tab\there`)
}
