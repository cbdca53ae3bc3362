// Command ovenrack-stamp prints an sdns:// stamp for a DNS-over-HTTPS
// server, ready to be used as the ovenrack upstream.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	stamps "github.com/jedisct1/go-dnsstamps"

	"github.com/ovenrack/ovenrack/ovenrack"
)

type stampOptions struct {
	ip       string
	host     string
	path     string
	hashes   string
	port     uint
	dnssec   bool
	noLogs   bool
	noFilter bool
}

// buildStamp encodes a DoH stamp and checks that ovenrack accepts it.
func buildStamp(options stampOptions) (string, error) {
	if len(options.host) == 0 {
		return "", fmt.Errorf("a host name is required")
	}
	stamp := stamps.ServerStamp{
		Proto:         stamps.StampProtoTypeDoH,
		ServerAddrStr: options.ip,
		ProviderName:  options.host,
		Path:          options.path,
	}
	if len(options.ip) > 0 && ovenrack.ParseIP(options.ip) == nil {
		return "", fmt.Errorf("[%s] is not an IP address", options.ip)
	}
	if options.port != 0 && options.port != stamps.DefaultPort {
		stamp.ProviderName += fmt.Sprintf(":%d", options.port)
	}
	if len(options.hashes) > 0 {
		for _, hashStr := range strings.Split(options.hashes, ",") {
			h, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(hashStr), ":", ""))
			if err != nil {
				return "", fmt.Errorf("invalid hexadecimal hash string: %w", err)
			}
			stamp.Hashes = append(stamp.Hashes, h)
		}
	}
	if options.dnssec {
		stamp.Props |= stamps.ServerInformalPropertyDNSSEC
	}
	if options.noLogs {
		stamp.Props |= stamps.ServerInformalPropertyNoLog
	}
	if options.noFilter {
		stamp.Props |= stamps.ServerInformalPropertyNoFilter
	}
	stampStr := stamp.String()
	if _, err := ovenrack.ParseUpstream(stampStr); err != nil {
		return "", err
	}
	return stampStr, nil
}

func main() {
	var options stampOptions
	flag.StringVar(&options.ip, "ip", "", "IP address used to reach the server without resolving its name")
	flag.StringVar(&options.host, "host", "", "host name of the DNS-over-HTTPS server")
	flag.StringVar(&options.path, "path", "/dns-query", "path for DNS-over-HTTPS queries")
	flag.StringVar(&options.hashes, "hashes", "", "SHA256 hashes for the server certificate, in hexadecimal format (12:34:aa:bb:...), comma separated; colons are optional")
	flag.UintVar(&options.port, "port", 0, "port, if not 443")
	flag.BoolVar(&options.dnssec, "dnssec", true, "the server validates DNSSEC")
	flag.BoolVar(&options.noLogs, "no-logs", true, "the server does not log queries")
	flag.BoolVar(&options.noFilter, "no-filter", true, "the server does not filter responses")
	flag.Parse()

	stampStr, err := buildStamp(options)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(stampStr)
}
