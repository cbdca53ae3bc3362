package wire

import (
	"strconv"

	"github.com/miekg/dns"
)

const (
	TypeA     = dns.TypeA
	TypeNS    = dns.TypeNS
	TypeCNAME = dns.TypeCNAME
	TypeSOA   = dns.TypeSOA
	TypePTR   = dns.TypePTR
	TypeMX    = dns.TypeMX
	TypeTXT   = dns.TypeTXT
	TypeAAAA  = dns.TypeAAAA
	TypeSRV   = dns.TypeSRV
	TypeOPT   = dns.TypeOPT
	TypeHTTPS = dns.TypeHTTPS
	TypeANY   = dns.TypeANY

	ClassINET = dns.ClassINET
)

func TypeString(qtype uint16) string {
	if name, ok := dns.TypeToString[qtype]; ok {
		return name
	}
	return "TYPE" + strconv.Itoa(int(qtype))
}

func ClassString(class uint16) string {
	if name, ok := dns.ClassToString[class]; ok {
		return name
	}
	return "CLASS" + strconv.Itoa(int(class))
}

// TypeFromString accepts mnemonics such as "AAAA" as well as the generic
// "TYPE28" form.
func TypeFromString(name string) (uint16, bool) {
	if qtype, ok := dns.StringToType[name]; ok {
		return qtype, true
	}
	if len(name) > 4 && name[:4] == "TYPE" {
		if qtype, err := strconv.ParseUint(name[4:], 10, 16); err == nil {
			return uint16(qtype), true
		}
	}
	return 0, false
}
