package ovenrack

import (
	"testing"

	"github.com/powerman/check"
)

func TestNetProbe(tt *testing.T) {
	t := check.T(tt)
	t.Nil(NetProbe("", 10))
	t.Nil(NetProbe("127.0.0.1:53", 0))
	t.Nil(NetProbe("127.0.0.1:53", 2))
	t.NotNil(NetProbe("not an address", 2))
}
