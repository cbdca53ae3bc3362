package wire

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MaxLabelLength = 63
	MaxNameLength  = 255
	pointerMask    = 0xc0
)

var ErrInvalidName = errors.New("invalid domain name")

// Name is the wire encoding of a domain name: length prefixed labels ending
// in a zero label, or ending in a 2-byte compression pointer when the name
// comes from a resource record.
type Name string

var RootName = Name("\x00")

func NewName(name string) (Name, error) {
	name = strings.TrimSuffix(name, ".")
	if len(name) == 0 {
		return RootName, nil
	}
	encoded := make([]byte, 0, len(name)+2)
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 {
			return "", fmt.Errorf("%w: empty label in [%s]", ErrInvalidName, name)
		}
		if len(label) > MaxLabelLength {
			return "", fmt.Errorf("%w: label [%s] is longer than %d bytes", ErrInvalidName, label, MaxLabelLength)
		}
		encoded = append(encoded, byte(len(label)))
		encoded = append(encoded, label...)
	}
	encoded = append(encoded, 0)
	if len(encoded) > MaxNameLength {
		return "", fmt.Errorf("%w: [%s] is longer than %d bytes", ErrInvalidName, name, MaxNameLength)
	}
	return Name(encoded), nil
}

func MustName(name string) Name {
	encoded, err := NewName(name)
	if err != nil {
		panic(err)
	}
	return encoded
}

// HasPointer reports whether the name ends with a compression pointer.
func (name Name) HasPointer() bool {
	for i := 0; i < len(name); {
		length := name[i]
		if length&pointerMask == pointerMask {
			return true
		}
		if length == 0 {
			return false
		}
		i += int(length) + 1
	}
	return false
}

func (name Name) Labels() []string {
	var labels []string
	for i := 0; i < len(name); {
		length := int(name[i])
		if length == 0 || length&pointerMask != 0 || i+1+length > len(name) {
			break
		}
		labels = append(labels, string(name[i+1:i+1+length]))
		i += length + 1
	}
	return labels
}

func (name Name) String() string {
	if len(name) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(name); {
		length := int(name[i])
		if length == 0 {
			break
		}
		if length&pointerMask == pointerMask && i+1 < len(name) {
			offset := (length&^pointerMask)<<8 | int(name[i+1])
			fmt.Fprintf(&b, "[ptr:%d]", offset)
			return b.String()
		}
		if length&pointerMask != 0 || i+1+length > len(name) {
			b.WriteString("[invalid]")
			return b.String()
		}
		for _, c := range []byte(name[i+1 : i+1+length]) {
			switch {
			case c == '.' || c == '\\':
				b.WriteByte('\\')
				b.WriteByte(c)
			case c < 0x21 || c > 0x7e:
				fmt.Fprintf(&b, "\\%03d", c)
			default:
				b.WriteByte(c)
			}
		}
		b.WriteByte('.')
		i += length + 1
	}
	if b.Len() == 0 {
		return "."
	}
	return b.String()
}

// validate checks that name is exactly one complete wire encoded name.
func (name Name) validate(allowPointer bool) error {
	for i := 0; i < len(name); {
		length := name[i]
		switch {
		case length == 0:
			if i+1 != len(name) {
				return fmt.Errorf("%w: trailing bytes after the root label", ErrInvalidName)
			}
			if len(name) > MaxNameLength {
				return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
			}
			return nil
		case length&pointerMask == pointerMask:
			if !allowPointer {
				return fmt.Errorf("%w: compression pointer not allowed here", ErrInvalidName)
			}
			if i+2 != len(name) {
				return fmt.Errorf("%w: truncated or misplaced compression pointer", ErrInvalidName)
			}
			return nil
		case length&pointerMask != 0:
			return fmt.Errorf("%w: reserved label type 0x%02x", ErrInvalidName, length&pointerMask)
		}
		i += int(length) + 1
	}
	return fmt.Errorf("%w: missing terminator", ErrInvalidName)
}
