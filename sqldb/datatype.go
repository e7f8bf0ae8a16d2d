package sqldb

import (
	"encoding/json"
	"strings"
)

// Datatype is the column type enumeration of a table schema document.
type Datatype string

const (
	Int       Datatype = "INT"
	Int8      Datatype = "INT8"
	Int16     Datatype = "INT16"
	Int32     Datatype = "INT32"
	Int64     Datatype = "INT64"
	Uint      Datatype = "UINT"
	Uint8     Datatype = "UINT8"
	Uint16    Datatype = "UINT16"
	Uint32    Datatype = "UINT32"
	Uint64    Datatype = "UINT64"
	Float32   Datatype = "FLOAT32"
	Float64   Datatype = "FLOAT64"
	Text      Datatype = "TEXT"
	Bool      Datatype = "BOOL"
	Timestamp Datatype = "TIMESTAMP"
)

var datatypes = []Datatype{
	Int, Int8, Int16, Int32, Int64,
	Uint, Uint8, Uint16, Uint32, Uint64,
	Float32, Float64, Text, Bool, Timestamp,
}

// Datatypes lists every supported datatype.
func Datatypes() []Datatype {
	out := make([]Datatype, len(datatypes))
	copy(out, datatypes)
	return out
}

// ParseDatatype resolves a datatype name, case-insensitively.
func ParseDatatype(s string) (Datatype, error) {
	d := Datatype(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", &UnsupportedTypeError{Datatype: s}
	}
	return d, nil
}

func (d Datatype) Valid() bool {
	for _, known := range datatypes {
		if d == known {
			return true
		}
	}
	return false
}

func (d Datatype) IsInteger() bool {
	switch d {
	case Int, Int8, Int16, Int32, Int64, Uint, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

func (d Datatype) IsUnsigned() bool {
	switch d {
	case Uint, Uint8, Uint16, Uint32, Uint64:
		return true
	}
	return false
}

// bounds returns the inclusive value range enforced with a CHECK constraint.
// Types without an enforced range report ok=false.
func (d Datatype) bounds() (lo, hi string, ok bool) {
	switch d {
	case Int8:
		return "-128", "127", true
	case Int16:
		return "-32768", "32767", true
	case Int32:
		return "-2147483648", "2147483647", true
	case Uint8:
		return "0", "255", true
	case Uint16:
		return "0", "65535", true
	case Uint32:
		return "0", "4294967295", true
	case Uint, Uint64:
		return "0", "", true
	}
	return "", "", false
}

// UnmarshalJSON keeps the name as written so a schema round-trips unchanged.
// Validation happens in TableSchema.Validate where the column is known.
func (d *Datatype) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*d = Datatype(s)
	return nil
}

func (d Datatype) normalize() Datatype {
	return Datatype(strings.ToUpper(strings.TrimSpace(string(d))))
}
