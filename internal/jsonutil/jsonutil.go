// Package jsonutil formats RPC values for terminal output.
package jsonutil

import (
	"bytes"
	"reflect"
	"sort"

	"github.com/fatih/structs"
	"github.com/hokaccha/go-prettyjson"
)

var formatter *prettyjson.Formatter

func init() {
	formatter = prettyjson.NewFormatter()
	formatter.Indent = 0
	formatter.Newline = ""
}

// leading fields are printed first, in this order, so torrents are easy to tell apart.
var leading = []string{"ID", "Name", "State"}

// MarshalCompactPretty formats the fields of a struct one per line with color information.
// Leading fields come first and the rest are sorted by name. Nil pointers are shown as "-".
func MarshalCompactPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	m := structs.Map(v)
	for _, name := range fieldOrder(structs.Names(v)) {
		buf.WriteString(name)
		buf.WriteString(": ")
		val := m[name]
		if isNil(val) {
			buf.WriteString("-")
		} else {
			b, err := formatter.Marshal(val)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteRune('\n')
	}
	return buf.Bytes(), nil
}

func fieldOrder(names []string) []string {
	rank := func(name string) int {
		for i, l := range leading {
			if l == name {
				return i
			}
		}
		return len(leading)
	}
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
