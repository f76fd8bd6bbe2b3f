package jsonutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, v any) []string {
	b, err := MarshalCompactPretty(v)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestMarshalCompactPrettyFieldOrder(t *testing.T) {
	v := struct {
		Progress float64
		Name     string
		Category string
		ID       string
		State    string
	}{0.5, "ubuntu", "linux", "aaaa", "Seeding"}
	l := lines(t, v)
	require.Len(t, l, 5)
	prefixes := []string{"ID: ", "Name: ", "State: ", "Category: ", "Progress: "}
	for i, p := range prefixes {
		assert.True(t, strings.HasPrefix(l[i], p), l[i])
	}
	assert.Contains(t, l[1], "ubuntu")
}

func TestMarshalCompactPrettyNilPointer(t *testing.T) {
	eta := int64(90)
	v := struct {
		ETA   *int64
		Error *string
	}{ETA: &eta}
	l := lines(t, v)
	require.Len(t, l, 2)
	assert.Contains(t, l[0], "90")
	assert.Equal(t, "Error: -", l[1])
}
