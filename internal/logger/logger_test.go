package logger

import (
	"testing"

	"github.com/cenkalti/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"debug":   log.DEBUG,
		"":        log.INFO,
		"INFO":    log.INFO,
		"warn":    log.WARNING,
		"warning": log.WARNING,
		" error ": log.ERROR,
	}
	for s, want := range cases {
		l, err := ParseLevel(s)
		assert.NoError(t, err, s)
		assert.Equal(t, want, l, s)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
