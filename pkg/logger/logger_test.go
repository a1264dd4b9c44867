package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" WARNING "))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestComponentFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Init("debug", "json")
	t.Cleanup(func() { Init("info", "text") })

	InfoCF("forwarder", "Message forwarded", map[string]any{"destinations": 2})

	out := buf.String()
	assert.Contains(t, out, `"component":"forwarder"`)
	assert.Contains(t, out, `"destinations":2`)
	assert.Contains(t, out, `"msg":"Message forwarded"`)
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(WARN)
	t.Cleanup(func() { SetLevel(INFO) })

	DebugC("auth", "hidden")
	InfoC("auth", "hidden too")
	WarnC("auth", "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
