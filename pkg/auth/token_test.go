package auth

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPassword(t *testing.T) {
	var out bytes.Buffer
	pw, err := ReadPassword(strings.NewReader("  s3cret \n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Contains(t, out.String(), "Password>")
}

func TestReadPassword_Empty(t *testing.T) {
	var out bytes.Buffer
	_, err := ReadPassword(strings.NewReader("\n"), &out)
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = ReadPassword(strings.NewReader(""), &out)
	assert.ErrorIs(t, err, ErrPasswordRequired)
}
