package main

import (
	"bytes"
	"errors"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	o, err := parseFlags(nil, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Nil(t, o.Region, "region left to the environment")
	assert.Empty(t, o.OutputName)
	assert.Zero(t, o.WatchInterval)
}

func TestParseFlags_All(t *testing.T) {
	o, err := parseFlags([]string{"-region", "Tokachi", "-output", "tokachi", "-watch", "10m"}, &bytes.Buffer{})
	require.NoError(t, err)

	require.NotNil(t, o.Region)
	assert.Equal(t, "Tokachi", *o.Region)
	assert.Equal(t, "tokachi", o.OutputName)
	assert.Equal(t, 10*time.Minute, o.WatchInterval)
}

func TestParseFlags_ExplicitEmptyRegion(t *testing.T) {
	o, err := parseFlags([]string{"-region="}, &bytes.Buffer{})
	require.NoError(t, err)

	require.NotNil(t, o.Region)
	assert.Empty(t, *o.Region)
}

func TestParseFlags_Errors(t *testing.T) {
	_, err := parseFlags([]string{"-watch", "soon"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = parseFlags([]string{"extra"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unexpected arguments")

	var out bytes.Buffer
	_, err = parseFlags([]string{"-h"}, &out)
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Contains(t, out.String(), "-region")
}
