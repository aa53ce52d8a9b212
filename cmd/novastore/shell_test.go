package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	got, err := splitArgs(`insert users 1 'Ada Lovelace'  2.5`)
	require.NoError(t, err)
	assert.Equal(t, []string{"insert", "users", "1", "Ada Lovelace", "2.5"}, got)

	got, err = splitArgs(`lookup users name = ''`)
	require.NoError(t, err)
	assert.Equal(t, []string{"lookup", "users", "name", "=", ""}, got)

	got, err = splitArgs(`insert t 'it\'s'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"insert", "t", "it's"}, got)

	_, err = splitArgs(`insert t 'open`)
	require.Error(t, err)
}
