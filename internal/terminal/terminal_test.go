package terminal

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesFor(t *testing.T) {
	assert.Equal(t, 2, LinesFor(0, 80))
	assert.Equal(t, 2, LinesFor(80, 80))
	assert.Equal(t, 3, LinesFor(81, 80))
	assert.Equal(t, 3, LinesFor(100, 0))
}

func TestPromptLine(t *testing.T) {
	var out bytes.Buffer
	r := bufio.NewReader(strings.NewReader("  scott \nrest"))
	got, err := PromptLine(r, &out, "User: ")
	require.NoError(t, err)
	assert.Equal(t, "scott", got)
	assert.Equal(t, "User: ", out.String())

	got, err = PromptLine(r, &out, "Next: ")
	require.NoError(t, err)
	assert.Equal(t, "rest", got)

	_, err = PromptLine(r, &out, "Again: ")
	assert.Error(t, err)
}
