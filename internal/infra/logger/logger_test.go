package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	NewWriter("prod", &buf).Debug("hidden")
	assert.Empty(t, buf.String())

	NewWriter("dev", &buf).Debug("shown", "subscription_id", 7)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "subgate", rec["app"])
	assert.Equal(t, "dev", rec["env"])
	assert.EqualValues(t, 7, rec["subscription_id"])
}
