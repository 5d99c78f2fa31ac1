package monitoring

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, Configure("info", "text"))
		SetOutput(nil)
	})

	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())

	var buf bytes.Buffer
	SetOutput(&buf)
	WithRequest("req-1").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])

	assert.Error(t, Configure("loud", "text"))
	assert.Error(t, Configure("info", "xml"))
}

func TestLogf(t *testing.T) {
	t.Cleanup(func() { SetOutput(nil) })

	var buf bytes.Buffer
	SetOutput(&buf)
	Logf("served %d frames", 3)
	assert.Contains(t, buf.String(), "served 3 frames")
}
