package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf})
	log.Debug("hidden")
	log.Info("shown", zap.Int("n", 3))
	_ = log.Sync()

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), `"n": 3`)

	buf.Reset()
	log = New(Config{Output: &buf, Verbose: true, Format: "json"})
	log.Debug("now shown")
	_ = log.Sync()
	assert.Contains(t, buf.String(), `"msg":"now shown"`)
}

func TestForRank(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf})

	ForRank(log, 1).Info("from worker")
	ForRank(log, 0).Info("from coordinator")
	ForRank(nil, 0).Info("nowhere")

	assert.NotContains(t, buf.String(), "from worker")
	assert.Contains(t, buf.String(), "from coordinator")
}
