package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devskill-org/p1budget/internal/corelog"
)

func loggerForTest(t *testing.T) *corelog.Logger {
	t.Helper()
	return corelog.New(os.Stderr, "")
}

func TestSubscribeDefault(t *testing.T) {
	c := New(loggerForTest(t))
	p := Subscribe(c, "max_current", ParseFloat, 16.0)
	assert.Equal(t, 16.0, p.Get())
}

func TestSubscribeEnvOverridesDefault(t *testing.T) {
	t.Setenv("MAX_CURRENT", "25")
	c := New(loggerForTest(t))
	p := Subscribe(c, "max_current", ParseFloat, 16.0)
	assert.Equal(t, 25.0, p.Get())
}

func TestLoadCLIOverridesEnv(t *testing.T) {
	t.Setenv("MAX_CURRENT", "25")
	c := New(loggerForTest(t))
	require.NoError(t, c.LoadCLI([]string{"--max_current", "30"}))
	p := Subscribe(c, "max_current", ParseFloat, 16.0)
	assert.Equal(t, 30.0, p.Get())
}

func TestSetParamFansOutToSubscribersAfterDeclaration(t *testing.T) {
	c := New(loggerForTest(t))
	p := Subscribe(c, "max_current", ParseFloat, 16.0)
	c.SetParam("max_current", "12.5")
	assert.Equal(t, 12.5, p.Get())
}

func TestSubscribeFromWithinParseCallbackDoesNotDeadlock(t *testing.T) {
	c := New(loggerForTest(t))
	var nested *Param[string]
	_ = Subscribe(c, "trigger", func(text string) (string, error) {
		if nested == nil {
			nested = Subscribe(c, "derived", ParseString, "default")
		}
		return text, nil
	}, "")

	c.SetParam("trigger", "fired")
	require.NotNil(t, nested)
	assert.Equal(t, "default", nested.Get())
}

func TestLoadCLIRejectsMalformedArgs(t *testing.T) {
	c := New(loggerForTest(t))
	assert.Error(t, c.LoadCLI([]string{"notanoption"}))
	assert.Error(t, c.LoadCLI([]string{"--dangling"}))
}
