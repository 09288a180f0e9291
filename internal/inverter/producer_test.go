package inverter

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devskill-org/p1budget/internal/core"
	"github.com/devskill-org/p1budget/internal/corelog"
)

func TestPollWithNoEndpointConfiguredReturnsError(t *testing.T) {
	p := New("", 1, time.Second, corelog.New(os.Stderr, ""))
	var sit core.Situation
	err := p.Poll(&sit)
	assert.Error(t, err)
}

func TestSetEndpointClosesExistingConnection(t *testing.T) {
	p := New("10.0.0.1:502", 1, time.Second, corelog.New(os.Stderr, ""))
	p.SetEndpoint("10.0.0.2:502")
	assert.Equal(t, "10.0.0.2:502", p.endpoint)
	assert.Nil(t, p.client)
}

func TestCloseIsSafeWithoutAConnection(t *testing.T) {
	p := New("10.0.0.1:502", 1, time.Second, corelog.New(os.Stderr, ""))
	assert.NoError(t, p.Close())
}
