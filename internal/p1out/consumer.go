// Package p1out implements the serial consumer that drives the P1
// telegram generator: it writes a minimal frame derived from the current
// Budget and Situation to a serial line. The P1 wire format itself is
// external to this control plane; only the consumer's error-handling
// contract matters here.
package p1out

import (
	"fmt"
	"sync"

	"github.com/goburrow/serial"

	"github.com/devskill-org/p1budget/internal/core"
	"github.com/devskill-org/p1budget/internal/corelog"
)

// Consumer writes a budget/situation frame to a serial device. It owns the
// port exclusively; errors are compared old-vs-new and logged only on
// transition, and a short write counts as an error.
type Consumer struct {
	mu   sync.Mutex
	cfg  serial.Config
	port serial.Port

	log       *corelog.Logger
	lastErr   string
	hadErr    bool
	frameFunc func(core.Budget, core.Situation) []byte
}

// New constructs a Consumer writing to device at baud.
func New(device string, baud int, log *corelog.Logger) *Consumer {
	return &Consumer{
		cfg: serial.Config{
			Address:  device,
			BaudRate: baud,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
		},
		log:       log,
		frameFunc: defaultFrame,
	}
}

func (c *Consumer) Name() string { return "p1out" }

func (c *Consumer) openLocked() error {
	if c.port != nil {
		return nil
	}
	port, err := serial.Open(&c.cfg)
	if err != nil {
		return err
	}
	c.port = port
	return nil
}

// Handle writes the current frame to the serial line.
func (c *Consumer) Handle(budget core.Budget, sit core.Situation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openLocked(); err != nil {
		c.noteErrorLocked(err)
		return err
	}

	frame := c.frameFunc(budget, sit)
	n, err := c.port.Write(frame)
	if err == nil && n != len(frame) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	if err != nil {
		c.port.Close()
		c.port = nil
		c.noteErrorLocked(err)
		return err
	}
	c.noteOKLocked()
	return nil
}

func (c *Consumer) noteErrorLocked(err error) {
	msg := err.Error()
	if !c.hadErr || c.lastErr != msg {
		c.log.Errorf("p1out: %v", err)
	}
	c.hadErr = true
	c.lastErr = msg
}

func (c *Consumer) noteOKLocked() {
	if c.hadErr {
		c.log.Infof("p1out: write recovered")
	}
	c.hadErr = false
	c.lastErr = ""
}

// defaultFrame encodes a minimal budget/consumption line; the real DSMR
// telegram framing, checksum, and timing are outside this control plane's
// scope.
func defaultFrame(budget core.Budget, sit core.Situation) []byte {
	return []byte(fmt.Sprintf("1-0:1.7.0(%06.3f*kW)\r\n1-0:31.7.0(%06.2f*A)\r\n",
		sit.Consumption()/1000.0, budget.Current))
}

// Close releases the underlying serial port, if open.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port != nil {
		err := c.port.Close()
		c.port = nil
		return err
	}
	return nil
}
