// Package inverter implements the Modbus/TCP producer that reads the PV
// inverter's instantaneous output, battery state, and per-phase grid
// voltage/current into a Situation.
package inverter

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/devskill-org/p1budget/internal/core"
	"github.com/devskill-org/p1budget/internal/corelog"
)

// Producer polls a hybrid PV/battery inverter over Modbus/TCP. It owns its
// connection exclusively; the registry only ever calls Poll. Endpoint may
// be changed at runtime (by mDNS discovery re-resolving the device) via
// SetEndpoint, which tears down any existing connection so the next poll
// reconnects to the new address.
type Producer struct {
	mu       sync.Mutex
	endpoint string
	slaveID  byte
	timeout  time.Duration

	handler *modbus.TCPClientHandler
	client  modbus.Client

	log        *corelog.Logger
	lastErr    string
	connFailed bool
}

// New constructs a Producer targeting endpoint ("host:port") and Modbus
// unit id slaveID, with a bounded per-call timeout.
func New(endpoint string, slaveID byte, timeout time.Duration, log *corelog.Logger) *Producer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Producer{endpoint: endpoint, slaveID: slaveID, timeout: timeout, log: log}
}

func (p *Producer) Name() string { return "inverter" }

// SetEndpoint updates the target address; the next Poll reconnects.
func (p *Producer) SetEndpoint(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if endpoint == p.endpoint {
		return
	}
	p.endpoint = endpoint
	p.closeLocked()
}

func (p *Producer) closeLocked() {
	if p.handler != nil {
		p.handler.Close()
		p.handler = nil
		p.client = nil
	}
}

func (p *Producer) connectLocked() error {
	if p.client != nil {
		return nil
	}
	if p.endpoint == "" {
		return fmt.Errorf("no endpoint configured")
	}
	handler := modbus.NewTCPClientHandler(p.endpoint)
	handler.SlaveId = p.slaveID
	handler.Timeout = p.timeout
	if err := handler.Connect(); err != nil {
		return err
	}
	p.handler = handler
	p.client = modbus.NewClient(handler)
	return nil
}

// Poll reads the inverter's current state into sit. Transient I/O errors
// are logged only when the ok/fail state changes, never on every tick, and
// the producer leaves sit untouched on failure (the previous tick's values
// survive).
func (p *Producer) Poll(sit *core.Situation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		p.noteErrorLocked(err)
		return err
	}

	reading, err := p.readLocked()
	if err != nil {
		p.closeLocked()
		p.noteErrorLocked(err)
		return err
	}
	p.noteOKLocked()

	sit.BatteryState = reading.batteryState
	sit.InverterOutput = reading.inverterOutputW
	sit.BatteryOutput = reading.batteryOutputW
	sit.Grid = reading.grid
	return nil
}

func (p *Producer) noteErrorLocked(err error) {
	msg := err.Error()
	if !p.connFailed || p.lastErr != msg {
		p.log.Errorf("inverter %s: %v", p.endpoint, err)
	}
	p.connFailed = true
	p.lastErr = msg
}

func (p *Producer) noteOKLocked() {
	if p.connFailed {
		p.log.Infof("inverter %s: connection recovered", p.endpoint)
	}
	p.connFailed = false
	p.lastErr = ""
}

type reading struct {
	batteryState    float64
	inverterOutputW float64
	batteryOutputW  float64
	grid            []core.Phase
}

// readLocked reads the hybrid inverter register blocks documented for
// running state/power (30578-30609) and grid/phase info (31000-31035).
func (p *Producer) readLocked() (reading, error) {
	state, err := p.client.ReadInputRegisters(30578, 32)
	if err != nil {
		return reading{}, fmt.Errorf("read running state: %w", err)
	}
	activePowerW := float64(int32(binary.BigEndian.Uint32(state[18:22]))) // register unit is already W (raw/1000 = kW)
	essChargeDischargeW := float64(int32(binary.BigEndian.Uint32(state[42:46])))
	essSOC := float64(binary.BigEndian.Uint16(state[46:48])) / 10.0 / 100.0

	grid, err := p.client.ReadInputRegisters(31000, 36)
	if err != nil {
		return reading{}, fmt.Errorf("read grid info: %w", err)
	}
	phases := []core.Phase{
		{
			Voltage: float64(binary.BigEndian.Uint32(grid[22:26])) / 100.0,
			Current: float64(int32(binary.BigEndian.Uint32(grid[34:38]))) / 100.0,
		},
		{
			Voltage: float64(binary.BigEndian.Uint32(grid[26:30])) / 100.0,
			Current: float64(int32(binary.BigEndian.Uint32(grid[38:42]))) / 100.0,
		},
		{
			Voltage: float64(binary.BigEndian.Uint32(grid[30:34])) / 100.0,
			Current: float64(int32(binary.BigEndian.Uint32(grid[42:46]))) / 100.0,
		},
	}

	return reading{
		batteryState:    essSOC,
		inverterOutputW: activePowerW,
		// The device reports ESS power as positive-when-charging; the
		// Situation convention is positive-when-discharging.
		batteryOutputW: -essChargeDischargeW,
		grid:           phases,
	}, nil
}

// Close releases the underlying connection, if any.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}
