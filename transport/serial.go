package transport

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/saursin/vxdebug/logger"
)

// DefaultBaudRate matches the baud rate the debug firmware's UART bridge is
// configured for.
const DefaultBaudRate = 115200

// SerialTransport reaches the Debug Module over a UART, for setups where the
// target exposes its debug link directly rather than through a TCP bridge.
type SerialTransport struct {
	*Protocol
	sm *serialMedium
}

type serialMedium struct {
	port   serial.Port
	reader *bufio.Reader
	device string
	log    *logger.Logger
}

// NewSerialTransport constructs a disconnected serial transport.
func NewSerialTransport() *SerialTransport {
	sm := &serialMedium{log: logger.New("SerialTransport")}
	return &SerialTransport{Protocol: newProtocol(sm, "SerialTransport"), sm: sm}
}

// Connect opens args["device"] (e.g. "/dev/ttyUSB0"), optionally overriding
// the baud rate with args["baud"].
func (t *SerialTransport) Connect(args map[string]string) error {
	device, ok := args["device"]
	if !ok {
		return fmt.Errorf("SerialTransport requires 'device' argument")
	}
	baud := DefaultBaudRate
	if b, ok := args["baud"]; ok {
		v, err := strconv.Atoi(b)
		if err != nil {
			return fmt.Errorf("invalid baud rate %q: %w", b, err)
		}
		baud = v
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	t.sm.port = port
	t.sm.reader = bufio.NewReader(port)
	t.sm.device = device
	t.sm.log.Infof("connected to %s at %d baud", device, baud)
	return nil
}

func (m *serialMedium) connected() bool { return m.port != nil }

func (m *serialMedium) disconnect() error {
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.log.Infof("disconnected from %s", m.device)
	m.port = nil
	m.reader = nil
	return err
}

func (m *serialMedium) sendBuf(data string) error {
	if m.port == nil {
		return fmt.Errorf("not connected")
	}
	if data == "" {
		return nil
	}
	if !strings.HasSuffix(data, "\n") {
		data += "\n"
	}
	_, err := m.port.Write([]byte(data))
	return err
}

func (m *serialMedium) recvBuf(timeout time.Duration) (string, error) {
	if m.port == nil {
		return "", fmt.Errorf("not connected")
	}
	if err := m.port.SetReadTimeout(timeout); err != nil {
		return "", err
	}
	line, err := m.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("receive timeout or error: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
