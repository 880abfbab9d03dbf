package transport

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/saursin/vxdebug/logger"
)

// TCPTransport reaches the Debug Module over a plain TCP socket, the mode
// the stub's remote counterpart listens on.
type TCPTransport struct {
	*Protocol
	tm *tcpMedium
}

type tcpMedium struct {
	conn   net.Conn
	reader *bufio.Reader
	ip     string
	port   int
	log    *logger.Logger
}

// NewTCPTransport constructs a disconnected TCP transport.
func NewTCPTransport() *TCPTransport {
	tm := &tcpMedium{log: logger.New("TCPTransport")}
	return &TCPTransport{Protocol: newProtocol(tm, "TCPTransport"), tm: tm}
}

// Connect dials args["ip"]:args["port"], accepting "localhost" as a synonym
// for 127.0.0.1.
func (t *TCPTransport) Connect(args map[string]string) error {
	ip, ok := args["ip"]
	if !ok {
		return fmt.Errorf("TCPTransport requires 'ip' argument")
	}
	portStr, ok := args["port"]
	if !ok {
		return fmt.Errorf("TCPTransport requires 'port' argument")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	if ip == "localhost" {
		ip = "127.0.0.1"
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	t.tm.conn = conn
	t.tm.reader = bufio.NewReader(conn)
	t.tm.ip = ip
	t.tm.port = port
	t.tm.log.Infof("connected to %s:%d", ip, port)
	return nil
}

func (m *tcpMedium) connected() bool { return m.conn != nil }

func (m *tcpMedium) disconnect() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.log.Infof("disconnected from %s:%d", m.ip, m.port)
	m.conn = nil
	m.reader = nil
	return err
}

func (m *tcpMedium) sendBuf(data string) error {
	if m.conn == nil {
		return fmt.Errorf("not connected")
	}
	if data == "" {
		return nil
	}
	if !strings.HasSuffix(data, "\n") {
		data += "\n"
	}
	_, err := m.conn.Write([]byte(data))
	return err
}

func (m *tcpMedium) recvBuf(timeout time.Duration) (string, error) {
	if m.conn == nil {
		return "", fmt.Errorf("not connected")
	}
	if err := m.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	line, err := m.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("receive timeout or error: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
