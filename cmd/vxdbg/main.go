// Command vxdbg bridges a Vortex accelerator's Debug Module to GDB: it
// opens a transport to the target, initializes the debug backend, and
// serves the GDB Remote Serial Protocol over TCP, one client after another.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/saursin/vxdebug/backend"
	"github.com/saursin/vxdebug/breakpoint"
	"github.com/saursin/vxdebug/gdbstub"
	"github.com/saursin/vxdebug/logger"
	"github.com/saursin/vxdebug/rv"
	"github.com/saursin/vxdebug/transport"
)

func main() {
	transportKind := flag.String("transport", "tcp", "transport to the target debug module: tcp or serial")
	ip := flag.String("ip", "127.0.0.1", "target IP address (tcp transport)")
	targetPort := flag.String("target-port", "5555", "target TCP port (tcp transport)")
	device := flag.String("device", "", "serial device, e.g. /dev/ttyUSB0 (serial transport)")
	baud := flag.String("baud", fmt.Sprint(transport.DefaultBaudRate), "serial baud rate (serial transport)")
	gdbPort := flag.Int("gdb-port", 9999, "TCP port to serve the GDB remote protocol on")
	asmPrefix := flag.String("toolchain-prefix", rv.DefaultToolchainPrefix, "RISC-V cross toolchain prefix used to assemble injected instructions")
	verbosity := flag.String("log-level", "info", "log verbosity: error, warn, info, debug, debug1, debug2")
	flag.Parse()

	if lvl, ok := parseLogLevel(*verbosity); ok {
		logger.SetGlobalLevel(lvl)
	} else {
		log.Fatalf("unknown log level %q", *verbosity)
	}

	tp, connectArgs, err := buildTransport(*transportKind, *ip, *targetPort, *device, *baud)
	if err != nil {
		log.Fatal(err)
	}

	if !rv.ToolchainCheck(*asmPrefix) {
		log.Fatalf("RISC-V toolchain %q not found on PATH; instruction injection requires %s-as and %s-objcopy", *asmPrefix, *asmPrefix, *asmPrefix)
	}

	b := backend.NewBackend()
	b.AsmPrefix = *asmPrefix
	b.SetTransport(tp, *transportKind)

	if err := b.ConnectTransport(connectArgs); err != nil {
		log.Fatalf("failed to connect to target: %v", err)
	}
	defer b.DisconnectTransport()

	if err := b.Initialize(); err != nil {
		log.Fatalf("failed to initialize backend: %v", err)
	}

	bp := breakpoint.NewTable(b)
	stub := gdbstub.NewStub(b, bp)

	if err := stub.Serve(*gdbPort); err != nil {
		log.Fatalf("GDB server failed: %v", err)
	}
}

func buildTransport(kind, ip, targetPort, device, baud string) (transport.Transport, map[string]string, error) {
	switch kind {
	case "tcp":
		return transport.NewTCPTransport(), map[string]string{"ip": ip, "port": targetPort}, nil
	case "serial":
		if device == "" {
			return nil, nil, fmt.Errorf("serial transport requires -device")
		}
		return transport.NewSerialTransport(), map[string]string{"device": device, "baud": baud}, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q, want tcp or serial", kind)
	}
}

func parseLogLevel(s string) (logger.Level, bool) {
	switch s {
	case "error":
		return logger.Error, true
	case "warn":
		return logger.Warn, true
	case "info":
		return logger.Info, true
	case "debug":
		return logger.Debug, true
	case "debug1":
		return logger.Debug1, true
	case "debug2":
		return logger.Debug2, true
	default:
		return 0, false
	}
}
