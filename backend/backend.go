// Package backend is the debug backend engine: it turns high-level
// operations (read a GPR, write a byte range, set a breakpoint) into
// sequences of DM register accesses and injected instructions, honoring the
// hardware's warp/thread selection model and halt preconditions. Ported
// from the original debugger's backend.h/backend.cpp.
package backend

import (
	"fmt"

	"github.com/saursin/vxdebug/dmreg"
	"github.com/saursin/vxdebug/logger"
	"github.com/saursin/vxdebug/rcode"
	"github.com/saursin/vxdebug/rv"
	"github.com/saursin/vxdebug/transport"
)

// VortexPlatformID is the expected PLATFORM.platformid value for this
// accelerator family.
const VortexPlatformID = 0x1

// DefaultPollRetries and DefaultPollDelayMS are the DM accessor's default
// retry policy, overridable per Backend instance.
const (
	DefaultPollRetries = 10
	DefaultPollDelayMS = 100
)

// PlatformInfo is the hardware topology fetched from the PLATFORM register.
// Misa is not filled in by this package and stays zero.
type PlatformInfo struct {
	PlatformID       uint32
	PlatformName     string
	NumClusters      uint32
	NumCores         uint32
	NumWarps         uint32
	NumThreads       uint32
	NumTotalCores    uint32
	NumTotalWarps    uint32
	NumTotalThreads  uint32
	Misa             uint32
}

// state is the debugger's mutable view of the target: the current
// selection and a cache of fetched platform info.
type state struct {
	selectedWid int
	selectedTid int
	selectedPC  uint32
	platInfo    PlatformInfo
}

// Backend owns a Transport and drives the whole DM protocol on top of it.
type Backend struct {
	tp     transport.Transport
	tpType string
	log    *logger.Logger

	st state

	PollRetries int
	PollDelayMS int
	AsmPrefix   string

	dmCache map[dmreg.Reg]uint32

	// asmEncode turns one assembly line into its encoded word. It defaults
	// to the real external-toolchain path but is swappable in tests so the
	// injection-sequence logic can be exercised without a RISC-V assembler
	// on PATH.
	asmEncode func(line, prefix string) (uint32, error)
}

// NewBackend constructs a Backend with no transport attached yet.
func NewBackend() *Backend {
	b := &Backend{
		log:         logger.New("Backend"),
		PollRetries: DefaultPollRetries,
		PollDelayMS: DefaultPollDelayMS,
		dmCache:     make(map[dmreg.Reg]uint32),
		asmEncode:   rv.AssembleCached,
	}
	b.st.selectedWid = -1
	b.st.selectedTid = -1
	return b
}

// SetAsmEncoder overrides the assembly-to-word encoder, letting callers
// (tests, or an embedder with its own toolchain wrapper) bypass the default
// external-toolchain path.
func (b *Backend) SetAsmEncoder(encode func(line, prefix string) (uint32, error)) {
	b.asmEncode = encode
}

// SetTransport attaches an already-constructed Transport (TCP, serial, or a
// mock for testing), replacing any previously attached one.
func (b *Backend) SetTransport(tp transport.Transport, tpType string) {
	if b.tp != nil {
		b.log.Warn("transport already set up; replacing existing transport")
	}
	b.tp = tp
	b.tpType = tpType
}

// ConnectTransport connects the attached transport using the given
// connection arguments (e.g. {"ip": "127.0.0.1", "port": "5555"}).
func (b *Backend) ConnectTransport(args map[string]string) error {
	if b.tp == nil {
		return fmt.Errorf("transport not set up, cannot connect")
	}
	if err := b.tp.Connect(args); err != nil {
		return fmt.Errorf("failed to connect %s transport: %w", b.tpType, err)
	}
	b.log.Info("transport connected")

	if err := b.tp.Handshake(); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	b.log.Info("handshake ok")
	return nil
}

// DisconnectTransport disconnects the attached transport, if any.
func (b *Backend) DisconnectTransport() error {
	if b.tp == nil {
		return nil
	}
	return b.tp.Disconnect()
}

// TransportConnected reports whether the attached transport is live.
func (b *Backend) TransportConnected() bool {
	return b.tp != nil && b.tp.Connected()
}

func (b *Backend) checkConnected() error {
	if !b.TransportConnected() {
		b.log.Error("transport not connected")
		return rcode.TransportErr
	}
	return nil
}

// Initialize wakes the DM and fetches platform info; it is re-run after a
// platform reset.
func (b *Backend) Initialize() error {
	if err := b.checkConnected(); err != nil {
		return fmt.Errorf("cannot initialize backend: %w", err)
	}
	b.log.Info("initializing backend...")

	if err := b.WakeDM(); err != nil {
		return fmt.Errorf("wake_dm failed: %w", err)
	}
	if err := b.fetchPlatformInfo(); err != nil {
		return fmt.Errorf("fetch_platform_info failed: %w", err)
	}

	b.log.Info("backend initialized")
	b.logPlatformInfo()
	return nil
}

// PlatformInfo returns the most recently fetched platform topology.
func (b *Backend) PlatformInfo() PlatformInfo { return b.st.platInfo }

func (b *Backend) fetchPlatformInfo() error {
	platform, err := b.dmRead(dmreg.PLATFORM)
	if err != nil {
		return err
	}
	pid, _ := dmreg.Extract(dmreg.PLATFORM, "platformid", platform)
	clusters, _ := dmreg.Extract(dmreg.PLATFORM, "numclusters", platform)
	cores, _ := dmreg.Extract(dmreg.PLATFORM, "numcores", platform)
	warps, _ := dmreg.Extract(dmreg.PLATFORM, "numwarps", platform)
	threadsRaw, _ := dmreg.Extract(dmreg.PLATFORM, "numthreads", platform)

	name := "Unknown"
	if pid == VortexPlatformID {
		name = "Vortex"
	}

	pi := PlatformInfo{
		PlatformID:   pid,
		PlatformName: name,
		NumClusters:  clusters,
		NumCores:     cores,
		NumWarps:     warps,
		NumThreads:   1 << threadsRaw,
	}
	pi.NumTotalCores = pi.NumClusters * pi.NumCores
	pi.NumTotalWarps = pi.NumTotalCores * pi.NumWarps
	pi.NumTotalThreads = pi.NumTotalWarps * pi.NumThreads
	b.st.platInfo = pi
	return nil
}

func (b *Backend) logPlatformInfo() {
	pi := b.st.platInfo
	b.log.Infof("platform info: id=0x%08x (%s) clusters=%d cores/cluster=%d warps/core=%d threads/warp=%d total_warps=%d total_threads=%d",
		pi.PlatformID, pi.PlatformName, pi.NumClusters, pi.NumCores, pi.NumWarps, pi.NumThreads, pi.NumTotalWarps, pi.NumTotalThreads)
}

// numWindows returns ceil(total_warps/32), the number of 32-wide selection
// windows the current platform spans.
func (b *Backend) numWindows() int {
	total := int(b.st.platInfo.NumTotalWarps)
	return (total + 31) / 32
}
