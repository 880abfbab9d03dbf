// Hand-written gomock mock of the Transport interface, in the shape mockgen
// produces.

package transport

import (
	reflect "reflect"
	time "time"

	gomock "go.uber.org/mock/gomock"
)

// MockTransport is a mock of the Transport interface, used by the backend,
// breakpoint and gdbstub test suites to drive DM register traffic without a
// real link.
type MockTransport struct {
	ctrl     *gomock.Controller
	recorder *MockTransportMockRecorder
}

// MockTransportMockRecorder is the mock recorder for MockTransport.
type MockTransportMockRecorder struct {
	mock *MockTransport
}

// NewMockTransport creates a new mock instance.
func NewMockTransport(ctrl *gomock.Controller) *MockTransport {
	mock := &MockTransport{ctrl: ctrl}
	mock.recorder = &MockTransportMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockTransport) EXPECT() *MockTransportMockRecorder {
	return m.recorder
}

func (m *MockTransport) Connect(args map[string]string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Connect", args)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTransportMockRecorder) Connect(args interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Connect", reflect.TypeOf((*MockTransport)(nil).Connect), args)
}

func (m *MockTransport) Disconnect() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Disconnect")
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTransportMockRecorder) Disconnect() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Disconnect", reflect.TypeOf((*MockTransport)(nil).Disconnect))
}

func (m *MockTransport) Connected() bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Connected")
	ret0, _ := ret[0].(bool)
	return ret0
}

func (mr *MockTransportMockRecorder) Connected() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Connected", reflect.TypeOf((*MockTransport)(nil).Connected))
}

func (m *MockTransport) SetTimeout(d time.Duration) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetTimeout", d)
}

func (mr *MockTransportMockRecorder) SetTimeout(d interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetTimeout", reflect.TypeOf((*MockTransport)(nil).SetTimeout), d)
}

func (m *MockTransport) Handshake() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Handshake")
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTransportMockRecorder) Handshake() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Handshake", reflect.TypeOf((*MockTransport)(nil).Handshake))
}

func (m *MockTransport) ReadReg(addr uint32) (uint32, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ReadReg", addr)
	ret0, _ := ret[0].(uint32)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockTransportMockRecorder) ReadReg(addr interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReadReg", reflect.TypeOf((*MockTransport)(nil).ReadReg), addr)
}

func (m *MockTransport) WriteReg(addr, data uint32) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "WriteReg", addr, data)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTransportMockRecorder) WriteReg(addr, data interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "WriteReg", reflect.TypeOf((*MockTransport)(nil).WriteReg), addr, data)
}

func (m *MockTransport) ReadRegs(addrs []uint32) ([]uint32, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ReadRegs", addrs)
	ret0, _ := ret[0].([]uint32)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockTransportMockRecorder) ReadRegs(addrs interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ReadRegs", reflect.TypeOf((*MockTransport)(nil).ReadRegs), addrs)
}

func (m *MockTransport) WriteRegs(addrs, data []uint32) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "WriteRegs", addrs, data)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTransportMockRecorder) WriteRegs(addrs, data interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "WriteRegs", reflect.TypeOf((*MockTransport)(nil).WriteRegs), addrs, data)
}

var _ Transport = (*MockTransport)(nil)
