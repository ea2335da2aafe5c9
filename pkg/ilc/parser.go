// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ilc

import (
	"math"

	"go.uber.org/zap"

	"github.com/Thermoquad/mirrorsupport/pkg/actuator"
	"github.com/Thermoquad/mirrorsupport/pkg/codec"
)

// RawFrame is one frame cut out of a response FIFO buffer.
type RawFrame struct {
	Data      []byte
	Timestamp float64
	// Truncated is set when the buffer ended before the frame timestamp.
	Truncated bool
}

// CRCValid reports whether the trailing two bytes hold the Modbus CRC of the rest.
func (f RawFrame) CRCValid() bool {
	n := len(f.Data)
	if n < 4 {
		return false
	}
	got := uint16(f.Data[n-2]) | uint16(f.Data[n-1])<<8
	return CalculateCRC(f.Data[:n-2]) == got
}

// Address returns the first frame byte.
func (f RawFrame) Address() uint8 {
	if len(f.Data) == 0 {
		return 0
	}
	return f.Data[0]
}

// Function returns the second frame byte.
func (f RawFrame) Function() uint8 {
	if len(f.Data) < 2 {
		return 0
	}
	return f.Data[1]
}

// Payload returns the bytes between the function code and the CRC.
func (f RawFrame) Payload() []byte {
	if len(f.Data) < 4 {
		return nil
	}
	return f.Data[2 : len(f.Data)-2]
}

// wordReader walks a response FIFO buffer.
type wordReader struct {
	words []uint16
	idx   int
}

func (r *wordReader) done() bool { return r.idx >= len(r.words) }

// batchTimestamp reads the four raw timestamp words heading a response buffer.
func (r *wordReader) batchTimestamp() (uint64, bool) {
	if len(r.words)-r.idx < TimestampWords {
		r.idx = len(r.words)
		return 0, false
	}
	var ts uint64
	for i := 0; i < TimestampWords; i++ {
		ts = ts<<16 | uint64(r.words[r.idx])
		r.idx++
	}
	return ts, true
}

// nextFrame collects data words up to the first word tagged 0xB000, then the
// frame timestamp words that follow.
func (r *wordReader) nextFrame() RawFrame {
	var f RawFrame
	for !r.done() && r.words[r.idx]&TagMask != RxTimestamp {
		f.Data = append(f.Data, uint8(r.words[r.idx]))
		r.idx++
	}
	var ts uint64
	n := 0
	for n < TimestampWords && !r.done() && r.words[r.idx]&TagMask == RxTimestamp {
		ts = ts<<12 | uint64(r.words[r.idx]&^TagMask)
		r.idx++
		n++
	}
	f.Truncated = n != TimestampWords
	f.Timestamp = float64(ts) / 1e6
	return f
}

// SplitFrames cuts a response buffer into its batch timestamp and frames
// without interpreting them.
func SplitFrames(words []uint16) (float64, []RawFrame) {
	r := &wordReader{words: words}
	raw, _ := r.batchTimestamp()
	var frames []RawFrame
	for !r.done() {
		frames = append(frames, r.nextFrame())
	}
	return float64(raw) / 1e6, frames
}

// Parser decodes response buffers into State.
type Parser struct {
	subnets   *SubnetMap
	state     *State
	responses *Responses
	sink      WarningSink
	stats     *Statistics
	firmware  *FirmwareCheck
	log       *zap.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithWarningSink routes warnings to s.
func WithWarningSink(s WarningSink) ParserOption {
	return func(p *Parser) { p.sink = s }
}

// WithStatistics counts frames and warnings into s.
func WithStatistics(s *Statistics) ParserOption {
	return func(p *Parser) { p.stats = s }
}

// WithFirmwareCheck validates ReportServerID revisions.
func WithFirmwareCheck(fc *FirmwareCheck) ParserOption {
	return func(p *Parser) { p.firmware = fc }
}

// WithLogger sets the parser logger.
func WithLogger(l *zap.Logger) ParserOption {
	return func(p *Parser) { p.log = l }
}

// NewParser returns a parser writing into st and crediting replies to r.
func NewParser(m *SubnetMap, st *State, r *Responses, opts ...ParserOption) *Parser {
	p := &Parser{
		subnets:   m,
		state:     st,
		responses: r,
		sink:      nopSink{},
		stats:     NewStatistics(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Statistics returns the parser counters.
func (p *Parser) Statistics() *Statistics { return p.stats }

// State returns the decoded state.
func (p *Parser) State() *State { return p.state }

func (p *Parser) warn(w Warning) {
	p.stats.Warning(w.Cause())
	p.sink.ILCWarning(w)
}

// Parse decodes every frame of one subnet's response buffer. Bad frames raise
// a warning and are skipped; parsing always continues with the next frame.
func (p *Parser) Parse(words []uint16, subnet uint8) {
	if len(words) == 0 {
		return
	}
	r := &wordReader{words: words}
	raw, ok := r.batchTimestamp()
	batchTS := float64(raw) / 1e6
	if !ok {
		p.warn(newWarning(batchTS, -1, Key{Subnet: subnet}, 0, WarnInvalidLength))
		return
	}
	if ValidSubnet(subnet) {
		p.state.BatchTimestamp[subnet-1] = batchTS
	}

	for !r.done() {
		frame := r.nextFrame()
		p.stats.Frame()
		p.parseFrame(frame, subnet)
	}
}

func (p *Parser) parseFrame(frame RawFrame, subnet uint8) {
	key := Key{Subnet: subnet, Address: frame.Address()}
	// a frame cut short of its timestamp may also be missing data words
	if frame.Truncated || len(frame.Data) < 4 {
		p.warn(newWarning(frame.Timestamp, -1, key, FunctionCode(frame.Function()), WarnInvalidLength))
		return
	}
	if !frame.CRCValid() {
		p.warn(newWarning(frame.Timestamp, -1, key, FunctionCode(frame.Function()), WarnInvalidCRC))
		return
	}
	if !ValidSubnet(subnet) {
		p.warn(newWarning(frame.Timestamp, -1, key, FunctionCode(frame.Function()), WarnUnknownSubnet))
		return
	}
	entry := p.subnets.Lookup(subnet, key.Address)
	if entry.Type == TypeUnknown {
		p.warn(newWarning(frame.Timestamp, -1, key, FunctionCode(frame.Function()), WarnUnknownAddress))
		return
	}

	fn := frame.Function()
	payload := frame.Payload()
	if fn&ExceptionFlag != 0 {
		base := FunctionCode(fn &^ ExceptionFlag)
		if !base.Known() {
			p.warn(newWarning(frame.Timestamp, entry.ActuatorID, key, base, WarnUnknownFunction))
			return
		}
		if len(payload) != 1 {
			p.warn(newWarning(frame.Timestamp, entry.ActuatorID, key, base, WarnInvalidLength))
			return
		}
		p.responses.Received(entry)
		p.warn(newWarning(frame.Timestamp, entry.ActuatorID, key, base, exceptionWarning(payload[0])))
		return
	}

	handler, ok := p.handler(entry.Type, FunctionCode(fn))
	if !ok {
		p.warn(newWarning(frame.Timestamp, entry.ActuatorID, key, FunctionCode(fn), WarnUnknownFunction))
		return
	}
	if !handler(p, entry, key, payload, frame.Timestamp) {
		p.warn(newWarning(frame.Timestamp, entry.ActuatorID, key, FunctionCode(fn), WarnInvalidLength))
		return
	}
	if info := p.state.InfoFor(entry); info != nil {
		info.Responded = true
	}
	p.responses.Received(entry)
	p.stats.Response(FunctionCode(fn))
}

// handlerFunc decodes one payload; false means the payload length was wrong.
type handlerFunc func(p *Parser, e Entry, key Key, payload []byte, ts float64) bool

var commonHandlers = map[FunctionCode]handlerFunc{
	FuncReportServerID:                    (*Parser).parseServerID,
	FuncReportServerStatus:                (*Parser).parseServerStatus,
	FuncChangeMode:                        (*Parser).parseChangeMode,
	FuncSetADCScanRate:                    (*Parser).parseADCScanRate,
	FuncSetADCChannelOffsetAndSensitivity: parseEmpty,
	FuncEraseILCApplication:               parseEmpty,
	FuncWriteApplicationPage:              parseEmpty,
	FuncVerifyUserApplication:             (*Parser).parseVerify,
	FuncResetServer:                       parseEmpty,
	FuncReadCalibration:                   (*Parser).parseCalibration,
}

var typeHandlers = map[Type]map[FunctionCode]handlerFunc{
	TypeForceActuator: {
		FuncSetBoostValveDCAGains:  parseEmpty,
		FuncReadBoostValveDCAGains: (*Parser).parseBoostGains,
		FuncForceDemand:            (*Parser).parseForceStatus,
		FuncPneumaticForceStatus:   (*Parser).parseForceStatus,
		FuncReportDCAID:            (*Parser).parseDCAID,
		FuncReportDCAStatus:        (*Parser).parseDCAStatus,
	},
	TypeHardpoint: {
		FuncStepMotor:                       (*Parser).parseHardpointStatus,
		FuncElectromechanicalForceAndStatus: (*Parser).parseHardpointStatus,
	},
	TypeHardpointMonitor: {
		FuncReadDCAPressure: (*Parser).parsePressure,
		FuncReportDCAID:     (*Parser).parseDCAID,
		FuncReportDCAStatus: (*Parser).parseDCAStatus,
		FuncReportLVDT:      (*Parser).parseLVDT,
	},
}

func (p *Parser) handler(t Type, fn FunctionCode) (handlerFunc, bool) {
	if h, ok := typeHandlers[t][fn]; ok {
		return h, true
	}
	h, ok := commonHandlers[fn]
	return h, ok
}

func parseEmpty(_ *Parser, _ Entry, _ Key, payload []byte, _ float64) bool {
	return len(payload) == 0
}

func readF32(b []byte, idx *int) float32 {
	v, _ := codec.GetU32(b, idx)
	return math.Float32frombits(v)
}

func readU48(b []byte, idx *int) uint64 {
	hi, _ := codec.GetU16(b, idx)
	lo, _ := codec.GetU32(b, idx)
	return uint64(hi)<<32 | uint64(lo)
}

func (p *Parser) parseServerID(e Entry, key Key, payload []byte, _ float64) bool {
	if len(payload) < 13 || int(payload[0]) != len(payload)-1 {
		return false
	}
	idx := 1
	id := ServerID{UniqueID: readU48(payload, &idx)}
	id.ApplicationType, _ = codec.GetU8(payload, &idx)
	id.NetworkNodeType, _ = codec.GetU8(payload, &idx)
	id.SelectedOptions, _ = codec.GetU8(payload, &idx)
	id.NetworkNodeOpts, _ = codec.GetU8(payload, &idx)
	id.MajorRevision, _ = codec.GetU8(payload, &idx)
	id.MinorRevision, _ = codec.GetU8(payload, &idx)
	id.FirmwareName = string(payload[idx:])
	id.FirmwareAccepted = p.firmware.Accept(id.MajorRevision, id.MinorRevision)

	info := p.state.InfoFor(e)
	if !id.FirmwareAccepted && (!info.IDReported || info.ID.FirmwareAccepted) {
		p.log.Warn("ILC firmware rejected",
			zap.Stringer("ilc", key),
			zap.Int32("actuator", e.ActuatorID),
			zap.String("version", FirmwareVersion(id.MajorRevision, id.MinorRevision)),
			zap.String("constraint", p.firmware.String()))
	}
	info.ID = id
	info.IDReported = true
	return true
}

func (p *Parser) parseServerStatus(e Entry, _ Key, payload []byte, _ float64) bool {
	if len(payload) != 5 {
		return false
	}
	idx := 0
	mode, _ := codec.GetU8(payload, &idx)
	status, _ := codec.GetU16(payload, &idx)
	faults, _ := codec.GetU16(payload, &idx)
	info := p.state.InfoFor(e)
	info.Mode = Mode(mode)
	info.Status = ServerStatus(status)
	info.Faults = ServerFaults(faults)
	return true
}

func (p *Parser) parseChangeMode(e Entry, _ Key, payload []byte, _ float64) bool {
	if len(payload) != 2 {
		return false
	}
	idx := 0
	mode, _ := codec.GetU16(payload, &idx)
	p.state.InfoFor(e).Mode = Mode(mode)
	return true
}

func (p *Parser) parseADCScanRate(e Entry, _ Key, payload []byte, _ float64) bool {
	if len(payload) != 1 {
		return false
	}
	p.state.InfoFor(e).ADCScanRate = payload[0]
	return true
}

func (p *Parser) parseVerify(e Entry, _ Key, payload []byte, _ float64) bool {
	if len(payload) != 2 {
		return false
	}
	idx := 0
	p.state.InfoFor(e).VerifyStatus, _ = codec.GetU16(payload, &idx)
	return true
}

func (p *Parser) parseCalibration(e Entry, _ Key, payload []byte, _ float64) bool {
	info := p.state.InfoFor(e)
	if len(payload) != 4*len(info.Calibration) {
		return false
	}
	idx := 0
	for i := range info.Calibration {
		info.Calibration[i] = readF32(payload, &idx)
	}
	return true
}

func (p *Parser) parseBoostGains(e Entry, _ Key, payload []byte, _ float64) bool {
	if len(payload) != 8 {
		return false
	}
	idx := 0
	info := p.state.InfoFor(e)
	info.BoostGains[0] = readF32(payload, &idx)
	info.BoostGains[1] = readF32(payload, &idx)
	return true
}

// parseForceStatus decodes ForceDemand and PneumaticForceStatus replies. Dual
// axis actuators carry a second force.
func (p *Parser) parseForceStatus(e Entry, key Key, payload []byte, ts float64) bool {
	want := 5
	if IsDualAxis(key.Address) {
		want = 9
	}
	if len(payload) != want {
		return false
	}
	idx := 0
	status, _ := codec.GetU8(payload, &idx)
	primary := readF32(payload, &idx)
	var secondary float32
	if want == 9 {
		secondary = readF32(payload, &idx)
	}
	x, y, z := actuator.CylinderToMirror(e.Orientation, float64(primary), float64(secondary))

	fa := &p.state.ForceActuators[e.DataIndex]
	fa.Status = PneumaticStatus(status)
	fa.Primary = primary
	fa.Secondary = secondary
	fa.X, fa.Y, fa.Z = float32(x), float32(y), float32(z)
	fa.Timestamp = ts
	return true
}

func (p *Parser) parseDCAID(e Entry, _ Key, payload []byte, _ float64) bool {
	if len(payload) != 9 {
		return false
	}
	idx := 0
	info := p.state.InfoFor(e)
	info.DCA.UniqueID = readU48(payload, &idx)
	info.DCA.FirmwareType, _ = codec.GetU8(payload, &idx)
	info.DCA.MajorRevision, _ = codec.GetU8(payload, &idx)
	info.DCA.MinorRevision, _ = codec.GetU8(payload, &idx)
	return true
}

func (p *Parser) parseDCAStatus(e Entry, _ Key, payload []byte, ts float64) bool {
	if len(payload) != 2 {
		return false
	}
	idx := 0
	status, _ := codec.GetU16(payload, &idx)
	if e.Type == TypeHardpointMonitor {
		p.state.Monitors[e.DataIndex].DCAStatus = DCAStatus(status)
		p.state.Monitors[e.DataIndex].Timestamp = ts
	}
	p.state.InfoFor(e).DCAStatus = DCAStatus(status)
	return true
}

func (p *Parser) parseHardpointStatus(e Entry, _ Key, payload []byte, ts float64) bool {
	if len(payload) != 9 {
		return false
	}
	idx := 0
	status, _ := codec.GetU8(payload, &idx)
	encoder, _ := codec.GetI32(payload, &idx)
	force := readF32(payload, &idx)

	hp := &p.state.Hardpoints[e.DataIndex]
	hp.Status = HardpointStatus(status)
	hp.Encoder = encoder
	hp.Force = force
	hp.Timestamp = ts
	return true
}

func (p *Parser) parsePressure(e Entry, _ Key, payload []byte, ts float64) bool {
	if len(payload) != 16 {
		return false
	}
	idx := 0
	m := &p.state.Monitors[e.DataIndex]
	for i := range m.Pressure {
		m.Pressure[i] = readF32(payload, &idx)
	}
	m.Timestamp = ts
	return true
}

func (p *Parser) parseLVDT(e Entry, _ Key, payload []byte, ts float64) bool {
	if len(payload) != 8 {
		return false
	}
	idx := 0
	m := &p.state.Monitors[e.DataIndex]
	m.BreakawayLVDT = readF32(payload, &idx)
	m.DisplacementLVDT = readF32(payload, &idx)
	m.Timestamp = ts
	return true
}
