/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"

	"navlab.io/gnss/go-fusion/pkg/config"
	"navlab.io/gnss/go-fusion/pkg/framer"
	"navlab.io/gnss/go-fusion/pkg/layers"
	"navlab.io/gnss/go-fusion/pkg/log"
	"navlab.io/gnss/go-fusion/pkg/messages"
	"navlab.io/gnss/go-fusion/pkg/srv"
)

const (
	WriterChSize = 100
	InChSize     = 100

	// FramerBufferSize bounds a single FusionEngine message.
	FramerBufferSize = 65536

	// stateFlushEvery is the number of messages between state persists.
	stateFlushEvery = 256

	dialTimeout      = 5 * time.Second
	reconnectBackoff = 5 * time.Second
)

// pipeline is the per-receiver decoding chain. The reader goroutine owns
// feed and addr; state is shared with the parser goroutine under mu.
type pipeline struct {
	name   string
	fusion *framer.FusionFramer
	rtcm   *framer.RTCMFramer
	ps     *PacketSource
	addr   *net.UDPAddr

	mu         sync.Mutex
	state      *StreamState
	headers    map[string]framer.MessageHeader
	seqValid   bool
	sinceFlush int

	// counters carried over from previous runs, the framer counts from
	// zero after a restart
	rtcmMsgBase uint64
	rtcmErrBase uint64
}

type CaptureServer struct {
	srv.Server
	api   *ApiServer
	state *State

	pipelines      map[string]*pipeline
	writers        map[string]io.Writer
	writerChs      map[string]chan []byte
	writerStateChs map[string]chan string

	udpConns map[int]*net.UDPConn

	connsMu sync.Mutex
	conns   map[string]net.Conn

	cmdSeq uint32
}

func NewCaptureServer(ctx context.Context, cfg *config.Config) (*CaptureServer, error) {
	log.Info("Initializing capture server with address: %s receivers: %d", cfg.IP, len(cfg.Receivers))

	uaddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.IP, config.DefaultListenPort))
	if err != nil {
		return nil, err
	}

	state, err := NewState(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &CaptureServer{
		Server: srv.Server{
			Context: ctx,
			Config:  cfg,
			UDPAddr: uaddr,
			ChOut:   make(chan srv.OutPacket),
		},
		state:          state,
		pipelines:      make(map[string]*pipeline),
		writers:        make(map[string]io.Writer),
		writerChs:      make(map[string]chan []byte),
		writerStateChs: make(map[string]chan string),
		udpConns:       make(map[int]*net.UDPConn),
		conns:          make(map[string]net.Conn),
	}

	registerMetrics()

	for _, receiver := range cfg.Receivers {
		pl := s.newPipeline(receiver.Name)
		if persisted, stateErr := state.GetStreamState(receiver.Name); stateErr == nil {
			pl.state = persisted
			pl.rtcmMsgBase = persisted.RTCMMessages
			pl.rtcmErrBase = persisted.RTCMErrors
		}
		if headers, headersErr := state.GetLastHeaders(receiver.Name); headersErr == nil {
			pl.headers = headers
		}
		s.pipelines[receiver.Name] = pl
		s.writers[receiver.Name] = io.Discard
		s.writerChs[receiver.Name] = make(chan []byte, WriterChSize)
		s.writerStateChs[receiver.Name] = make(chan string)
	}

	apiServer, err := NewApiServer(ctx, cfg, s)
	if err != nil {
		return nil, err
	}
	s.api = apiServer

	return s, nil
}

func (s *CaptureServer) newPipeline(name string) *pipeline {
	pl := &pipeline{
		name:    name,
		fusion:  framer.NewFusionFramer(FramerBufferSize),
		rtcm:    framer.NewRTCMFramer(framer.RTCMMaxFrameSize),
		ps:      NewPacketSource(),
		state:   &StreamState{},
		headers: make(map[string]framer.MessageHeader),
	}

	pl.fusion.SetCallback(func(header framer.MessageHeader, payload []byte) {
		frame := framer.BuildMessage(header, payload)
		captureInfo := gopacket.CaptureInfo{
			Length:        len(frame),
			CaptureLength: len(frame),
			Timestamp:     time.Now(),
			AncillaryData: []interface{}{pl.addr, pl.name},
		}
		pl.ps.ChIn <- srv.InPacket{Data: frame, CaptureInfo: captureInfo}
	})

	pl.rtcm.SetCallback(func(messageType uint16, frame []byte) {
		recordFrame(pl.name, protocolRTCM)
		log.Debug("RTCM frame: receiver: %s type: %d size: %d", pl.name, messageType, len(frame))
	})

	return pl
}

// feed pushes one raw chunk from the wire into the receiver's pipeline.
// Runs on the reader goroutine; complete messages surface in the parser
// goroutine through the packet source.
func (s *CaptureServer) feed(pl *pipeline, addr *net.UDPAddr, chunk []byte) {
	recordBytes(pl.name, len(chunk))
	pl.mu.Lock()
	pl.state.BytesReceived += uint64(len(chunk))
	pl.mu.Unlock()

	data := make([]byte, len(chunk))
	copy(data, chunk)
	s.writerChs[pl.name] <- data

	pl.addr = addr
	pl.fusion.OnData(chunk)
}

func (s *CaptureServer) Run() error {
	errChan := make(chan error, 1)

	// one UDP socket per distinct listen port, receivers matched by
	// source address
	for _, receiver := range s.Config.Receivers {
		if receiver.Transport != config.TransportUDP {
			continue
		}
		if _, ok := s.udpConns[receiver.Port]; ok {
			continue
		}
		uaddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.Config.IP, receiver.Port))
		if err != nil {
			return err
		}
		conn, err := net.ListenUDP("udp", uaddr)
		if err != nil {
			return err
		}
		defer conn.Close()
		s.udpConns[receiver.Port] = conn
		go s.serveUDP(conn, errChan)
	}

	for _, receiver := range s.Config.Receivers {
		if receiver.Transport == config.TransportTCP {
			go s.serveTCP(receiver)
		}
	}

	go s.serveOut(errChan)

	for _, receiver := range s.Config.Receivers {
		go s.runWriter(receiver.Name)
		go s.runParser(receiver.Name)
	}

	go func() {
		errChan <- s.api.Run()
	}()

	defer s.state.Close()
	defer s.persistAll()
	defer s.Flush()

	select {
	case <-s.Context.Done():
		return s.Context.Err()
	case err := <-errChan:
		return err
	}
}

// serveUDP reads datagrams and routes them to pipelines by sender IP.
func (s *CaptureServer) serveUDP(conn *net.UDPConn, errChan chan<- error) {
	buffer := make([]byte, 65536)
	for {
		length, addr, readErr := conn.ReadFromUDP(buffer)
		if readErr != nil {
			errChan <- readErr
			return
		}
		log.Debug("Received packet from %s", addr)
		receiver, err := s.GetReceiverByIP(addr.IP)
		if err != nil {
			log.Debug("Drop packet. Receiver not found for given IP: %s", addr.IP)
			continue
		}
		s.feed(s.pipelines[receiver.Name], addr, buffer[:length])
	}
}

// serveTCP dials a stream receiver and keeps reconnecting until the
// server shuts down.
func (s *CaptureServer) serveTCP(receiver *config.Receiver) {
	for {
		select {
		case <-s.Context.Done():
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", receiver.Addr(), dialTimeout)
		if err != nil {
			log.Warning("Can not connect to receiver %s at %s: %s", receiver.Name, receiver.Addr(), err)
			time.Sleep(reconnectBackoff)
			continue
		}
		log.Info("Connected to receiver %s at %s", receiver.Name, receiver.Addr())
		s.setConn(receiver.Name, conn)

		addr := &net.UDPAddr{IP: net.ParseIP(receiver.IP), Port: receiver.Port}
		pl := s.pipelines[receiver.Name]
		buffer := make([]byte, 65536)
		for {
			length, readErr := conn.Read(buffer)
			if readErr != nil {
				log.Warning("Receiver %s disconnected: %s", receiver.Name, readErr)
				break
			}
			s.feed(pl, addr, buffer[:length])
		}

		s.setConn(receiver.Name, nil)
		conn.Close()
		pl.fusion.Reset()
		pl.rtcm.Reset()
		time.Sleep(reconnectBackoff)
	}
}

// serveOut sends queued packets to udp receivers.
func (s *CaptureServer) serveOut(errChan chan<- error) {
	for {
		outPacket := <-s.ChOut
		log.Debug("Sending packet to %s", outPacket.UDPAddr)
		conn, ok := s.udpConns[outPacket.UDPAddr.Port]
		if !ok {
			log.Error("No socket bound for port %d", outPacket.UDPAddr.Port)
			continue
		}
		if _, sendErr := conn.WriteToUDP(outPacket.Data, outPacket.UDPAddr); sendErr != nil {
			log.Error("Error while sending data to %s", outPacket.UDPAddr)
			errChan <- sendErr
			return
		}
	}
}

// runWriter drains the raw chunk queue for one receiver, switching
// capture files when told to.
func (s *CaptureServer) runWriter(name string) {
	for {
		select {
		case filename := <-s.writerStateChs[name]:
			if w, ok := s.writers[name].(*Writer); ok {
				w.Flush()
			}
			s.writers[name] = io.Discard
			if filename != "" {
				w, newWriterErr := NewWriter(filename)
				if newWriterErr != nil {
					log.Error("Error while creating writer: %s", newWriterErr)
				} else {
					s.writers[name] = w
				}
			}
		default:
		}
		select {
		case data := <-s.writerChs[name]:
			if _, writeErr := s.writers[name].Write(data); writeErr != nil {
				log.Error("Error while writing to capture file: %s", writeErr)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// runParser consumes reassembled messages for one receiver.
func (s *CaptureServer) runParser(name string) {
	pl := s.pipelines[name]
	source := gopacket.NewPacketSource(pl.ps, layers.FusionLayerType)
	for packet := range source.Packets() {
		fusionLayer := packet.Layer(layers.FusionLayerType)
		if fusionLayer == nil {
			recordFramingError(pl.name, protocolFusion)
			log.Error("Dropping message that does not decode: receiver: %s", pl.name)
			continue
		}
		fl := fusionLayer.(*layers.FusionLayer)
		s.handleMessage(pl, packet, fl)
	}
}

func (s *CaptureServer) handleMessage(pl *pipeline, packet gopacket.Packet, fl *layers.FusionLayer) {
	receiverName, err := srv.GetReceiverName(packet)
	if err != nil {
		log.Error("Error while getting receiver name from packet")
		return
	}
	recordFrame(receiverName, protocolFusion)
	log.Debug("Message: receiver: %s type: %s seq: %d size: %d",
		receiverName, messages.MessageType(fl.MessageType), fl.SequenceNumber, len(fl.Contents)+len(fl.Payload))

	pl.mu.Lock()
	s.trackSequence(pl, fl.SequenceNumber)
	pl.state.FusionMessages++
	pl.state.FusionBytes += uint64(len(fl.Contents) + len(fl.Payload))
	pl.state.UpdatedAt = srv.Now()
	pl.headers[messages.MessageType(fl.MessageType).String()] = fl.MessageHeader

	switch messages.MessageType(fl.MessageType) {
	case messages.MessageTypeLBandFrame:
		s.tunnelLBand(pl, fl)
	case messages.MessageTypeVersionInfo:
		s.storeVersion(pl, fl)
	case messages.MessageTypeEventNotification:
		s.logEvent(pl, fl)
	case messages.MessageTypeCommandResponse:
		s.logCommandResponse(pl, fl)
	}

	pl.sinceFlush++
	flush := pl.sinceFlush >= stateFlushEvery
	if flush {
		pl.sinceFlush = 0
	}
	snapshot := *pl.state
	var headers map[string]framer.MessageHeader
	if flush {
		headers = make(map[string]framer.MessageHeader, len(pl.headers))
		for messageType, header := range pl.headers {
			headers[messageType] = header
		}
	}
	pl.mu.Unlock()

	if flush {
		if err := s.state.SetStreamState(pl.name, &snapshot); err != nil {
			log.Error("Error while persisting stream state: receiver: %s: %s", pl.name, err)
		}
		if err := s.state.SetLastHeaders(pl.name, headers); err != nil {
			log.Error("Error while persisting last headers: receiver: %s: %s", pl.name, err)
		}
	}
}

// trackSequence detects holes in the FusionEngine sequence numbers.
// Callers hold pl.mu.
func (s *CaptureServer) trackSequence(pl *pipeline, seq uint32) {
	if !pl.seqValid {
		pl.seqValid = true
		pl.state.LastSequence = seq
		return
	}
	last := pl.state.LastSequence
	pl.state.LastSequence = seq
	switch {
	case seq == last+1:
	case seq > last+1:
		missed := uint64(seq - last - 1)
		pl.state.SequenceGaps += missed
		recordSequenceGap(pl.name, missed)
		log.Warning("Sequence gap: receiver: %s missed: %d messages (%d -> %d)", pl.name, missed, last, seq)
	default:
		log.Info("Sequence restarted: receiver: %s (%d -> %d)", pl.name, last, seq)
	}
}

// tunnelLBand feeds the corrections bytes carried by an LBand frame into
// the receiver's RTCM framer. Callers hold pl.mu.
func (s *CaptureServer) tunnelLBand(pl *pipeline, fl *layers.FusionLayer) {
	payload, err := messages.Decode(fl.MessageHeader, fl.Payload)
	if err != nil {
		log.Error("Error while decoding LBand frame: receiver: %s: %s", pl.name, err)
		return
	}
	lband := payload.(*messages.LBandFrame)
	errorsBefore := pl.rtcm.ErrorCount()
	pl.rtcm.OnData(lband.Data)
	for i := pl.rtcm.ErrorCount(); i > errorsBefore; i-- {
		recordFramingError(pl.name, protocolRTCM)
	}
	pl.state.RTCMMessages = pl.rtcmMsgBase + pl.rtcm.DecodedMessageCount()
	pl.state.RTCMErrors = pl.rtcmErrBase + pl.rtcm.ErrorCount()
}

// storeVersion persists the version report so the API can serve it.
// Callers hold pl.mu.
func (s *CaptureServer) storeVersion(pl *pipeline, fl *layers.FusionLayer) {
	payload, err := messages.Decode(fl.MessageHeader, fl.Payload)
	if err != nil {
		log.Error("Error while decoding version info: receiver: %s: %s", pl.name, err)
		return
	}
	version := payload.(*messages.VersionInfo)
	log.Info("Receiver %s version:\n%s", pl.name, version)
	if err := s.state.SetVersionInfo(pl.name, []byte(version.String())); err != nil {
		log.Error("Error while persisting version info: receiver: %s: %s", pl.name, err)
	}
}

// Callers hold pl.mu.
func (s *CaptureServer) logEvent(pl *pipeline, fl *layers.FusionLayer) {
	payload, err := messages.Decode(fl.MessageHeader, fl.Payload)
	if err != nil {
		log.Error("Error while decoding event notification: receiver: %s: %s", pl.name, err)
		return
	}
	event := payload.(*messages.EventNotification)
	log.Info("Receiver %s event: %s flags: 0x%x %s", pl.name, event.EventType, event.EventFlags, event.Description)
}

// Callers hold pl.mu.
func (s *CaptureServer) logCommandResponse(pl *pipeline, fl *layers.FusionLayer) {
	payload, err := messages.Decode(fl.MessageHeader, fl.Payload)
	if err != nil {
		log.Error("Error while decoding command response: receiver: %s: %s", pl.name, err)
		return
	}
	response := payload.(*messages.CommandResponse)
	log.Info("Receiver %s response to command %d: %s", pl.name, response.SourceSequenceNumber, response.Response)
}

func (s *CaptureServer) setConn(name string, conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if conn == nil {
		delete(s.conns, name)
	} else {
		s.conns[name] = conn
	}
}

func (s *CaptureServer) getConn(name string) net.Conn {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return s.conns[name]
}

// SendPayload serializes a message and sends it to a receiver over its
// configured transport.
func (s *CaptureServer) SendPayload(receiverName string, p messages.Payload) error {
	receiver := s.Config.GetReceiverByName(receiverName)
	if receiver == nil {
		return config.ErrReceiverNotFound{Name: receiverName}
	}

	seq := atomic.AddUint32(&s.cmdSeq, 1)
	frame, err := messages.BuildFrame(seq, p)
	if err != nil {
		return err
	}

	switch receiver.Transport {
	case config.TransportTCP:
		conn := s.getConn(receiverName)
		if conn == nil {
			return errors.New(fmt.Sprintf("Receiver not connected: %s", receiverName))
		}
		_, err = conn.Write(frame)
		return err
	default:
		udpAddr, err := net.ResolveUDPAddr("udp", receiver.Addr())
		if err != nil {
			return err
		}
		s.ChOut <- srv.OutPacket{Data: frame, UDPAddr: udpAddr}
		return nil
	}
}

// RequestVersion asks a receiver to report its version. The report
// arrives on the stream and is stored for the API.
func (s *CaptureServer) RequestVersion(receiverName string) error {
	return s.SendPayload(receiverName, &messages.MessageRequest{RequestedType: messages.MessageTypeVersionInfo})
}

// ResetReceiver commands a receiver to restart the subsystems selected
// by mask.
func (s *CaptureServer) ResetReceiver(receiverName string, mask uint32) error {
	return s.SendPayload(receiverName, &messages.Reset{Mask: mask})
}

// Stats returns a snapshot of the live per-receiver stream states.
func (s *CaptureServer) Stats() map[string]*StreamState {
	stats := make(map[string]*StreamState)
	for name, pl := range s.pipelines {
		pl.mu.Lock()
		snapshot := *pl.state
		pl.mu.Unlock()
		stats[name] = &snapshot
	}
	return stats
}

// Headers returns the last message header seen per message type, nil
// for an unknown receiver.
func (s *CaptureServer) Headers(receiverName string) map[string]framer.MessageHeader {
	pl, ok := s.pipelines[receiverName]
	if !ok {
		return nil
	}
	pl.mu.Lock()
	defer pl.mu.Unlock()
	headers := make(map[string]framer.MessageHeader, len(pl.headers))
	for messageType, header := range pl.headers {
		headers[messageType] = header
	}
	return headers
}

func (s *CaptureServer) persistAll() {
	for name, state := range s.Stats() {
		if err := s.state.SetStreamState(name, state); err != nil {
			log.Error("Error while persisting stream state: receiver: %s: %s", name, err)
		}
		if err := s.state.SetLastHeaders(name, s.Headers(name)); err != nil {
			log.Error("Error while persisting last headers: receiver: %s: %s", name, err)
		}
	}
}

func (s *CaptureServer) recordFilename(dir, prefix, name, suffix string) string {
	filename := fmt.Sprintf("%s_%s.raw", name, suffix)
	if prefix != "" {
		filename = fmt.Sprintf("%s_%s", prefix, filename)
	}
	return path.Join(dir, filename)
}

// Record starts writing the raw stream of every receiver to capture
// files under dir. An empty dir falls back to the configured capture
// directory.
func (s *CaptureServer) Record(dir, filePrefix string) error {
	if dir == "" {
		dir = s.Config.CaptureDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	timestamp := time.Now().UTC().Format("20060102_150405")
	for _, receiver := range s.Config.Receivers {
		filename := s.recordFilename(dir, filePrefix, receiver.Name, timestamp)
		log.Info("Recording receiver %s to %s", receiver.Name, filename)
		s.writerStateChs[receiver.Name] <- filename
	}
	return nil
}

// Flush stops recording and closes the capture files.
func (s *CaptureServer) Flush() {
	for _, receiver := range s.Config.Receivers {
		log.Info("Flush writer: %s", receiver.Name)
		s.writerStateChs[receiver.Name] <- ""
	}
}

type PacketSource struct {
	ChIn chan srv.InPacket
}

func NewPacketSource() *PacketSource {
	return &PacketSource{
		ChIn: make(chan srv.InPacket, InChSize),
	}
}

// ReadPacketData implements gopacket.PacketDataSource.
func (ps *PacketSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	p := <-ps.ChIn
	return p.Data, p.CaptureInfo, nil
}
