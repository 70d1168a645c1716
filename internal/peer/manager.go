// Package peer runs the client side of a video chat: one WebRTC peer
// connection per remote socket id, negotiated over the relay.
package peer

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/logging"
	"github.com/BioHazard786/huddle/internal/protocol"
)

// DataChannelLabel names the chat channel opened by the offering side.
const DataChannelLabel = "huddle"

// maxEarlyCandidates bounds candidates held for a peer not created yet.
const maxEarlyCandidates = 64

// lateCandidateWindow is how long candidates from a stopped peer are dropped
// instead of held.
const lateCandidateWindow = 10 * time.Second

// Signaler delivers relay events. *signaling.Client satisfies it.
type Signaler interface {
	Send(event string, payload any) error
}

// EventKind tells which field of Event is set.
type EventKind int

const (
	EventState EventKind = iota
	EventHello
	EventText
	EventTrack
	EventClosed
)

// Event reports something that happened on a peer connection.
type Event struct {
	Kind   EventKind
	PeerID string
	State  webrtc.PeerConnectionState
	Hello  HelloPayload
	Text   string
	Track  string
}

// Config configures a Manager.
type Config struct {
	// Configuration holds the ICE servers and transport policy.
	Configuration webrtc.Configuration

	// API overrides the default pion API, e.g. to run over a virtual network.
	API *webrtc.API

	DeviceName string
	Version    string
	Logger     *slog.Logger
}

// peerConn is one remote participant.
type peerConn struct {
	id string
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	pending   []webrtc.ICECandidateInit
	remoteSet bool
}

// Manager owns every peer connection of one chat client.
type Manager struct {
	api    *webrtc.API
	conf   webrtc.Configuration
	sig    Signaler
	hello  HelloPayload
	logger *slog.Logger
	events chan Event

	mu     sync.Mutex
	peers  map[string]*peerConn
	early  map[string][]webrtc.ICECandidateInit
	gone   map[string]time.Time
	closed bool
}

// NewManager creates a manager that negotiates through sig.
func NewManager(sig Signaler, cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	api := cfg.API
	if api == nil {
		var err error
		if api, err = newAPI(os.Stderr); err != nil {
			return nil, err
		}
	}

	return &Manager{
		api:    api,
		conf:   cfg.Configuration,
		sig:    sig,
		hello:  HelloPayload{DeviceName: cfg.DeviceName, Version: cfg.Version},
		logger: cfg.Logger,
		events: make(chan Event, 64),
		peers:  make(map[string]*peerConn),
		early:  make(map[string][]webrtc.ICECandidateInit),
		gone:   make(map[string]time.Time),
	}, nil
}

func newAPI(logOutput io.Writer) (*webrtc.API, error) {
	se := webrtc.SettingEngine{
		LoggerFactory: logging.PionFactory(logOutput),
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

// Events streams peer activity. Events are dropped when nobody reads.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Start creates the connection to peerID. With createOffer the manager opens
// the data channel and sends an offer; otherwise it waits for the remote
// offer. Start is a no-op for a peer that already exists.
func (m *Manager) Start(peerID string, createOffer bool) error {
	p, created, err := m.getOrCreate(peerID)
	if err != nil || !created || !createOffer {
		return err
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		_, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			m.drop(peerID)
			return wrapError("add transceiver", peerID, err, kind.String())
		}
	}

	ordered := true
	dc, err := p.pc.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		m.drop(peerID)
		return newError("create data channel", peerID, err)
	}
	m.attach(p, dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		m.drop(peerID)
		return newError("create offer", peerID, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		m.drop(peerID)
		return newError("set local description", peerID, err)
	}

	return m.sendDescription(peerID, *p.pc.LocalDescription())
}

// HandleSessionDescription applies a relayed offer or answer from peerID.
// An offer from an unknown peer creates the connection.
func (m *Manager) HandleSessionDescription(peerID string, raw json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return wrapError("handle description", peerID, ErrInvalidSignal, err.Error())
	}

	switch desc.Type {
	case webrtc.SDPTypeOffer:
		p, _, err := m.getOrCreate(peerID)
		if err != nil {
			return err
		}
		if err := m.setRemote(p, desc); err != nil {
			return err
		}

		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return newError("create answer", peerID, err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return newError("set local description", peerID, err)
		}
		return m.sendDescription(peerID, *p.pc.LocalDescription())

	case webrtc.SDPTypeAnswer:
		p, ok := m.lookup(peerID)
		if !ok {
			return newError("handle answer", peerID, ErrUnknownPeer)
		}
		return m.setRemote(p, desc)

	default:
		return wrapError("handle description", peerID, ErrUnexpectedSDP, desc.Type.String())
	}
}

// HandleICECandidate adds a relayed candidate. Candidates that arrive before
// the remote description, or before the peer exists, are held and applied
// later.
func (m *Manager) HandleICECandidate(peerID string, raw json.RawMessage) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &cand); err != nil {
		return wrapError("parse ICE candidate", peerID, ErrInvalidSignal, err.Error())
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return newError("add ICE candidate", peerID, ErrManagerClosed)
	}
	p, ok := m.peers[peerID]
	if !ok {
		if stopped, gone := m.gone[peerID]; gone {
			if time.Since(stopped) < lateCandidateWindow {
				m.mu.Unlock()
				return nil
			}
			delete(m.gone, peerID)
		}
		if len(m.early[peerID]) < maxEarlyCandidates {
			m.early[peerID] = append(m.early[peerID], cand)
		}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, cand)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(cand); err != nil {
		return newError("add ICE candidate", peerID, err)
	}
	return nil
}

// Stop closes the connection to peerID and drops anything held for it,
// including candidates that trickle in shortly afterwards.
func (m *Manager) Stop(peerID string) error {
	m.mu.Lock()
	p, ok := m.peers[peerID]
	delete(m.peers, peerID)
	delete(m.early, peerID)
	m.markGone(peerID)
	m.mu.Unlock()

	if !ok {
		return newError("stop", peerID, ErrUnknownPeer)
	}

	err := p.pc.Close()
	m.emit(Event{Kind: EventClosed, PeerID: peerID})
	if err != nil {
		return newError("close", peerID, err)
	}
	return nil
}

// CloseAll closes every connection. The manager accepts new peers again
// afterwards unless shutdown is true.
func (m *Manager) CloseAll(shutdown bool) error {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[string]*peerConn)
	m.early = make(map[string][]webrtc.ICECandidateInit)
	for id := range peers {
		m.markGone(id)
	}
	if shutdown {
		m.closed = true
	}
	m.mu.Unlock()

	var errs []error
	for id, p := range peers {
		if err := p.pc.Close(); err != nil {
			errs = append(errs, newError("close", id, err))
		}
		m.emit(Event{Kind: EventClosed, PeerID: id})
	}
	return errors.Join(errs...)
}

// Peers returns the socket ids of all live connections in sorted order.
func (m *Manager) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SendText writes body to every open data channel and returns how many
// peers it reached.
func (m *Manager) SendText(body string) (int, error) {
	data, err := EncodeFrame(FrameText, TextPayload{Body: body})
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	peers := make([]*peerConn, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	sent := 0
	var errs []error
	for _, p := range peers {
		p.mu.Lock()
		dc := p.dc
		p.mu.Unlock()

		if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
			continue
		}
		if err := dc.Send(data); err != nil {
			errs = append(errs, newError("send text", p.id, err))
			continue
		}
		sent++
	}
	if sent == 0 && len(errs) == 0 {
		return 0, ErrChannelNotOpen
	}
	return sent, errors.Join(errs...)
}

func (m *Manager) lookup(peerID string) (*peerConn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	return p, ok
}

func (m *Manager) getOrCreate(peerID string) (*peerConn, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, newError("start", peerID, ErrManagerClosed)
	}
	if p, ok := m.peers[peerID]; ok {
		return p, false, nil
	}

	pc, err := m.api.NewPeerConnection(m.conf)
	if err != nil {
		return nil, false, newError("create peer connection", peerID, err)
	}

	p := &peerConn{id: peerID, pc: pc, pending: m.early[peerID]}
	delete(m.early, peerID)
	delete(m.gone, peerID)
	m.peers[peerID] = p
	m.setupHandlers(p)
	return p, true, nil
}

// markGone records that peerID was stopped and forgets stale records.
// Callers hold m.mu.
func (m *Manager) markGone(peerID string) {
	now := time.Now()
	for id, stopped := range m.gone {
		if now.Sub(stopped) >= lateCandidateWindow {
			delete(m.gone, id)
		}
	}
	m.gone[peerID] = now
}

// drop removes a half-built connection after a negotiation error.
func (m *Manager) drop(peerID string) {
	m.mu.Lock()
	p, ok := m.peers[peerID]
	delete(m.peers, peerID)
	m.mu.Unlock()
	if ok {
		p.pc.Close()
	}
}

func (m *Manager) setupHandlers(p *peerConn) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		err = m.sig.Send(protocol.EventRelayICECandidate, protocol.ICECandidateRelay{
			SocketID:     p.id,
			ICECandidate: raw,
		})
		if err != nil {
			m.logger.Debug("failed to relay ICE candidate", "socketId", p.id, "error", err)
		}
	})

	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Debug("peer connection state", "socketId", p.id, "state", state.String())
		m.emit(Event{Kind: EventState, PeerID: p.id, State: state})
		if state == webrtc.PeerConnectionStateFailed {
			go m.Stop(p.id)
		}
	})

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			return
		}
		m.attach(p, dc)
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.emit(Event{Kind: EventTrack, PeerID: p.id, Track: track.Kind().String()})
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})
}

func (m *Manager) attach(p *peerConn, dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		data, err := EncodeFrame(FrameHello, m.hello)
		if err != nil {
			return
		}
		if err := dc.Send(data); err != nil {
			m.logger.Debug("failed to send hello", "socketId", p.id, "error", err)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		frame, err := DecodeFrame(msg.Data)
		if err != nil {
			m.logger.Debug("dropping frame", "socketId", p.id, "error", err)
			return
		}

		switch frame.Type {
		case FrameHello:
			var hello HelloPayload
			if err := frame.DecodePayload(&hello); err == nil {
				m.emit(Event{Kind: EventHello, PeerID: p.id, Hello: hello})
			}
		case FrameText:
			var text TextPayload
			if err := frame.DecodePayload(&text); err == nil {
				m.emit(Event{Kind: EventText, PeerID: p.id, Text: text.Body})
			}
		default:
			m.logger.Debug("unknown frame type", "socketId", p.id, "type", frame.Type)
		}
	})
}

func (m *Manager) setRemote(p *peerConn, desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return newError("set remote description", p.id, err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, cand := range pending {
		if err := p.pc.AddICECandidate(cand); err != nil {
			m.logger.Debug("failed to add held candidate", "socketId", p.id, "error", err)
		}
	}
	return nil
}

func (m *Manager) sendDescription(peerID string, desc webrtc.SessionDescription) error {
	raw, err := json.Marshal(desc)
	if err != nil {
		return newError("encode description", peerID, err)
	}
	return m.sig.Send(protocol.EventRelaySessionDescription, protocol.SessionDescriptionRelay{
		SocketID:           peerID,
		SessionDescription: raw,
	})
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Debug("peer event dropped", "socketId", ev.PeerID, "kind", ev.Kind)
	}
}
