package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/peer"
	"github.com/BioHazard786/huddle/internal/protocol"
)

// typingIdle is how long the input may sit untouched before the client
// reports that it stopped typing.
const typingIdle = 3 * time.Second

// Actions is what the chat screen can ask of the session behind it.
type Actions interface {
	SendMessage(text string) error
	SetTyping(typing bool) error
	DeleteMessage(messageID string) error
	StartCall() error
	HangUp() error
	SendDirect(text string) (int, error)
}

// Messages fed into the chat program by the session.
type (
	MessageMsg   protocol.EnterMessageEvent
	JoinedMsg    protocol.JoinRoomEvent
	TypingMsg    protocol.TypingMessageEvent
	DeletedMsg   protocol.DeleteMessageEvent
	StopVideoMsg protocol.StopVideoChatEvent
	PeerMsg      peer.Event

	ErrorMsg struct{ Err error }

	DisconnectedMsg struct{}

	typingIdleMsg struct{ seq int }
)

type entry struct {
	id      string
	user    string
	body    string
	system  bool
	deleted bool
	direct  bool
}

// ChatModel is the bubbletea model behind `huddle chat`.
type ChatModel struct {
	userID  string
	roomID  string
	actions Actions

	entries []entry
	typers  map[string]bool
	peers   map[string]*PeerRow

	typing    bool
	typingSeq int

	viewport viewport.Model
	input    textinput.Model
	width    int
	quitting bool
}

// NewChatModel builds the chat screen for userID in roomID.
func NewChatModel(userID, roomID string, actions Actions) *ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Say something, or /help"
	ti.CharLimit = 2000
	ti.Prompt = "› "
	ti.Focus()

	return &ChatModel{
		userID:   userID,
		roomID:   roomID,
		actions:  actions,
		typers:   make(map[string]bool),
		peers:    make(map[string]*PeerRow),
		viewport: viewport.New(80, 20),
		input:    ti,
		width:    80,
	}
}

func (m *ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-5, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
		if m.input.Value() != before {
			cmds = append(cmds, m.noteTyping())
		}

	case typingIdleMsg:
		if msg.seq == m.typingSeq {
			m.stopTyping()
		}

	case MessageMsg:
		m.entries = append(m.entries, entry{id: msg.MessageID, user: msg.UserID, body: msg.Message})
		delete(m.typers, msg.UserID)
		m.refresh()

	case JoinedMsg:
		if msg.UserID != m.userID {
			m.addSystem(fmt.Sprintf("%s joined %s", msg.UserID, msg.RoomID))
		}

	case TypingMsg:
		if msg.UserID != m.userID {
			if msg.IsTyping {
				m.typers[msg.UserID] = true
			} else {
				delete(m.typers, msg.UserID)
			}
		}

	case DeletedMsg:
		for i := range m.entries {
			if m.entries[i].id == msg.MessageID && !m.entries[i].system {
				m.entries[i].deleted = true
			}
		}
		m.refresh()

	case StopVideoMsg:
		m.addSystem(fmt.Sprintf("%s %s left the video chat", IconVideo, msg.UserID))

	case PeerMsg:
		m.handlePeer(peer.Event(msg))

	case ErrorMsg:
		m.addError(msg.Err)

	case DisconnectedMsg:
		m.addSystem("disconnected from relay")
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

func (m *ChatModel) submit() tea.Cmd {
	line := m.input.Value()
	m.input.Reset()
	m.stopTyping()

	if strings.TrimSpace(line) == "" {
		return nil
	}

	cmd, err := ParseInput(line)
	if err != nil {
		m.addError(fmt.Errorf("%s: %w", strings.Fields(line)[0], err))
		return nil
	}

	switch cmd.Kind {
	case CmdSay:
		err = m.actions.SendMessage(cmd.Text)

	case CmdDelete:
		id, ok := m.messageAt(cmd.Index)
		if !ok {
			m.addSystem(fmt.Sprintf("no message #%d", cmd.Index))
			return nil
		}
		err = m.actions.DeleteMessage(id)

	case CmdCall:
		if err = m.actions.StartCall(); err == nil {
			m.addSystem(IconVideo + " calling the room")
		}

	case CmdHangup:
		if err = m.actions.HangUp(); err == nil {
			m.peers = make(map[string]*PeerRow)
			m.addSystem(IconVideo + " video stopped")
		}

	case CmdPeers:
		m.addSystem(PeerTableView(m.peerRows()))

	case CmdDirect:
		var n int
		if n, err = m.actions.SendDirect(cmd.Text); err == nil {
			m.entries = append(m.entries, entry{user: m.userID, body: cmd.Text, direct: true})
			m.addSystem(fmt.Sprintf("sent directly to %d peer(s)", n))
		}

	case CmdHelp:
		m.addSystem(helpText)

	case CmdQuit:
		m.quitting = true
		return tea.Quit
	}

	if err != nil {
		m.addError(err)
	}
	return nil
}

func (m *ChatModel) noteTyping() tea.Cmd {
	if m.input.Value() == "" {
		m.stopTyping()
		return nil
	}
	if !m.typing {
		m.typing = true
		if err := m.actions.SetTyping(true); err != nil {
			m.addError(err)
		}
	}

	m.typingSeq++
	seq := m.typingSeq
	return tea.Tick(typingIdle, func(time.Time) tea.Msg {
		return typingIdleMsg{seq: seq}
	})
}

func (m *ChatModel) stopTyping() {
	if !m.typing {
		return
	}
	m.typing = false
	m.typingSeq++
	if err := m.actions.SetTyping(false); err != nil {
		m.addError(err)
	}
}

func (m *ChatModel) handlePeer(ev peer.Event) {
	row, ok := m.peers[ev.PeerID]
	if !ok && ev.Kind != peer.EventClosed {
		row = &PeerRow{SocketID: ev.PeerID, State: webrtc.PeerConnectionStateNew.String()}
		m.peers[ev.PeerID] = row
	}

	switch ev.Kind {
	case peer.EventState:
		row.State = ev.State.String()
		if ev.State == webrtc.PeerConnectionStateConnected {
			m.addSystem(fmt.Sprintf("%s video connected with %s", IconVideo, m.peerName(ev.PeerID)))
		}
	case peer.EventHello:
		row.Device = ev.Hello.DeviceName
	case peer.EventText:
		m.entries = append(m.entries, entry{user: m.peerName(ev.PeerID), body: ev.Text, direct: true})
		m.refresh()
	case peer.EventTrack:
		m.addSystem(fmt.Sprintf("receiving %s from %s", ev.Track, m.peerName(ev.PeerID)))
	case peer.EventClosed:
		if ok {
			m.addSystem(fmt.Sprintf("%s video with %s ended", IconVideo, m.peerName(ev.PeerID)))
			delete(m.peers, ev.PeerID)
		}
	}
}

func (m *ChatModel) peerName(id string) string {
	if row, ok := m.peers[id]; ok && row.Device != "" {
		return row.Device
	}
	return truncate(id, 8)
}

func (m *ChatModel) peerRows() []PeerRow {
	rows := make([]PeerRow, 0, len(m.peers))
	for _, row := range m.peers {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SocketID < rows[j].SocketID })
	return rows
}

// messageAt returns the relay id of chat message number n, counting from 1.
func (m *ChatModel) messageAt(n int) (string, bool) {
	for _, e := range m.entries {
		if e.system || e.direct {
			continue
		}
		n--
		if n == 0 {
			return e.id, true
		}
	}
	return "", false
}

func (m *ChatModel) addSystem(text string) {
	m.entries = append(m.entries, entry{body: text, system: true})
	m.refresh()
}

func (m *ChatModel) addError(err error) {
	m.addSystem(ErrorStyle.Render(IconError + " " + err.Error()))
}

func (m *ChatModel) refresh() {
	var b strings.Builder
	n := 0
	for _, e := range m.entries {
		switch {
		case e.system:
			b.WriteString(SystemStyle.Render(e.body))
		case e.direct:
			fmt.Fprintf(&b, "%s %s %s", IndexStyle.Render("dm"), UserStyle(e.user).Render(e.user), e.body)
		default:
			n++
			body := e.body
			if e.deleted {
				body = DeletedStyle.Render("message deleted")
			}
			fmt.Fprintf(&b, "%s %s %s", IndexStyle.Render(fmt.Sprintf("#%d", n)), UserStyle(e.user).Render(e.user), body)
		}
		b.WriteByte('\n')
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *ChatModel) typingLine() string {
	if len(m.typers) == 0 {
		return ""
	}
	names := make([]string, 0, len(m.typers))
	for name := range m.typers {
		names = append(names, name)
	}
	sort.Strings(names)

	verb := "is"
	if len(names) > 1 {
		verb = "are"
	}
	return MutedStyle.Render(fmt.Sprintf("%s %s %s typing…", IconTyping, strings.Join(names, ", "), verb))
}

func (m *ChatModel) View() string {
	if m.quitting {
		return ""
	}

	header := fmt.Sprintf("%s %s   %s %s", IconRoom, m.roomID, IconPeer, m.userID)
	if len(m.peers) > 0 {
		header += "   " + StatusStyle.Render(fmt.Sprintf("%s %d", IconVideo, len(m.peers)))
	}

	return strings.Join([]string{
		HeaderStyle.Width(m.width).Render(header),
		m.viewport.View(),
		m.typingLine(),
		m.input.View(),
		FooterStyle.Render("/help for commands • pgup/pgdn to scroll • esc to quit"),
	}, "\n")
}
