package relay

import "sort"

// Membership tracks which connections have joined which room. A connection is
// in at most one room; rooms exist only while they have members.
//
// Membership is not safe for concurrent use; the Hub serializes all access.
type Membership struct {
	rooms  map[string]map[string]struct{}
	byConn map[string]string
}

func NewMembership() *Membership {
	return &Membership{
		rooms:  make(map[string]map[string]struct{}),
		byConn: make(map[string]string),
	}
}

// Join adds connID to room. Joining the same room twice, or a second room, is
// rejected with ErrAlreadyInRoom.
func (m *Membership) Join(connID, room string) error {
	if _, ok := m.byConn[connID]; ok {
		return ErrAlreadyInRoom
	}

	members := m.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		m.rooms[room] = members
	}
	members[connID] = struct{}{}
	m.byConn[connID] = room
	return nil
}

func (m *Membership) IsMember(connID, room string) bool {
	_, ok := m.rooms[room][connID]
	return ok
}

// Room returns the room connID is in.
func (m *Membership) Room(connID string) (string, bool) {
	room, ok := m.byConn[connID]
	return room, ok
}

// Members returns the connections in room, sorted so fan-out order is stable.
func (m *Membership) Members(room string) []string {
	members := m.rooms[room]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Leave drops connID from its room and reports the room it left.
func (m *Membership) Leave(connID string) (string, bool) {
	room, ok := m.byConn[connID]
	if !ok {
		return "", false
	}
	delete(m.byConn, connID)

	members := m.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
	return room, true
}

// Len returns the number of non-empty rooms.
func (m *Membership) Len() int {
	return len(m.rooms)
}
