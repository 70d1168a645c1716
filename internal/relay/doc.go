// Package relay is the server side of huddle: the connection registry, room
// membership, the message ledger and the router that brokers chat and WebRTC
// signaling between them, plus the hub loop that serializes all of it.
package relay
