package ui

import (
	"errors"
	"strconv"
	"strings"
)

// CommandKind identifies a line typed into the chat input.
type CommandKind int

const (
	CmdSay CommandKind = iota
	CmdDelete
	CmdCall
	CmdHangup
	CmdPeers
	CmdDirect
	CmdHelp
	CmdQuit
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingArg     = errors.New("missing argument")
	ErrBadIndex       = errors.New("message number must be a positive integer")
)

// Command is a parsed input line.
type Command struct {
	Kind  CommandKind
	Text  string
	Index int
}

const helpText = "/delete <n>  remove your message #n\n" +
	"/call        start video with the room\n" +
	"/hangup      stop video\n" +
	"/peers       list video peers\n" +
	"/dm <text>   send over the peer data channel\n" +
	"/quit        leave"

// ParseInput turns a raw input line into a Command. Lines without a leading
// slash, and lines starting with "//", are chat text.
func ParseInput(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdSay, Text: line}, nil
	}
	if strings.HasPrefix(line, "//") {
		return Command{Kind: CmdSay, Text: line[1:]}, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "delete", "del":
		if arg == "" {
			return Command{}, ErrMissingArg
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return Command{}, ErrBadIndex
		}
		return Command{Kind: CmdDelete, Index: n}, nil
	case "call":
		return Command{Kind: CmdCall}, nil
	case "hangup":
		return Command{Kind: CmdHangup}, nil
	case "peers":
		return Command{Kind: CmdPeers}, nil
	case "dm":
		if arg == "" {
			return Command{}, ErrMissingArg
		}
		return Command{Kind: CmdDirect, Text: arg}, nil
	case "help", "?":
		return Command{Kind: CmdHelp}, nil
	case "quit", "exit", "q":
		return Command{Kind: CmdQuit}, nil
	default:
		return Command{}, ErrUnknownCommand
	}
}
