package uci

import (
	"fmt"
	"strconv"
)

// Commands without arguments.
const (
	CmdUCI        = "uci"
	CmdIsReady    = "isready"
	CmdUCINewGame = "ucinewgame"
	CmdStop       = "stop"
	CmdQuit       = "quit"
)

// Option names used by the session.
const (
	OptionMultiPV = "MultiPV"
	OptionHash    = "Hash"
	OptionThreads = "Threads"
	OptionPonder  = "Ponder"
)

// SetOption builds a setoption command.
func SetOption(name string, value any) string {
	return fmt.Sprintf("setoption name %s value %v", name, value)
}

// PositionFEN builds a position command. The position must already be in six-field form.
func PositionFEN(fen string) string {
	return "position fen " + fen
}

// GoDepth builds a depth-bounded search command.
func GoDepth(depth int) string {
	return "go depth " + strconv.Itoa(depth)
}

// GoMovetime builds a time-bounded search command.
func GoMovetime(ms int) string {
	return "go movetime " + strconv.Itoa(ms)
}
