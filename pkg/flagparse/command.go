package flagparse

import (
	"fmt"

	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// Command is the subcommand selected on the command line.
type Command int

const (
	None Command = iota
	Diff
	Sync
	Cache
	Init
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Diff:    "diff",
	Sync:    "sync",
	Cache:   "cache",
	Init:    "init",
	Version: "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok && command != None {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'diff', 'sync', 'cache', 'init' or 'version'", s)
}
