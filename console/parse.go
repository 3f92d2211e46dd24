package console

import (
	"fmt"
	"strings"
)

// Command is one parsed console line.
type Command struct {
	Name string
	Arg  string
}

// parseLine parses a command line into a Command.
// Command format:
//
//	register <label>   - label is the rest of the line and may contain spaces
//	identify
//	rename <label>
//	list
//	delete <uid>
//	status
//	help
func parseLine(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, fmt.Errorf("empty command")
	}

	name, arg, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "register", "reg", "r":
		if arg == "" {
			return Command{}, fmt.Errorf("register requires a label")
		}
		return Command{Name: "register", Arg: arg}, nil
	case "rename", "mv":
		if arg == "" {
			return Command{}, fmt.Errorf("rename requires a label")
		}
		return Command{Name: "rename", Arg: arg}, nil
	case "delete", "del", "rm":
		if arg == "" {
			return Command{}, fmt.Errorf("delete requires an identifier")
		}
		return Command{Name: "delete", Arg: arg}, nil
	case "identify", "id", "i":
		return Command{Name: "identify"}, nil
	case "list", "ls", "l":
		return Command{Name: "list"}, nil
	case "status", "st":
		return Command{Name: "status"}, nil
	case "help", "?", "h":
		return Command{Name: "help"}, nil
	default:
		return Command{}, fmt.Errorf("unknown command: %s (try 'help')", name)
	}
}
