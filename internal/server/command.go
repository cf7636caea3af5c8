package server

import "strings"

// Command is an administrative action requested on the command line.
type Command struct {
	Name     string
	UserName string
}

// ParseCommand finds "useradd NAME" or "passwd NAME" among args. Flags and
// their values are skipped. A zero Command means serve.
func ParseCommand(args []string) Command {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			if !strings.Contains(arg, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		switch arg {
		case "useradd", "passwd":
			cmd := Command{Name: arg}
			if i+1 < len(args) {
				cmd.UserName = args[i+1]
			}
			return cmd
		}
	}
	return Command{}
}
