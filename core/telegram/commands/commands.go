package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	Hidden      bool
	Aliases     []string
}

// Normalize lowers name, strips a bot mention suffix ("/start@my_bot") and
// ensures the leading slash.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	if i := strings.IndexAny(name, " \n\t"); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}
