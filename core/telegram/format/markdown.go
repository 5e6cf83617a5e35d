// Package format builds Telegram MarkdownV2 message fragments.
package format

import (
	"strconv"
	"strings"
)

// ParseMode is the telebot parse mode matching this package's output.
const ParseMode = "MarkdownV2"

var (
	escaper     = strings.NewReplacer(specialPairs()...)
	codeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")
	urlEscaper  = strings.NewReplacer("`", "\\`", ")", `\)`)
)

const specials = "_*[]()~`>#+-=|{}.!"

func specialPairs() []string {
	pairs := make([]string, 0, 2*len(specials))
	for _, r := range specials {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return pairs
}

// Escape makes s safe to embed as plain text.
func Escape(s string) string { return escaper.Replace(s) }

// EscapeCode escapes s for use inside pre and code entities.
func EscapeCode(s string) string { return codeEscaper.Replace(s) }

// EscapeLinkURL escapes s for use as the target of an inline link.
func EscapeLinkURL(s string) string { return urlEscaper.Replace(s) }

// Bold wraps already escaped s in a bold entity.
func Bold(s string) string { return "*" + s + "*" }

// Italic wraps already escaped s in an italic entity. Text that is itself
// underlined gets a \r separator so "___" is not read as underline.
func Italic(s string) string {
	if len(s) >= 4 && strings.HasPrefix(s, "__") && strings.HasSuffix(s, "__") {
		return "_" + s[:len(s)-1] + `\r__`
	}
	return "_" + s + "_"
}

// Underline wraps already escaped s in an underline entity.
func Underline(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, "_") && strings.HasSuffix(s, "_") {
		return "__" + s + `\r__`
	}
	return "__" + s + "__"
}

// Strike wraps already escaped s in a strikethrough entity.
func Strike(s string) string { return "~" + s + "~" }

// Link renders an inline link; text must already be escaped.
func Link(url, text string) string {
	return "[" + text + "](" + EscapeLinkURL(url) + ")"
}

// UserMention links text to the user's profile.
func UserMention(userID int64, text string) string {
	return Link("tg://user?id="+strconv.FormatInt(userID, 10), text)
}

// CodeInline renders s as inline code.
func CodeInline(s string) string { return "`" + EscapeCode(s) + "`" }

// CodeBlock renders code as a pre block, optionally tagged with lang.
func CodeBlock(code, lang string) string {
	return "```" + Escape(lang) + "\n" + EscapeCode(code) + "\n```"
}
