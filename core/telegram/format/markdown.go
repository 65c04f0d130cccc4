package format

import (
	"fmt"
	"regexp"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "_*[]()~`>#+=|{}.!\\"

var (
	reMarkdownV1 = regexp.MustCompile("([_*`\\[])")
	reMarkdownV2 = regexp.MustCompile(`([\-` + regexp.QuoteMeta(mdV2Specials) + "])")
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return reMarkdownV1.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		return reMarkdownV2.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// Plain escapes text interpolated into MarkdownV1 messages, such as remote error text.
func Plain(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV1)
	return out
}
