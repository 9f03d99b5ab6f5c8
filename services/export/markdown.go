package export

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/insoln/slack-mm2/models"
)

// NameResolver supplies display names for mention rewriting. Lookups return
// "" when the id is unknown; the converter then falls back to the raw id.
type NameResolver interface {
	UsernameBySlackID(ctx context.Context, slackID string) string
	ChannelNameBySlackID(ctx context.Context, slackID string) string
}

var (
	labeledLinkPattern    = regexp.MustCompile(`<((?:https?|mailto):[^>|]+)\|([^>]+)>`)
	nakedLinkPattern      = regexp.MustCompile(`<((?:https?|mailto):[^>]+)>`)
	userMentionPattern    = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]+)?>`)
	channelMentionPattern = regexp.MustCompile(`<#([A-Z0-9]+)(?:\|[^>]+)?>`)
)

// MarkdownConverter renders a Slack message body as Mattermost Markdown.
// Rich blocks win over classic attachments, which win over plain text; each
// layer falls through when it produces nothing.
type MarkdownConverter struct {
	names NameResolver
}

func NewMarkdownConverter(names NameResolver) *MarkdownConverter {
	return &MarkdownConverter{names: names}
}

func (c *MarkdownConverter) Convert(ctx context.Context, raw models.JSONMap) string {
	if blocks := listValue(raw["blocks"]); len(blocks) > 0 {
		if md := c.blocksToMarkdown(ctx, blocks); strings.TrimSpace(md) != "" {
			return md
		}
	}
	if atts := listValue(raw["attachments"]); len(atts) > 0 {
		if md := c.attachmentsToMarkdown(ctx, atts); strings.TrimSpace(md) != "" {
			return md
		}
	}
	return c.ConvertText(ctx, raw.GetString("text"))
}

// ConvertText rewrites Slack markup in plain message text: special
// mentions, angled links, user and channel references.
func (c *MarkdownConverter) ConvertText(ctx context.Context, txt string) string {
	if txt == "" {
		return ""
	}

	txt = strings.ReplaceAll(txt, "<!here>", "@here")
	txt = strings.ReplaceAll(txt, "<!channel>", "@channel")
	txt = strings.ReplaceAll(txt, "<!everyone>", "@all")

	txt = labeledLinkPattern.ReplaceAllString(txt, "[$2]($1)")
	txt = nakedLinkPattern.ReplaceAllString(txt, "$1")

	txt = userMentionPattern.ReplaceAllStringFunc(txt, func(m string) string {
		slackID := userMentionPattern.FindStringSubmatch(m)[1]
		if name := c.names.UsernameBySlackID(ctx, slackID); name != "" {
			return "@" + name
		}
		return "@" + slackID
	})
	txt = channelMentionPattern.ReplaceAllStringFunc(txt, func(m string) string {
		slackID := channelMentionPattern.FindStringSubmatch(m)[1]
		if name := c.names.ChannelNameBySlackID(ctx, slackID); name != "" {
			return "~" + name
		}
		return "~" + slackID
	})
	return txt
}

func (c *MarkdownConverter) blocksToMarkdown(ctx context.Context, blocks []any) string {
	var lines []string
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "rich_text":
			for _, el := range listValue(block["elements"]) {
				if m, ok := el.(map[string]any); ok {
					if s := c.richElementToMarkdown(ctx, m); s != "" {
						lines = append(lines, s)
					}
				}
			}

		case "section":
			if txt, ok := block["text"].(map[string]any); ok {
				lines = append(lines, c.textObject(ctx, txt))
			} else {
				for _, f := range listValue(block["fields"]) {
					if m, ok := f.(map[string]any); ok {
						lines = append(lines, c.textObject(ctx, m))
					}
				}
			}

		case "header":
			if txt, ok := block["text"].(map[string]any); ok {
				if s := stringValue(txt["text"]); s != "" {
					lines = append(lines, "# "+s)
				}
			}

		case "divider":
			lines = append(lines, "---")

		case "context":
			var items []string
			for _, el := range listValue(block["elements"]) {
				m, ok := el.(map[string]any)
				if !ok {
					continue
				}
				switch m["type"] {
				case "plain_text", "mrkdwn":
					items = append(items, c.textObject(ctx, m))
				default:
					if s := c.richElementToMarkdown(ctx, m); s != "" {
						items = append(items, s)
					}
				}
			}
			if len(items) > 0 {
				lines = append(lines, strings.Join(nonEmpty(items), " "))
			}

		case "image":
			url := stringValue(block["image_url"])
			if url == "" {
				continue
			}
			if alt := stringValue(block["alt_text"]); alt != "" {
				lines = append(lines, fmt.Sprintf("![%s](%s)", alt, url))
			} else {
				lines = append(lines, url)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// textObject renders a Block Kit text object, rewriting markup only for
// mrkdwn typed ones.
func (c *MarkdownConverter) textObject(ctx context.Context, obj map[string]any) string {
	text := stringValue(obj["text"])
	if obj["type"] == "mrkdwn" {
		return c.ConvertText(ctx, text)
	}
	return text
}

func (c *MarkdownConverter) richElementToMarkdown(ctx context.Context, el map[string]any) string {
	switch el["type"] {
	case "rich_text_section":
		var parts []string
		for _, child := range listValue(el["elements"]) {
			if m, ok := child.(map[string]any); ok {
				if s := c.richElementToMarkdown(ctx, m); s != "" {
					parts = append(parts, s)
				}
			}
		}
		// Joined without separators to preserve inline formatting.
		return strings.Join(parts, "")

	case "rich_text_list":
		// Ordered lists keep a literal "1." prefix; Markdown renumbers.
		bullet := "1. "
		if style := stringValue(el["style"]); style == "" || style == "bullet" {
			bullet = "- "
		}
		var out []string
		for _, item := range listValue(el["elements"]) {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			text := c.richElementToMarkdown(ctx, m)
			if text == "" {
				continue
			}
			for _, line := range splitLines(text) {
				out = append(out, bullet+line)
			}
		}
		return strings.Join(out, "\n")

	case "rich_text_quote":
		content := c.richElementToMarkdown(ctx, map[string]any{
			"type":     "rich_text_section",
			"elements": el["elements"],
		})
		var quoted []string
		for _, line := range splitLines(content) {
			quoted = append(quoted, "> "+line)
		}
		return strings.Join(quoted, "\n")

	case "rich_text_preformatted":
		content := c.richElementToMarkdown(ctx, map[string]any{
			"type":     "rich_text_section",
			"elements": el["elements"],
		})
		return "```\n" + content + "\n```"

	case "rich_text_line_break":
		return "\n"

	case "text":
		text := stringValue(el["text"])
		style, _ := el["style"].(map[string]any)
		if boolValue(style["code"]) {
			return "`" + text + "`"
		}
		if boolValue(style["bold"]) {
			text = "**" + text + "**"
		}
		if boolValue(style["italic"]) {
			text = "_" + text + "_"
		}
		if boolValue(style["strike"]) {
			text = "~~" + text + "~~"
		}
		return text

	case "emoji":
		if name := stringValue(el["name"]); name != "" {
			return ":" + name + ":"
		}
		return ""

	case "user":
		slackID := stringValue(el["user_id"])
		if slackID == "" {
			return ""
		}
		if name := c.names.UsernameBySlackID(ctx, slackID); name != "" {
			return "@" + name
		}
		return "@" + slackID

	case "usergroup":
		if gid := stringValue(el["usergroup_id"]); gid != "" {
			return "@" + gid
		}
		return ""

	case "channel":
		slackID := stringValue(el["channel_id"])
		if slackID == "" {
			return ""
		}
		if name := c.names.ChannelNameBySlackID(ctx, slackID); name != "" {
			return "~" + name
		}
		return "~" + slackID

	case "link":
		url := stringValue(el["url"])
		text := stringValue(el["text"])
		if text == "" {
			text = url
		}
		if url != "" {
			return fmt.Sprintf("[%s](%s)", text, url)
		}
		return text

	case "date":
		return numString(el["timestamp"])
	}

	// Unknown element: flatten whatever nests inside.
	var parts []string
	for _, child := range listValue(el["elements"]) {
		if m, ok := child.(map[string]any); ok {
			if s := c.richElementToMarkdown(ctx, m); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "")
}

func (c *MarkdownConverter) attachmentsToMarkdown(ctx context.Context, attachments []any) string {
	var parts []string
	for _, a := range attachments {
		att, ok := a.(map[string]any)
		if !ok {
			continue
		}

		var lines []string
		if pretext := stringValue(att["pretext"]); pretext != "" {
			lines = append(lines, c.ConvertText(ctx, pretext))
		}
		if title := stringValue(att["title"]); title != "" {
			if link := stringValue(att["title_link"]); link != "" {
				lines = append(lines, fmt.Sprintf("[%s](%s)", title, link))
			} else {
				lines = append(lines, "**"+title+"**")
			}
		}
		if text := stringValue(att["text"]); text != "" {
			lines = append(lines, c.ConvertText(ctx, text))
		}

		var actionLinks []string
		for _, act := range listValue(att["actions"]) {
			m, ok := act.(map[string]any)
			if !ok {
				continue
			}
			text := stringValue(m["text"])
			url := stringValue(m["url"])
			switch {
			case text != "" && url != "":
				actionLinks = append(actionLinks, fmt.Sprintf("[%s](%s)", text, url))
			case text != "":
				actionLinks = append(actionLinks, text)
			}
		}
		if len(actionLinks) > 0 {
			lines = append(lines, strings.Join(actionLinks, " "))
		}

		if len(lines) == 0 {
			if fallback := stringValue(att["fallback"]); fallback != "" {
				lines = append(lines, c.ConvertText(ctx, fallback))
			}
		}
		if len(lines) > 0 {
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func listValue(v any) []any {
	list, _ := v.([]any)
	return list
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

// numString renders a JSON number the way source timestamps are written:
// integral values without an exponent, zero as the empty string.
func numString(v any) string {
	switch n := v.(type) {
	case float64:
		if n == 0 {
			return ""
		}
		if n == math.Trunc(n) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int64:
		if n == 0 {
			return ""
		}
		return strconv.FormatInt(n, 10)
	case int:
		if n == 0 {
			return ""
		}
		return strconv.Itoa(n)
	case string:
		return n
	}
	return ""
}

// splitLines splits on line boundaries without producing a trailing empty
// line, matching how quoted and list content is re-prefixed.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

func nonEmpty(items []string) []string {
	out := items[:0]
	for _, s := range items {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
