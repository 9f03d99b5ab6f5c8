package importer

import (
	"regexp"
	"strings"

	"github.com/insoln/slack-mm2/models"
)

var emojiPattern = regexp.MustCompile(`:([a-z0-9_+\-]+):`)

// shortcodesInto adds every :shortcode: occurrence in text to sink.
func shortcodesInto(text string, sink map[string]struct{}) {
	for _, m := range emojiPattern.FindAllStringSubmatch(text, -1) {
		sink[m[1]] = struct{}{}
	}
}

// resolveEmojiURL follows alias:name chains in the Slack emoji list until it
// reaches a real URL. Unknown names, empty values, cycles and chains deeper
// than 10 links resolve to "".
func resolveEmojiURL(name string, emojiList map[string]string) string {
	visited := make(map[string]struct{})
	for depth := 0; depth <= 10; depth++ {
		if name == "" {
			return ""
		}
		if _, seen := visited[name]; seen {
			return ""
		}
		visited[name] = struct{}{}

		val := emojiList[name]
		if val == "" {
			return ""
		}
		target, isAlias := strings.CutPrefix(val, "alias:")
		if !isAlias {
			return val
		}
		name = target
	}
	return ""
}

// collectMessageShortcodes scans one message for emoji usages: plain text,
// rich blocks, and classic attachment fields.
func collectMessageShortcodes(raw models.JSONMap, sink map[string]struct{}) {
	shortcodesInto(raw.GetString("text"), sink)
	collectBlockShortcodes(rawList(raw["blocks"]), sink)
	collectAttachmentShortcodes(rawList(raw["attachments"]), sink)
}

// collectBlockShortcodes walks Block Kit blocks. rich_text elements are
// recursed in full; section/context/header blocks contribute their text
// objects.
func collectBlockShortcodes(blocks []any, sink map[string]struct{}) {
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		switch block["type"] {
		case "rich_text":
			for _, el := range rawList(block["elements"]) {
				if m, ok := el.(map[string]any); ok {
					collectRichElementShortcodes(m, sink)
				}
			}
		case "section", "context":
			if txt, ok := block["text"].(map[string]any); ok {
				shortcodesInto(stringValue(txt["text"]), sink)
			}
			for _, f := range rawList(block["fields"]) {
				if m, ok := f.(map[string]any); ok {
					shortcodesInto(stringValue(m["text"]), sink)
				}
			}
			for _, el := range rawList(block["elements"]) {
				m, ok := el.(map[string]any)
				if !ok {
					continue
				}
				if m["type"] == "mrkdwn" || m["type"] == "plain_text" {
					shortcodesInto(stringValue(m["text"]), sink)
				}
			}
		case "header":
			if txt, ok := block["text"].(map[string]any); ok {
				shortcodesInto(stringValue(txt["text"]), sink)
			}
		}
	}
}

func collectRichElementShortcodes(el map[string]any, sink map[string]struct{}) {
	if el["type"] == "emoji" {
		if name := stringValue(el["name"]); name != "" {
			sink[name] = struct{}{}
		}
	}
	for _, child := range rawList(el["elements"]) {
		if m, ok := child.(map[string]any); ok {
			collectRichElementShortcodes(m, sink)
		}
	}
	switch el["type"] {
	case "text", "mrkdwn", "plain_text":
		shortcodesInto(stringValue(el["text"]), sink)
	}
}

// collectAttachmentShortcodes scans classic (pre-Block Kit) attachments.
func collectAttachmentShortcodes(attachments []any, sink map[string]struct{}) {
	for _, a := range attachments {
		att, ok := a.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"pretext", "title", "text", "fallback"} {
			if s, ok := att[key].(string); ok {
				shortcodesInto(s, sink)
			}
		}
	}
}

// collectBlockShortcodesShallow is the cheaper scan used by the totals
// pre-pass: top-level rich_text text elements and block-level text objects
// only, no recursion and no emoji elements.
func collectBlockShortcodesShallow(blocks []any, sink map[string]struct{}) {
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		if block["type"] == "rich_text" {
			for _, el := range rawList(block["elements"]) {
				m, ok := el.(map[string]any)
				if !ok {
					continue
				}
				switch m["type"] {
				case "text", "mrkdwn", "plain_text":
					shortcodesInto(stringValue(m["text"]), sink)
				}
			}
			continue
		}
		if txt, ok := block["text"].(map[string]any); ok {
			shortcodesInto(stringValue(txt["text"]), sink)
		}
	}
}

func rawList(v any) []any {
	list, _ := v.([]any)
	return list
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
