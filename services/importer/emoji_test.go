package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/insoln/slack-mm2/models"
)

func TestShortcodesInto(t *testing.T) {
	t.Run("Finds every shortcode occurrence", func(t *testing.T) {
		sink := map[string]struct{}{}
		shortcodesInto("deploy done :tada: :party_parrot: :+1: :tada:", sink)

		assert.Equal(t, map[string]struct{}{
			"tada":         {},
			"party_parrot": {},
			"+1":           {},
		}, sink)
	})

	t.Run("Uppercase and spaced colons do not match", func(t *testing.T) {
		sink := map[string]struct{}{}
		shortcodesInto("nope :TADA: : spaced :", sink)
		assert.Empty(t, sink)
	})
}

func TestResolveEmojiURL(t *testing.T) {
	emojiList := map[string]string{
		"parrot":       "https://emoji.slack-edge.com/parrot.png",
		"party":        "alias:parrot",
		"celebration":  "alias:party",
		"broken":       "alias:ghost",
		"self":         "alias:self",
		"ping":         "alias:pong",
		"pong":         "alias:ping",
		"empty_target": "alias:",
	}

	t.Run("Direct URLs resolve to themselves", func(t *testing.T) {
		assert.Equal(t, "https://emoji.slack-edge.com/parrot.png", resolveEmojiURL("parrot", emojiList))
	})

	t.Run("Alias chains resolve to the final URL", func(t *testing.T) {
		assert.Equal(t, "https://emoji.slack-edge.com/parrot.png", resolveEmojiURL("party", emojiList))
		assert.Equal(t, "https://emoji.slack-edge.com/parrot.png", resolveEmojiURL("celebration", emojiList))
	})

	t.Run("Unknown names and dangling aliases resolve to nothing", func(t *testing.T) {
		assert.Empty(t, resolveEmojiURL("missing", emojiList))
		assert.Empty(t, resolveEmojiURL("broken", emojiList))
		assert.Empty(t, resolveEmojiURL("empty_target", emojiList))
		assert.Empty(t, resolveEmojiURL("", emojiList))
	})

	t.Run("Cycles terminate", func(t *testing.T) {
		assert.Empty(t, resolveEmojiURL("self", emojiList))
		assert.Empty(t, resolveEmojiURL("ping", emojiList))
	})

	t.Run("Chains deeper than ten links are cut", func(t *testing.T) {
		deep := map[string]string{"final": "https://emoji.slack-edge.com/deep.png"}
		names := []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10", "a11"}
		for i := 0; i < len(names)-1; i++ {
			deep[names[i]] = "alias:" + names[i+1]
		}
		deep[names[len(names)-1]] = "alias:final"

		// Within the depth limit from partway down the chain, past it from the top.
		assert.Equal(t, "https://emoji.slack-edge.com/deep.png", resolveEmojiURL("a3", deep))
		assert.Empty(t, resolveEmojiURL("a0", deep))
	})
}

func TestCollectMessageShortcodes(t *testing.T) {
	t.Run("Plain text, blocks and attachments all contribute", func(t *testing.T) {
		raw := models.JSONMap{
			"text": "hello :wave:",
			"blocks": []any{
				map[string]any{
					"type": "rich_text",
					"elements": []any{
						map[string]any{
							"type": "rich_text_section",
							"elements": []any{
								map[string]any{"type": "emoji", "name": "fire"},
								map[string]any{"type": "text", "text": "with :inline_code:"},
							},
						},
					},
				},
				map[string]any{
					"type": "section",
					"text": map[string]any{"type": "mrkdwn", "text": "see :chart:"},
				},
				map[string]any{
					"type": "header",
					"text": map[string]any{"type": "plain_text", "text": ":rocket: launch"},
				},
			},
			"attachments": []any{
				map[string]any{
					"pretext":  "pre :one:",
					"title":    ":two:",
					"text":     "body :three:",
					"fallback": ":four:",
				},
			},
		}

		sink := map[string]struct{}{}
		collectMessageShortcodes(raw, sink)

		for _, name := range []string{"wave", "fire", "inline_code", "chart", "rocket", "one", "two", "three", "four"} {
			assert.Contains(t, sink, name)
		}
		assert.Len(t, sink, 9)
	})

	t.Run("Section fields and context elements are scanned", func(t *testing.T) {
		raw := models.JSONMap{
			"blocks": []any{
				map[string]any{
					"type": "section",
					"fields": []any{
						map[string]any{"type": "mrkdwn", "text": ":alpha:"},
					},
				},
				map[string]any{
					"type": "context",
					"elements": []any{
						map[string]any{"type": "mrkdwn", "text": ":beta:"},
						map[string]any{"type": "image", "image_url": "https://x/y.png"},
					},
				},
			},
		}

		sink := map[string]struct{}{}
		collectMessageShortcodes(raw, sink)

		assert.Equal(t, map[string]struct{}{"alpha": {}, "beta": {}}, sink)
	})

	t.Run("Nested rich elements are recursed", func(t *testing.T) {
		raw := models.JSONMap{
			"blocks": []any{
				map[string]any{
					"type": "rich_text",
					"elements": []any{
						map[string]any{
							"type": "rich_text_quote",
							"elements": []any{
								map[string]any{
									"type": "rich_text_section",
									"elements": []any{
										map[string]any{"type": "emoji", "name": "deep"},
									},
								},
							},
						},
					},
				},
			},
		}

		sink := map[string]struct{}{}
		collectMessageShortcodes(raw, sink)

		assert.Contains(t, sink, "deep")
	})

	t.Run("Malformed structures are ignored", func(t *testing.T) {
		raw := models.JSONMap{
			"blocks":      []any{"not-a-block", map[string]any{"type": "rich_text", "elements": "not-a-list"}},
			"attachments": []any{42},
		}

		sink := map[string]struct{}{}
		collectMessageShortcodes(raw, sink)
		assert.Empty(t, sink)
	})
}

func TestCollectBlockShortcodesShallow(t *testing.T) {
	blocks := []any{
		map[string]any{
			"type": "rich_text",
			"elements": []any{
				map[string]any{"type": "text", "text": ":shallow:"},
				// Sections are not descended into by the shallow scan.
				map[string]any{
					"type": "rich_text_section",
					"elements": []any{
						map[string]any{"type": "emoji", "name": "hidden"},
					},
				},
			},
		},
		map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": ":surface:"},
		},
	}

	sink := map[string]struct{}{}
	collectBlockShortcodesShallow(blocks, sink)

	assert.Equal(t, map[string]struct{}{"shallow": {}, "surface": {}}, sink)
}
