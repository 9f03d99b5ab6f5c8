package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insoln/slack-mm2/models"
)

func TestCalcAuthData(t *testing.T) {
	tests := []struct {
		username string
		expected string
	}{
		{"a", "97"},
		{"ab", "3105"},
		{"john.doe", "51607"},
		{"", "0"},
	}
	for _, tc := range tests {
		t.Run(tc.username, func(t *testing.T) {
			assert.Equal(t, tc.expected, calcAuthData(tc.username))
		})
	}

	t.Run("Stays stable across calls", func(t *testing.T) {
		assert.Equal(t, calcAuthData("jane.smith"), calcAuthData("jane.smith"))
	})
}

func TestBuildUser(t *testing.T) {
	t.Run("Maps the full profile", func(t *testing.T) {
		ent := &models.Entity{
			SlackID: "U001",
			RawData: models.JSONMap{
				"name": "john.doe",
				"tz":   "Europe/Berlin",
				"profile": map[string]any{
					"email":      "john@corp.example",
					"first_name": "John",
					"last_name":  "Doe",
					"title":      "SRE",
				},
			},
		}

		user := buildUser(ent)

		assert.Equal(t, "john.doe", user.Username)
		assert.Equal(t, "john@corp.example", user.Email)
		assert.Equal(t, "John", user.FirstName)
		assert.Equal(t, "Doe", user.LastName)
		assert.Equal(t, "SRE", user.Position)
		assert.Equal(t, "gitlab", user.AuthService)
		require.NotNil(t, user.AuthData)
		assert.Equal(t, "51607", *user.AuthData)
		assert.Equal(t, "false", user.NotifyProps["email"])
		assert.Equal(t, "Europe/Berlin", user.Timezone["automaticTimezone"])
	})

	t.Run("Falls back to the Slack ID and a synthetic email", func(t *testing.T) {
		ent := &models.Entity{
			SlackID: "U042",
			RawData: models.JSONMap{},
		}

		user := buildUser(ent)

		assert.Equal(t, "U042", user.Username)
		assert.Equal(t, "U042@example.com", user.Email)
		assert.Empty(t, user.Timezone)
	})

	t.Run("Profile locale backs up the top level one", func(t *testing.T) {
		ent := &models.Entity{
			SlackID: "U001",
			RawData: models.JSONMap{
				"name":    "john.doe",
				"profile": map[string]any{"locale": "de-DE"},
			},
		}
		assert.Equal(t, "de-DE", buildUser(ent).Locale)

		ent.RawData["locale"] = "en-US"
		assert.Equal(t, "en-US", buildUser(ent).Locale)
	})
}

func TestAvatarURL(t *testing.T) {
	t.Run("Prefers the original image", func(t *testing.T) {
		raw := models.JSONMap{
			"profile": map[string]any{
				"image_original": "https://avatars.example/orig.png",
				"image_512":      "https://avatars.example/512.png",
			},
		}
		assert.Equal(t, "https://avatars.example/orig.png", avatarURL(raw))
	})

	t.Run("Skips gravatar defaults", func(t *testing.T) {
		raw := models.JSONMap{
			"profile": map[string]any{
				"image_original": "https://secure.gravatar.com/avatar/abc.png",
				"image_192":      "https://avatars.example/192.png",
			},
		}
		assert.Equal(t, "https://avatars.example/192.png", avatarURL(raw))

		raw = models.JSONMap{
			"profile": map[string]any{
				"image_48": "https://secure.gravatar.com/avatar/abc.png",
			},
		}
		assert.Equal(t, "", avatarURL(raw))
	})

	t.Run("Handles a missing profile", func(t *testing.T) {
		assert.Equal(t, "", avatarURL(models.JSONMap{}))
	})
}

func TestStringMap(t *testing.T) {
	out := stringMap(map[string]any{
		"badge":  "gold",
		"level":  float64(3),
		"active": true,
	})
	assert.Equal(t, "gold", out["badge"])
	assert.Equal(t, "3", out["level"])
	assert.Equal(t, "true", out["active"])

	assert.Empty(t, stringMap(nil))
	assert.Empty(t, stringMap("not-a-map"))
}
