package export

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/pkg/errors"

	"github.com/insoln/slack-mm2/models"
)

// avatarKeys in preference order. Gravatar defaults are not worth copying.
var avatarKeys = []string{
	"image_original", "image_1024", "image_512", "image_192",
	"image_72", "image_48", "image_32", "image_24",
}

// calcAuthData derives the stable auth_data the SSO stub expects for a
// username: a 32-bit polynomial hash reduced to five digits.
func calcAuthData(username string) string {
	var h uint32
	for _, r := range username {
		h = h*31 + uint32(r)
	}
	return strconv.FormatUint(uint64(h%100000), 10)
}

func buildUser(ent *models.Entity) *model.User {
	raw := ent.RawData
	profile, _ := raw["profile"].(map[string]any)

	username := raw.GetString("name")
	if username == "" {
		username = ent.SlackID
	}
	email := stringValue(profile["email"])
	if email == "" {
		email = username + "@example.com"
	}
	locale := raw.GetString("locale")
	if locale == "" {
		locale = stringValue(profile["locale"])
	}

	user := &model.User{
		Username:    username,
		Email:       email,
		Password:    "",
		FirstName:   stringValue(profile["first_name"]),
		LastName:    stringValue(profile["last_name"]),
		Position:    stringValue(profile["title"]),
		Locale:      locale,
		Props:       stringMap(raw["props"]),
		NotifyProps: model.StringMap{"email": "false"},
		AuthService: "gitlab",
		AuthData:    model.NewPointer(calcAuthData(username)),
	}
	if tz := raw.GetString("tz"); tz != "" {
		user.Timezone = model.StringMap{"automaticTimezone": tz}
	}
	return user
}

func (e *Exporters) exportUser(ctx context.Context, run *Run, ent *models.Entity) error {
	user := buildUser(ent)

	created, _, err := e.mm.API.CreateUser(ctx, user)
	if err == nil {
		return e.finishUser(ctx, ent, created.Id)
	}

	// A user surviving from an earlier run comes back as a conflict; adopt
	// the existing account instead of failing.
	var appErr *model.AppError
	if errors.As(err, &appErr) {
		switch appErr.Id {
		case "app.user.save.email_exists.app_error":
			existing, _, getErr := e.mm.API.GetUserByEmail(ctx, user.Email, "")
			if getErr == nil {
				return e.finishUser(ctx, ent, existing.Id)
			}
		case "app.user.save.username_exists.app_error":
			existing, _, getErr := e.mm.API.GetUserByUsername(ctx, user.Username, "")
			if getErr == nil {
				return e.finishUser(ctx, ent, existing.Id)
			}
		}
	}
	return e.fail(ctx, ent, "failed to create user", err)
}

// finishUser records the mapping and uploads the avatar. Team membership is
// deliberately left to channel export: an account should not join the team
// before anything references it.
func (e *Exporters) finishUser(ctx context.Context, ent *models.Entity, mmID string) error {
	if err := e.entities.MarkExported(ctx, ent, mmID); err != nil {
		return err
	}
	e.logger.Debugf("User %s exported to Mattermost as %s", ent.SlackID, mmID)
	if url := avatarURL(ent.RawData); url != "" {
		e.uploadAvatar(ctx, mmID, url)
	}
	return nil
}

func avatarURL(raw models.JSONMap) string {
	profile, _ := raw["profile"].(map[string]any)
	for _, key := range avatarKeys {
		url := stringValue(profile[key])
		if url != "" && !strings.Contains(url, "secure.gravatar.com") {
			return url
		}
	}
	return ""
}

// uploadAvatar is best effort; a user without an avatar is still exported.
func (e *Exporters) uploadAvatar(ctx context.Context, mmUserID, url string) {
	data, err := e.mm.DownloadBytes(ctx, url)
	if err != nil {
		e.logger.WithError(err).Errorf("Failed to download avatar %s", url)
		return
	}
	if _, err := e.mm.API.SetProfileImage(ctx, mmUserID, data); err != nil {
		e.logger.WithError(err).Errorf("Failed to set avatar for user %s", mmUserID)
		return
	}
	e.logger.Debugf("Avatar uploaded for user %s", mmUserID)
}

// stringMap flattens a raw JSON object into the string-valued map the
// Mattermost API takes; non-string values keep their JSON form.
func stringMap(v any) model.StringMap {
	m, _ := v.(map[string]any)
	out := model.StringMap{}
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
			continue
		}
		if b, err := json.Marshal(val); err == nil {
			out[k] = string(b)
		}
	}
	return out
}
