package export

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insoln/slack-mm2/config"
	"github.com/insoln/slack-mm2/db"
	"github.com/insoln/slack-mm2/models"
	"github.com/insoln/slack-mm2/services/entity"
	"github.com/insoln/slack-mm2/services/mmclient"
	"github.com/insoln/slack-mm2/services/slackclient"
	"github.com/insoln/slack-mm2/testhelper"
)

type recordedUpload struct {
	channelID string
	filename  string
	content   []byte
}

// fakeAttachmentPlugin accepts both upload endpoints of the importer plugin
// and records what arrived.
type fakeAttachmentPlugin struct {
	mu         sync.Mutex
	multiparts []recordedUpload
	base64s    []map[string]any
}

func (f *fakeAttachmentPlugin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/plugins/mm-importer/api/v1/attachment_multipart":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.multiparts = append(f.multiparts, recordedUpload{
			channelID: r.FormValue("channel_id"),
			filename:  r.FormValue("filename"),
			content:   content,
		})
		f.respond(w)

	case "/plugins/mm-importer/api/v1/attachment":
		payload := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.base64s = append(f.base64s, payload)
		f.respond(w)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAttachmentPlugin) respond(w http.ResponseWriter) {
	n := len(f.multiparts) + len(f.base64s)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"file_id":"mm-file-%d"}`, n)
}

func (f *fakeAttachmentPlugin) uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.multiparts) + len(f.base64s)
}

func TestExportAttachment(t *testing.T) {
	conn := testhelper.SetupDB(t)
	ctx := context.Background()
	logger := discardLogger()

	fake := &fakeAttachmentPlugin{}
	server := httptest.NewServer(fake)
	defer server.Close()

	entities := db.NewPostgresEntitiesRepository(conn, "public")
	relations := db.NewPostgresRelationsRepository(conn, "public")
	entSvc := entity.NewService(entities, relations, logger)
	slackCl := slackclient.NewClient("", 0, nil, logger)
	mm := mmclient.NewClient(server.URL, "admin-token", mmclient.Options{PluginID: "mm-importer"}, logger)

	newExporters := func(multipart bool, maxMB int) *Exporters {
		cfg := &config.AppConfig{
			Export: config.ExportConfig{
				Workers:         1,
				MultipartUpload: multipart,
				AttachmentMaxMB: maxMB,
			},
			Plugin: config.PluginConfig{ID: "mm-importer"},
		}
		return NewExporters(entSvc, mm, slackCl, cfg, logger)
	}

	// The channel every attachment should land in.
	chOpt, err := entities.Insert(ctx, &models.Entity{
		EntityType: models.EntityTypeChannel,
		SlackID:    "C001",
		RawData:    models.JSONMap{"name": "general"},
		Status:     models.MappingStatusPending,
	})
	require.NoError(t, err)
	ch, ok := chOpt.Get()
	require.True(t, ok)
	mmChannelID := "mm-chan-general"
	require.NoError(t, entities.UpdateStatus(ctx, ch.ID, models.MappingStatusSuccess, nil, &mmChannelID))

	newAttachment := func(slackID string, raw models.JSONMap) *models.Entity {
		t.Helper()
		opt, err := entities.Insert(ctx, &models.Entity{
			EntityType: models.EntityTypeAttachment,
			SlackID:    slackID,
			RawData:    raw,
			Status:     models.MappingStatusPending,
		})
		require.NoError(t, err)
		row, ok := opt.Get()
		require.True(t, ok)
		return row
	}

	fetch := func(id int64, slackID string) *models.Entity {
		t.Helper()
		opt, err := entities.GetScoped(ctx, models.EntityTypeAttachment, slackID, nil)
		require.NoError(t, err)
		row, ok := opt.Get()
		require.True(t, ok)
		require.Equal(t, id, row.ID)
		return row
	}

	content := []byte("quarterly report body")

	t.Run("Multipart upload streams the file under its NFC filename", func(t *testing.T) {
		exp := newExporters(true, 0)
		run := newRun(exp, "mm-admin")

		// Decomposed accents, as macOS-built exports carry them.
		ent := newAttachment("F100", models.JSONMap{
			"name":           "résumé.pdf",
			"channel_id":     "C001",
			"size":           len(content),
			"content_base64": base64.StdEncoding.EncodeToString(content),
		})
		require.NoError(t, exp.ExportEntity(ctx, run, ent))

		fake.mu.Lock()
		require.Len(t, fake.multiparts, 1)
		upload := fake.multiparts[0]
		fake.mu.Unlock()

		assert.Equal(t, "mm-chan-general", upload.channelID)
		assert.Equal(t, "résumé.pdf", upload.filename)
		assert.Equal(t, content, upload.content)

		row := fetch(ent.ID, "F100")
		assert.Equal(t, models.MappingStatusSuccess, row.Status)
		assert.Equal(t, "mm-file-1", row.MattermostID)
	})

	t.Run("The base64 endpoint carries the content inline", func(t *testing.T) {
		exp := newExporters(false, 0)
		run := newRun(exp, "mm-admin")

		ent := newAttachment("F101", models.JSONMap{
			"name":           "notes.txt",
			"channel_id":     "C001",
			"content_base64": base64.StdEncoding.EncodeToString(content),
		})
		require.NoError(t, exp.ExportEntity(ctx, run, ent))

		fake.mu.Lock()
		require.Len(t, fake.base64s, 1)
		payload := fake.base64s[0]
		fake.mu.Unlock()

		assert.Equal(t, "mm-chan-general", payload["channel_id"])
		assert.Equal(t, "notes.txt", payload["filename"])
		decoded, err := base64.StdEncoding.DecodeString(payload["content_base64"].(string))
		require.NoError(t, err)
		assert.Equal(t, content, decoded)

		row := fetch(ent.ID, "F101")
		assert.Equal(t, models.MappingStatusSuccess, row.Status)
		assert.Equal(t, "mm-file-2", row.MattermostID)
	})

	t.Run("Oversized files are skipped before any network call", func(t *testing.T) {
		exp := newExporters(true, 1)
		run := newRun(exp, "mm-admin")
		before := fake.uploads()

		ent := newAttachment("F102", models.JSONMap{
			"name":           "dump.tar",
			"channel_id":     "C001",
			"size":           3 * 1024 * 1024,
			"content_base64": base64.StdEncoding.EncodeToString(content),
		})
		require.NoError(t, exp.ExportEntity(ctx, run, ent))

		assert.Equal(t, before, fake.uploads())

		row := fetch(ent.ID, "F102")
		assert.Equal(t, models.MappingStatusSkipped, row.Status)
		assert.Contains(t, row.ErrorMessage, "exceeds 1 MB")
	})

	t.Run("An attachment without a resolvable channel fails", func(t *testing.T) {
		exp := newExporters(true, 0)
		run := newRun(exp, "mm-admin")

		ent := newAttachment("F103", models.JSONMap{
			"name":           "orphan.bin",
			"content_base64": base64.StdEncoding.EncodeToString(content),
		})
		require.NoError(t, exp.ExportEntity(ctx, run, ent))

		row := fetch(ent.ID, "F103")
		assert.Equal(t, models.MappingStatusFailed, row.Status)
		assert.Contains(t, row.ErrorMessage, "No target channel")
	})
}
