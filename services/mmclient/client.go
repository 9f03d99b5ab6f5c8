package mmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Options tune the shared connection pool.
type Options struct {
	PluginID       string
	MaxConnections int
	MaxKeepalive   int
	EnableHTTP2    bool
}

// Client wraps the Mattermost REST API and the importer plugin API behind a
// shared connection pool. Three HTTP clients ride the same transport:
// standard calls get 30 s, file downloads 60 s, and streamed uploads run
// without a deadline.
type Client struct {
	API *model.Client4

	baseURL  string
	token    string
	pluginID string

	standard *http.Client
	download *http.Client
	upload   *http.Client

	logger log.FieldLogger
}

func NewClient(baseURL, token string, opts Options, logger log.FieldLogger) *Client {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 100
	}
	if opts.MaxKeepalive <= 0 {
		opts.MaxKeepalive = 20
	}

	transport := newTransport(opts.MaxConnections, opts.MaxKeepalive, opts.EnableHTTP2)
	retrying := &retryingRoundTripper{next: transport}

	standard := &http.Client{Transport: retrying, Timeout: 30 * time.Second}
	download := &http.Client{Transport: retrying, Timeout: 60 * time.Second}
	upload := &http.Client{Transport: retrying}

	api := model.NewAPIv4Client(strings.TrimRight(baseURL, "/"))
	api.SetToken(token)
	api.HTTPClient = standard

	return &Client{
		API:      api,
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		pluginID: opts.PluginID,
		standard: standard,
		download: download,
		upload:   upload,
		logger:   logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) PluginID() string {
	return c.pluginID
}

// Me returns the user the configured token authenticates as.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	user, _, err := c.API.GetMe(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve the token's user")
	}
	return user, nil
}

// DownloadBytes fetches an external URL (avatars, emoji images) with the
// download client. No auth header is attached; these are public CDN URLs.
func (c *Client) DownloadBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build download request")
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "download of %s failed", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("download of %s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) pluginURL(path string) string {
	return fmt.Sprintf("%s/plugins/%s/api/v1%s", c.baseURL, c.pluginID, path)
}

// PluginPost sends a JSON payload to an importer plugin endpoint and decodes
// the response into out (when non-nil). Non-2xx responses surface as
// *PluginError.
func (c *Client) PluginPost(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode plugin payload")
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		c.logger.WithField("path", path).Debugf("plugin POST %s", redactPayload(body))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pluginURL(path), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build plugin request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.standard.Do(req)
	if err != nil {
		return errors.Wrapf(err, "plugin request %s failed", path)
	}
	defer resp.Body.Close()

	return decodePluginResponse(resp, path, out)
}

// PluginPostMultipart streams a file from disk to an importer plugin
// endpoint as a multipart form. The file is never buffered in memory, so
// the request cannot be retried; only the filename and size are logged.
func (c *Client) PluginPostMultipart(ctx context.Context, path, filePath string, fields map[string]string, out any) error {
	file, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(err, "failed to open upload file")
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat upload file")
	}

	filename := fields["filename"]
	if filename == "" {
		filename = filepath.Base(filePath)
	}
	c.logger.WithFields(log.Fields{
		"path":     path,
		"filename": filename,
		"bytes":    info.Size(),
	}).Debug("plugin multipart POST")

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := writeMultipart(writer, fields, filename, file)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pluginURL(path), pr)
	if err != nil {
		return errors.Wrap(err, "failed to build plugin request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.upload.Do(req)
	if err != nil {
		return errors.Wrapf(err, "plugin upload %s failed", path)
	}
	defer resp.Body.Close()

	return decodePluginResponse(resp, path, out)
}

func writeMultipart(writer *multipart.Writer, fields map[string]string, filename string, file io.Reader) error {
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

func decodePluginResponse(resp *http.Response, path string, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read plugin response for %s", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newPluginError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "failed to decode plugin response for %s", path)
	}
	return nil
}

// redactPayload hides file content from logs, keeping the rest of the
// payload readable.
func redactPayload(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return string(body)
	}
	if raw, ok := m["content_base64"].(string); ok {
		m["content_base64"] = fmt.Sprintf("<%d bytes redacted>", len(raw))
	}
	out, err := json.Marshal(m)
	if err != nil {
		return string(body)
	}
	return string(out)
}
