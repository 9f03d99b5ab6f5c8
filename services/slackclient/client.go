package slackclient

import (
	"context"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	goslack "github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// Client talks to the Slack Web API and file hosts on behalf of an import.
// File downloads are rate limited so a large archive does not trip Slack's
// tier limits.
type Client struct {
	api        *goslack.Client
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.FieldLogger
}

func NewClient(botToken string, downloadRPS int, httpClient *http.Client, logger log.FieldLogger) *Client {
	if downloadRPS <= 0 {
		downloadRPS = 10
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	c := &Client{
		token:      botToken,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(downloadRPS), downloadRPS),
		logger:     logger,
	}
	if botToken != "" {
		c.api = goslack.New(botToken, goslack.OptionHTTPClient(httpClient))
	}
	return c
}

// HasToken reports whether Web API calls are possible.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// ListEmoji returns the workspace custom emoji map (name to image URL, or
// "alias:<other>" for aliases). Without a bot token the map is empty and
// emoji resolution is effectively disabled.
func (c *Client) ListEmoji(ctx context.Context) (map[string]string, error) {
	if c.api == nil {
		c.logger.Warn("No Slack token configured, skipping emoji list")
		return map[string]string{}, nil
	}

	emoji, err := c.api.GetEmojiContext(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Infof("Fetched %d custom emoji from Slack", len(emoji))
	return emoji, nil
}

// authHeaderFor returns the bearer token for Slack file hosts. Other hosts
// (emoji CDNs, external files) are fetched unauthenticated.
func (c *Client) authHeaderFor(url string) string {
	if c.token == "" {
		return ""
	}
	if strings.Contains(url, "slack.com/") {
		return "Bearer " + c.token
	}
	return ""
}
