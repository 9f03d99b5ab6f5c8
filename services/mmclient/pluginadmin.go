package mmclient

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PluginAdmin manages the importer plugin installation on the target
// Mattermost server: reporting its state, uploading the bundle and enabling
// it.
type PluginAdmin struct {
	client     *Client
	pluginID   string
	bundlePath string
	logger     log.FieldLogger
}

func NewPluginAdmin(client *Client, pluginID, bundlePath string, logger log.FieldLogger) *PluginAdmin {
	return &PluginAdmin{
		client:     client,
		pluginID:   pluginID,
		bundlePath: bundlePath,
		logger:     logger,
	}
}

// PluginStatus describes the installed plugin relative to the local bundle.
type PluginStatus struct {
	PluginID         string `json:"plugin_id"`
	Installed        bool   `json:"installed"`
	Active           bool   `json:"active"`
	InstalledVersion string `json:"installed_version,omitempty"`
	ExpectedVersion  string `json:"expected_version,omitempty"`
	NeedsUpdate      bool   `json:"needs_update"`
	BundlePresent    bool   `json:"bundle_present"`
}

// EnsureResult reports what Ensure did.
type EnsureResult struct {
	Status *PluginStatus `json:"status"`
	Action string        `json:"action"` // none | deployed | enabled
}

func (a *PluginAdmin) PluginID() string {
	return a.pluginID
}

// ExpectedVersion derives the version the bundle would install from its
// filename, "<plugin id>-<version>.tar.gz".
func (a *PluginAdmin) ExpectedVersion() string {
	if a.bundlePath == "" {
		return ""
	}
	base := filepath.Base(a.bundlePath)
	base = strings.TrimSuffix(base, ".tar.gz")
	return strings.TrimPrefix(base, a.pluginID+"-")
}

func (a *PluginAdmin) bundleExists() bool {
	if a.bundlePath == "" {
		return false
	}
	_, err := os.Stat(a.bundlePath)
	return err == nil
}

func (a *PluginAdmin) Status(ctx context.Context) (*PluginStatus, error) {
	plugins, _, err := a.client.API.GetPlugins(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list plugins")
	}

	status := &PluginStatus{
		PluginID:        a.pluginID,
		ExpectedVersion: a.ExpectedVersion(),
		BundlePresent:   a.bundleExists(),
	}
	for _, plugin := range plugins.Active {
		if plugin.Id == a.pluginID {
			status.Installed = true
			status.Active = true
			status.InstalledVersion = plugin.Version
		}
	}
	for _, plugin := range plugins.Inactive {
		if plugin.Id == a.pluginID {
			status.Installed = true
			status.InstalledVersion = plugin.Version
		}
	}

	if status.Installed && status.ExpectedVersion != "" {
		status.NeedsUpdate = versionBehind(status.InstalledVersion, status.ExpectedVersion)
	}
	return status, nil
}

// versionBehind reports whether installed is older than expected. When
// either side is not valid semver the comparison falls back to inequality.
func versionBehind(installed, expected string) bool {
	iv, ierr := semver.ParseTolerant(installed)
	ev, eerr := semver.ParseTolerant(expected)
	if ierr != nil || eerr != nil {
		return installed != expected
	}
	return iv.LT(ev)
}

// Deploy uploads the local bundle (replacing any installed version) and
// enables the plugin.
func (a *PluginAdmin) Deploy(ctx context.Context) error {
	if !a.bundleExists() {
		return errors.Errorf("plugin bundle not found at %s", a.bundlePath)
	}

	file, err := os.Open(a.bundlePath)
	if err != nil {
		return errors.Wrap(err, "failed to open plugin bundle")
	}
	defer file.Close()

	a.logger.Infof("Uploading plugin bundle %s", a.bundlePath)
	manifest, _, err := a.client.API.UploadPluginForced(ctx, file)
	if err != nil {
		return errors.Wrap(err, "failed to upload plugin")
	}

	if _, err := a.client.API.EnablePlugin(ctx, manifest.Id); err != nil {
		return errors.Wrap(err, "failed to enable plugin")
	}
	a.logger.Infof("Plugin %s %s deployed and enabled", manifest.Id, manifest.Version)
	return nil
}

// Enable activates an already installed plugin.
func (a *PluginAdmin) Enable(ctx context.Context) error {
	if _, err := a.client.API.EnablePlugin(ctx, a.pluginID); err != nil {
		return errors.Wrap(err, "failed to enable plugin")
	}
	return nil
}

// Ensure brings the server to a state where the expected plugin version is
// installed and active, deploying or enabling as needed.
func (a *PluginAdmin) Ensure(ctx context.Context) (*EnsureResult, error) {
	status, err := a.Status(ctx)
	if err != nil {
		return nil, err
	}

	result := &EnsureResult{Status: status, Action: "none"}
	switch {
	case !status.Installed || status.NeedsUpdate:
		if !status.BundlePresent {
			return result, errors.Errorf("plugin %s needs deployment but no bundle is configured", a.pluginID)
		}
		if err := a.Deploy(ctx); err != nil {
			return result, err
		}
		result.Action = "deployed"
	case !status.Active:
		if err := a.Enable(ctx); err != nil {
			return result, err
		}
		result.Action = "enabled"
	}

	if result.Action != "none" {
		refreshed, err := a.Status(ctx)
		if err == nil {
			result.Status = refreshed
		}
	}
	return result, nil
}
