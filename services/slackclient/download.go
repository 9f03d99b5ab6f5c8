package slackclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultOverlap int64 = 512

const (
	downloadAttempts = 3
	downloadBackoff  = time.Second
)

var ErrOverlapNotEqual = errors.New("download: the downloaded file doesn't match the one on disk")

// DownloadFile downloads a URL into destPath, resuming a partial file when
// one exists. Slack-hosted URLs are fetched with the bot token; transport
// errors and non-2xx responses are retried with backoff, and a retry picks
// up where the interrupted attempt stopped.
func (c *Client) DownloadFile(ctx context.Context, url, destPath string, size int64) error {
	backoff := downloadBackoff
	var lastErr error

	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = c.downloadInto(ctx, destPath, url, size)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrOverlapNotEqual) || ctx.Err() != nil {
			return lastErr
		}

		if attempt < downloadAttempts {
			c.logger.Warnf("Download attempt %d/%d for %s failed: %v", attempt, downloadAttempts, url, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return lastErr
}

// downloadInto downloads the contents of a URL into a file. If the file already
// exists it will resume the download. To prevent corrupting the file it
// downloads a tiny bit of overlapping data (512 byte) and compares it to the
// existing file:
//
//	[-----existing local file-----]
//	                      [-------resumed download-------]
//	                      [overlap]
//
// When the check fails, the function returns an error rather than silently
// re-downloading the whole file. If the server doesn't support resumable
// downloads, the existing file is truncated and re-downloaded. A size of 0
// means the expected size is unknown and resume is skipped.
func (c *Client) downloadInto(ctx context.Context, filename, url string, size int64) error {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0660)
	if err != nil {
		return fmt.Errorf("download: error opening the destination file: %w", err)
	}
	defer file.Close()

	return c.resumeDownload(ctx, file, size, url)
}

func (c *Client) resumeDownload(ctx context.Context, existing *os.File, size int64, downloadURL string) error {
	existingSize, overlap, err := calculateSize(existing, size)
	if err != nil {
		return err
	}
	if size > 0 && existingSize == size {
		// the file has already been downloaded
		return nil
	}

	start := existingSize - overlap // calculateSize makes sure this can't be negative
	req, err := c.createRequest(ctx, downloadURL, start)
	if err != nil {
		return err
	}

	if start != 0 {
		c.logger.Debugf("Resuming download of %s from byte %d", downloadURL, start)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: error during HTTP request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// do nothing, everything is fine
	case http.StatusOK:
		// server doesn't support Range
		overlap = 0
		if err = existing.Truncate(0); err != nil {
			return fmt.Errorf("download: error emptying file for re-download: %w", err)
		}
		if _, err = existing.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("download: error rewinding file for re-download: %w", err)
		}
	default:
		return fmt.Errorf("download: HTTP request failed with status %q", resp.Status)
	}

	if overlap != 0 {
		if err = checkOverlap(existing, resp.Body, overlap); err != nil {
			return err
		}
	}

	if _, err = existing.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("download: error seeking to the end of the existing file: %w", err)
	}

	if _, err = io.Copy(existing, resp.Body); err != nil {
		return fmt.Errorf("download: error during download: %w", err)
	}
	return nil
}

func checkOverlap(existing io.ReadSeeker, download io.Reader, overlap int64) error {
	bufW := make([]byte, overlap)
	bufL := make([]byte, overlap)

	_, err := io.ReadFull(download, bufW)
	if err != nil {
		return fmt.Errorf("download: error downloading the overlapping data: %w", err)
	}

	_, err = existing.Seek(-overlap, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("download: error seeking to the start of the existing overlap: %w", err)
	}

	_, err = io.ReadFull(existing, bufL)
	if err != nil {
		return fmt.Errorf("download: error reading the local overlapping data: %w", err)
	}

	if !bytes.Equal(bufW, bufL) {
		return ErrOverlapNotEqual
	}

	return nil
}

func calculateSize(existing *os.File, size int64) (existingSize, overlap int64, err error) {
	info, err := existing.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("download: error reading file info: %w", err)
	}

	existingSize = info.Size()
	if size <= 0 || existingSize > size {
		// unknown expected size, or local file larger than expected:
		// start over
		if err = existing.Truncate(0); err != nil {
			return 0, 0, fmt.Errorf("download: error emptying file: %w", err)
		}
		if _, err = existing.Seek(0, io.SeekStart); err != nil {
			return 0, 0, fmt.Errorf("download: error rewinding file: %w", err)
		}
		return 0, 0, nil
	}
	if existingSize == size {
		return existingSize, 0, nil
	}

	overlap = defaultOverlap
	if overlap > existingSize {
		overlap = existingSize
	}

	return existingSize, overlap, nil
}

func (c *Client) createRequest(ctx context.Context, url string, start int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download: error creating HTTP request: %w", err)
	}

	req.Header.Set("User-Agent", "slack-mm2/1.0")
	if start > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}
	if auth := c.authHeaderFor(url); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	return req, nil
}
