package slack

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ExtractZip extracts a Slack export archive into destDir, which must
// already exist. The caller owns cleanup of destDir.
func ExtractZip(zipPath, destDir string, logger log.FieldLogger) error {
	zipReader, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open export archive %s", zipPath)
	}
	defer zipReader.Close()

	return extractTo(&zipReader.Reader, destDir, logger)
}

func extractTo(zipReader *zip.Reader, destDir string, logger log.FieldLogger) error {
	totalFiles := len(zipReader.File)
	logger.Infof("Extracting %d files to %s", totalFiles, destDir)

	for i, f := range zipReader.File {
		// Slack file conversation exports carry a : in the name, which is
		// not portable across filesystems.
		sanitizedName := strings.ReplaceAll(f.Name, ":", "")
		fpath := filepath.Join(destDir, sanitizedName)

		// Reject entries escaping the destination directory.
		if !strings.HasPrefix(fpath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return errors.Errorf("illegal archive path %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, os.ModePerm); err != nil {
				return errors.Wrap(err, "error creating directory")
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fpath), os.ModePerm); err != nil {
			return errors.Wrap(err, "error creating directory")
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return errors.Wrap(err, "error creating file")
		}

		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return errors.Wrap(err, "error opening archive entry")
		}

		_, err = io.Copy(outFile, rc)

		// Close without defer to release handles before the next iteration.
		outFile.Close()
		rc.Close()
		if err != nil {
			return errors.Wrap(err, "error copying file")
		}

		if i%1000 == 0 || i == totalFiles-1 {
			logger.Infof("Extracting file %d of %d", i+1, totalFiles)
		}
	}

	logger.Info("Finished extracting files")
	return nil
}
