package jobs

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/insoln/slack-mm2/models"
)

// topLevelFiles are the archive-root JSON files counted toward
// json_files_total, alongside every per-channel day file.
var topLevelFiles = []string{"users.json", "channels.json", "groups.json", "dms.json", "mpims.json"}

// ListJobs returns the most recent jobs with derived progress, newest
// first.
func (s *Supervisor) ListJobs(ctx context.Context, limit int) ([]*models.ImportJob, error) {
	rows, err := s.jobs.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ImportJob, 0, len(rows))
	for _, job := range rows {
		out = append(out, s.DescribeJob(ctx, job))
	}
	return out, nil
}

// DescribeJob fills the gaps the pipeline's own accounting leaves in job
// meta: file totals scraped from the extract dir or the archive while the
// import still runs, entity totals from the database when the pre-count
// never happened, and processed counters derived from non-pending rows.
// During import stages the stored counters only ever go up; once the job
// reaches exporting they restart from the live non-pending counts.
func (s *Supervisor) DescribeJob(ctx context.Context, job *models.ImportJob) *models.ImportJob {
	meta := models.JSONMap{}
	for k, v := range job.Meta {
		meta[k] = v
	}
	importStage := job.CurrentStage.IsImportStage()

	if importStage && meta.GetInt(models.MetaJSONFilesTotal) == 0 {
		if dir := meta.GetString(models.MetaExtractDir); dir != "" {
			if total, err := countExtractedFiles(dir); err == nil && total > 0 {
				meta[models.MetaJSONFilesTotal] = total
			}
		}
		if meta.GetInt(models.MetaJSONFilesTotal) == 0 {
			if zipPath := meta.GetString(models.MetaZipPath); zipPath != "" {
				if total, err := countArchiveFiles(zipPath); err == nil && total > 0 {
					meta[models.MetaJSONFilesTotal] = total
				}
			}
		}
	}

	totals, _ := meta[models.MetaTotals].(map[string]any)
	if jobScopedTotalsEmpty(totals) {
		counts, err := s.entities.CountByTypeForJob(ctx, job.ID, false)
		if err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to derive job totals")
		} else {
			meta[models.MetaTotals] = models.JSONMap{
				"messages":    counts[models.EntityTypeMessage],
				"reactions":   counts[models.EntityTypeReaction],
				"attachments": counts[models.EntityTypeAttachment],
				"emojis":      models.JSONMap(totals).GetInt("emojis"),
			}
		}
	}

	nonPending, err := s.entities.CountByTypeForJob(ctx, job.ID, true)
	if err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to derive job progress")
	} else if importStage {
		meta[models.MetaMessagesProcessed] = maxInt64(meta.GetInt(models.MetaMessagesProcessed), nonPending[models.EntityTypeMessage])
		meta[models.MetaReactionsProcessed] = maxInt64(meta.GetInt(models.MetaReactionsProcessed), nonPending[models.EntityTypeReaction])
		meta[models.MetaAttachmentsProcessed] = maxInt64(meta.GetInt(models.MetaAttachmentsProcessed), nonPending[models.EntityTypeAttachment])
	} else {
		meta[models.MetaMessagesProcessed] = nonPending[models.EntityTypeMessage]
		meta[models.MetaReactionsProcessed] = nonPending[models.EntityTypeReaction]
		meta[models.MetaAttachmentsProcessed] = nonPending[models.EntityTypeAttachment]
	}

	out := *job
	out.Meta = meta
	return &out
}

// jobScopedTotalsEmpty reports whether totals still need deriving: absent
// entirely, or all job-scoped counts zero (the emoji count is global and
// does not count).
func jobScopedTotalsEmpty(totals map[string]any) bool {
	if len(totals) == 0 {
		return true
	}
	m := models.JSONMap(totals)
	return m.GetInt("messages") == 0 && m.GetInt("reactions") == 0 && m.GetInt("attachments") == 0
}

// countExtractedFiles counts the known top-level JSON files plus every
// *.json inside channel folders of a live extraction directory.
func countExtractedFiles(dir string) (int64, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, os.ErrNotExist
	}

	var total int64
	for _, name := range topLevelFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			total++
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(dir, entry.Name(), "*.json"))
		total += int64(len(matches))
	}
	return total, nil
}

// countArchiveFiles counts export JSON files straight from the uploaded
// ZIP, tolerating the wrapper folder Slack sometimes puts around the
// export.
func countArchiveFiles(zipPath string) (int64, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	top := map[string]struct{}{}
	for _, name := range topLevelFiles {
		top[name] = struct{}{}
	}

	var total int64
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		parts := splitArchivePath(f.Name)
		if len(parts) == 0 {
			continue
		}
		name := parts[len(parts)-1]
		if len(parts) == 1 {
			if _, ok := top[name]; ok {
				total++
			}
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), ".json") {
			total++
		}
	}
	return total, nil
}

func splitArchivePath(name string) []string {
	parts := strings.Split(name, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
