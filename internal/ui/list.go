package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/jobsync/internal/models"
)

var _ list.Item = jobItem{}

// jobItem wraps [models.LocalJob] to implement [list.Item].
type jobItem struct {
	job *models.LocalJob
}

func (i jobItem) FilterValue() string { return i.job.Title() }
func (i jobItem) Title() string {
	title := fmt.Sprintf("#%s %s", i.job.SourceID(), i.job.Title())
	if i.job.Status() == models.JobStatusClosed {
		title += " (closed)"
	}
	return title
}
func (i jobItem) Description() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.job.Location(), i.job.EmploymentType(), strings.Join(i.job.Categories(), ", ")} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "no details"
	}
	return strings.Join(parts, " • ")
}

func jobItems(jobs []*models.LocalJob) []list.Item {
	items := make([]list.Item, len(jobs))
	for i, job := range jobs {
		items[i] = jobItem{job: job}
	}
	return items
}
