package application

import (
	"strings"

	"github.com/oksasatya/realtime-task-client/internal/domain/entity"
)

// StatusAll disables the status filter.
const StatusAll = "All"

// FilterTasks keeps the tasks whose status matches status (StatusAll or
// empty matches any) and whose title contains query, ignoring case.
func FilterTasks(tasks []entity.Task, status, query string) []entity.Task {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]entity.Task, 0, len(tasks))
	for _, t := range tasks {
		if status != "" && !strings.EqualFold(status, StatusAll) && string(t.Status) != status {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(t.Title), query) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FilterProjects keeps the projects whose name contains query, ignoring
// case.
func FilterProjects(projects []entity.Project, query string) []entity.Project {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]entity.Project, 0, len(projects))
	for _, p := range projects {
		if query == "" || strings.Contains(strings.ToLower(p.Name), query) {
			out = append(out, p)
		}
	}
	return out
}
