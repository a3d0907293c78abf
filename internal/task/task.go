package task

import "regexp"

var urlPattern = regexp.MustCompile(`https?://[^\s<>\[\]()]+`)

// Task is a single reading-list entry. URL is empty when no link could be
// extracted from the task content; such tasks are not eligible for the
// pipeline.
type Task struct {
	ID          string
	Content     string
	Description string
	URL         string
}

// ExtractURL returns the first URL found in a task's content, or "".
func ExtractURL(content string) string {
	return urlPattern.FindString(content)
}
