package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/philmod/tldrist/internal/extract"
	"github.com/philmod/tldrist/internal/fetch"
	"github.com/philmod/tldrist/internal/figure"
	"github.com/philmod/tldrist/internal/task"
)

type fakeTasks struct {
	tasks   []task.Task
	listErr error

	mu      sync.Mutex
	updates map[string]string
	updErr  error
}

func (f *fakeTasks) ListTasks(context.Context, string) ([]task.Task, error) {
	return f.tasks, f.listErr
}

func (f *fakeTasks) UpdateDescription(_ context.Context, taskID, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updErr != nil {
		return f.updErr
	}
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[taskID] = description
	return nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	fail    map[string]error
	panicOn string
}

func (f *fakeFetcher) bump() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*extract.Article, error) {
	f.bump()
	if url == f.panicOn {
		panic("fetcher blew up")
	}
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	return &extract.Article{URL: url, Title: "Article at " + url, Content: "body", WordCount: 80}, nil
}

func (f *fakeFetcher) FetchPDF(_ context.Context, url string) (*fetch.ArxivPaper, error) {
	f.bump()
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	return &fetch.ArxivPaper{URL: url, Title: "Paper at " + url, PDF: []byte("%PDF-fake")}, nil
}

type fakeSummarizer struct {
	err  error
	hint *figure.Hint
}

func (f *fakeSummarizer) SummarizeArticle(_ context.Context, title, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + title, nil
}

func (f *fakeSummarizer) SummarizePDF(_ context.Context, title string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + title, nil
}

func (f *fakeSummarizer) IdentifyFigure(context.Context, []byte) *figure.Hint { return f.hint }

type fakeLocator struct {
	data []byte
	mime string
}

func (f *fakeLocator) Locate(context.Context, []byte, figure.Hint) ([]byte, string) {
	return f.data, f.mime
}

type fakeDigest struct{ err error }

func (f *fakeDigest) Compose(_ context.Context, processed []ProcessedItem, failed []FailedItem) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return "subject", fmt.Sprintf("<html>%d/%d</html>", len(processed), len(failed)), nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeMailer) Send(to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

func urlTasks(urls ...string) []task.Task {
	tasks := make([]task.Task, len(urls))
	for i, u := range urls {
		tasks[i] = task.Task{ID: fmt.Sprintf("t%d", i+1), Content: u, URL: u}
	}
	return tasks
}

func newOrchestrator(tasks *fakeTasks, fetcher *fakeFetcher, sum *fakeSummarizer) *Orchestrator {
	return &Orchestrator{
		Tasks:      tasks,
		Fetcher:    fetcher,
		Summarizer: sum,
		Digest:     &fakeDigest{},
		Mailer:     &fakeMailer{},
		Recipient:  "reader@example.com",
	}
}

func TestRun_AllOutcomesAccounted(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{
		"https://b.example/two": &fetch.TransportError{Status: 403},
	}}
	src := &fakeTasks{tasks: urlTasks("https://a.example/one", "https://b.example/two", "https://c.example/three")}
	o := newOrchestrator(src, fetcher, &fakeSummarizer{})

	res, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TasksFound != 3 {
		t.Fatalf("tasks found = %d", res.TasksFound)
	}
	if len(res.Processed)+len(res.Failed) != res.TasksFound {
		t.Fatalf("processed %d + failed %d != found %d", len(res.Processed), len(res.Failed), res.TasksFound)
	}
	if len(res.Failed) != 1 || res.Failed[0].Reason != "HTTP 403" {
		t.Fatalf("failed = %+v", res.Failed)
	}
}

func TestRun_PreservesInputOrder(t *testing.T) {
	urls := []string{
		"https://e1.example/", "https://e2.example/", "https://e3.example/",
		"https://e4.example/", "https://e5.example/",
	}
	src := &fakeTasks{tasks: urlTasks(urls...)}
	o := newOrchestrator(src, &fakeFetcher{}, &fakeSummarizer{})
	o.Concurrency = 4

	res, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, item := range res.Processed {
		if item.URL != urls[i] {
			t.Fatalf("item %d = %q, want %q", i, item.URL, urls[i])
		}
	}
}

func TestRun_MinThresholdSkips(t *testing.T) {
	fetcher := &fakeFetcher{}
	src := &fakeTasks{tasks: urlTasks("https://a.example/")}
	o := newOrchestrator(src, fetcher, &fakeSummarizer{})
	o.MinItems = 3

	res, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped {
		t.Fatal("expected skipped run")
	}
	if fetcher.calls != 0 {
		t.Fatalf("fetcher ran %d times during a skipped run", fetcher.calls)
	}
}

func TestRun_MaxTruncatesAfterProcessing(t *testing.T) {
	fetcher := &fakeFetcher{}
	src := &fakeTasks{tasks: urlTasks(
		"https://a.example/", "https://b.example/", "https://c.example/", "https://d.example/",
	)}
	o := newOrchestrator(src, fetcher, &fakeSummarizer{})
	o.MaxItems = 2

	res, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Processed) != 2 {
		t.Fatalf("surfaced %d items, want 2", len(res.Processed))
	}
	if res.TruncatedProcessed != 4 {
		t.Fatalf("truncated count = %d, want 4", res.TruncatedProcessed)
	}
	// All eligible tasks were still attempted.
	if fetcher.calls != 4 {
		t.Fatalf("fetcher calls = %d, want 4", fetcher.calls)
	}
}

func TestRun_SummarizationFailureReason(t *testing.T) {
	src := &fakeTasks{tasks: urlTasks("https://a.example/")}
	o := newOrchestrator(src, &fakeFetcher{}, &fakeSummarizer{err: errors.New("empty response")})

	res, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("failed = %+v", res.Failed)
	}
	if res.Failed[0].Reason != "summarization failed: empty response" {
		t.Fatalf("reason = %q", res.Failed[0].Reason)
	}
}

func TestRun_PanicIsolatedToOneTask(t *testing.T) {
	fetcher := &fakeFetcher{panicOn: "https://b.example/"}
	src := &fakeTasks{tasks: urlTasks("https://a.example/", "https://b.example/", "https://c.example/")}
	o := newOrchestrator(src, fetcher, &fakeSummarizer{})

	res, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Processed) != 2 {
		t.Fatalf("processed = %d, want 2", len(res.Processed))
	}
	if len(res.Failed) != 1 || !strings.Contains(res.Failed[0].Reason, "blew up") {
		t.Fatalf("failed = %+v", res.Failed)
	}
}

func TestRun_ArxivRoutedToPaperPath(t *testing.T) {
	src := &fakeTasks{tasks: urlTasks("https://arxiv.org/abs/2401.12345")}
	sum := &fakeSummarizer{hint: &figure.Hint{PageNumber: 2, Label: "1", Description: "overview diagram"}}
	o := newOrchestrator(src, &fakeFetcher{}, sum)
	o.Figures = &fakeLocator{data: []byte{0x89, 0x50}, mime: "image/png"}

	res, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Processed) != 1 {
		t.Fatalf("processed = %+v failed = %+v", res.Processed, res.Failed)
	}
	item := res.Processed[0]
	if !strings.HasPrefix(item.Title, "Paper at ") {
		t.Fatalf("arXiv URL took the article path: title = %q", item.Title)
	}
	if item.ImageMIMEType != "image/png" || item.ImageCaption != "overview diagram" {
		t.Fatalf("figure not attached: %+v", item)
	}
}

func TestProcessTask_NoURL(t *testing.T) {
	fetcher := &fakeFetcher{}
	o := newOrchestrator(&fakeTasks{}, fetcher, &fakeSummarizer{})
	out := o.processTask(context.Background(), task.Task{ID: "t1", Content: "note without a link"})
	if out.failed == nil || out.failed.Reason != "no URL" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.failed.URL != "" {
		t.Fatalf("url = %q, want empty", out.failed.URL)
	}
	if fetcher.calls != 0 {
		t.Fatalf("fetcher ran %d times for a task without a URL", fetcher.calls)
	}
}

func TestRun_DryRunSkipsDelivery(t *testing.T) {
	src := &fakeTasks{tasks: urlTasks("https://a.example/")}
	mailer := &fakeMailer{}
	o := newOrchestrator(src, &fakeFetcher{}, &fakeSummarizer{})
	o.Mailer = mailer

	res, err := o.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EmailSent || len(mailer.sent) != 0 {
		t.Fatal("dry run must not send email")
	}
	if len(src.updates) != 0 {
		t.Fatal("dry run must not update tasks")
	}
	if res.DigestHTML == "" {
		t.Fatal("dry run should still compose the digest")
	}
}

func TestRun_LiveRunDeliversAndUpdates(t *testing.T) {
	src := &fakeTasks{tasks: urlTasks("https://a.example/", "https://b.example/")}
	mailer := &fakeMailer{}
	o := newOrchestrator(src, &fakeFetcher{}, &fakeSummarizer{})
	o.Mailer = mailer

	res, err := o.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.EmailSent || len(mailer.sent) != 1 || mailer.sent[0] != "reader@example.com" {
		t.Fatalf("email delivery: sent=%v res=%+v", mailer.sent, res.EmailSent)
	}
	if res.TasksUpdated != 2 || len(src.updates) != 2 {
		t.Fatalf("updates = %d (%v)", res.TasksUpdated, src.updates)
	}
	for _, desc := range src.updates {
		if !strings.Contains(desc, "## Summary") {
			t.Fatalf("description missing summary block: %q", desc)
		}
	}
}

func TestRun_UpdateFailuresCounted(t *testing.T) {
	src := &fakeTasks{
		tasks:  urlTasks("https://a.example/"),
		updErr: errors.New("503"),
	}
	o := newOrchestrator(src, &fakeFetcher{}, &fakeSummarizer{})

	res, err := o.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TasksUpdated != 0 || res.TasksUpdateFailed != 1 {
		t.Fatalf("updated=%d failed=%d", res.TasksUpdated, res.TasksUpdateFailed)
	}
}

func TestRun_ListFailureIsFatal(t *testing.T) {
	src := &fakeTasks{listErr: errors.New("401 unauthorized")}
	o := newOrchestrator(src, &fakeFetcher{}, &fakeSummarizer{})
	if _, err := o.Run(context.Background(), true); err == nil {
		t.Fatal("expected error when task listing fails")
	}
}

func TestFailureReason_Taxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&fetch.TransportError{Timeout: true}, "timeout"},
		{&fetch.TransportError{Status: 404}, "HTTP 404"},
		{&fetch.ContentError{Reason: "content extraction failed"}, "content extraction failed"},
		{fmt.Errorf("wrap: %w", &fetch.TransportError{Status: 500}), "HTTP 500"},
		{errors.New("other"), "other"},
	}
	for _, c := range cases {
		if got := failureReason(c.err); got != c.want {
			t.Fatalf("failureReason(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestFormatTaskDescription(t *testing.T) {
	item := ProcessedItem{
		Summary:     "The key takeaway.",
		ProcessedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	desc := FormatTaskDescription(item)
	if !strings.Contains(desc, "The key takeaway.") || !strings.Contains(desc, "2026-03-14") {
		t.Fatalf("description = %q", desc)
	}
}
