package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/philmod/tldrist/internal/extract"
	"github.com/philmod/tldrist/internal/fetch"
	"github.com/philmod/tldrist/internal/figure"
	"github.com/philmod/tldrist/internal/task"
)

// ProcessedItem is the pipeline's success output for one task. Owned
// exclusively by the caller after Run returns.
type ProcessedItem struct {
	TaskID      string
	URL         string
	Title       string
	Summary     string
	ProcessedAt time.Time

	// Optional figure attached to PDF-class items.
	ImageData     []byte
	ImageMIMEType string
	ImageCaption  string
}

// FailedItem is the pipeline's failure output for one task. Reason is a
// short, stable-prefix string surfaced in logs and the digest footnote.
type FailedItem struct {
	URL    string
	Reason string
}

// Result carries the statistics of one run. The invariant
// len(Processed)+len(Failed) == TasksFound holds for every non-skipped run
// before truncation; TruncatedProcessed records how many succeeded when a
// maximum cap trimmed the surfaced list.
type Result struct {
	TasksFound         int
	Processed          []ProcessedItem
	Failed             []FailedItem
	TruncatedProcessed int
	Skipped            bool
	DryRun             bool

	TasksUpdated      int
	TasksUpdateFailed int
	EmailSent         bool

	DigestSubject string
	DigestHTML    string
}

// TaskSource lists reading-list tasks and records summaries back.
type TaskSource interface {
	ListTasks(ctx context.Context, projectID string) ([]task.Task, error)
	UpdateDescription(ctx context.Context, taskID, description string) error
}

// Fetcher retrieves article or paper content for one URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*extract.Article, error)
	FetchPDF(ctx context.Context, url string) (*fetch.ArxivPaper, error)
}

// Summarizer produces summaries and best-effort figure hints.
type Summarizer interface {
	SummarizeArticle(ctx context.Context, title, content string) (string, error)
	SummarizePDF(ctx context.Context, title string, pdfBytes []byte) (string, error)
	IdentifyFigure(ctx context.Context, pdfBytes []byte) *figure.Hint
}

// FigureLocator extracts a representative image from a paper PDF.
type FigureLocator interface {
	Locate(ctx context.Context, pdfBytes []byte, hint figure.Hint) ([]byte, string)
}

// DigestComposer turns run output into a deliverable digest.
type DigestComposer interface {
	Compose(ctx context.Context, processed []ProcessedItem, failed []FailedItem) (subject, html string, err error)
}

// Mailer delivers the digest.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// Orchestrator drives the whole run: intake, threshold check, concurrent
// fan-out, aggregation, truncation, and delivery.
type Orchestrator struct {
	Tasks      TaskSource
	Fetcher    Fetcher
	Summarizer Summarizer
	Figures    FigureLocator
	Digest     DigestComposer
	Mailer     Mailer

	ProjectID string
	Recipient string

	// MinItems skips the run entirely when fewer eligible tasks exist.
	MinItems int
	// MaxItems bounds how many processed items are surfaced. All eligible
	// tasks are attempted regardless.
	MaxItems int
	// Concurrency bounds the fan-out. Zero means 8.
	Concurrency int
}

// outcome is the per-task tagged union: exactly one side is set.
type outcome struct {
	processed *ProcessedItem
	failed    *FailedItem
}

// Run executes the pipeline once. dryRun skips email delivery and task
// updates but performs all fetching and summarization.
func (o *Orchestrator) Run(ctx context.Context, dryRun bool) (Result, error) {
	log.Info().Bool("dry_run", dryRun).Str("project_id", o.ProjectID).Msg("starting run")

	tasks, err := o.Tasks.ListTasks(ctx, o.ProjectID)
	if err != nil {
		return Result{DryRun: dryRun}, fmt.Errorf("list tasks: %w", err)
	}
	eligible := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.URL != "" {
			eligible = append(eligible, t)
		}
	}
	log.Info().Int("count", len(eligible)).Msg("eligible tasks")

	res := Result{TasksFound: len(eligible), DryRun: dryRun}

	if o.MinItems > 0 && len(eligible) < o.MinItems {
		log.Info().Int("eligible", len(eligible)).Int("min", o.MinItems).Msg("below minimum threshold, skipping run")
		res.Skipped = true
		return res, nil
	}

	outcomes := o.fanOut(ctx, eligible)

	// Aggregate in input order.
	for _, oc := range outcomes {
		switch {
		case oc.processed != nil:
			res.Processed = append(res.Processed, *oc.processed)
		case oc.failed != nil:
			res.Failed = append(res.Failed, *oc.failed)
		}
	}
	log.Info().Int("processed", len(res.Processed)).Int("failed", len(res.Failed)).Msg("processing complete")

	// The maximum bounds what is surfaced, not what is attempted.
	res.TruncatedProcessed = len(res.Processed)
	if o.MaxItems > 0 && len(res.Processed) > o.MaxItems {
		log.Info().Int("max", o.MaxItems).Int("processed", len(res.Processed)).Msg("truncating surfaced items")
		res.Processed = res.Processed[:o.MaxItems]
	}

	if o.Digest != nil {
		subject, html, err := o.Digest.Compose(ctx, res.Processed, res.Failed)
		if err != nil {
			log.Warn().Err(err).Msg("digest composition failed, skipping delivery")
		} else {
			res.DigestSubject = subject
			res.DigestHTML = html
			log.Info().Str("subject", subject).Msg("digest composed")
		}
	}

	if dryRun {
		log.Info().Msg("dry run, skipping email and task updates")
		return res, nil
	}

	if res.DigestHTML != "" && o.Mailer != nil && o.Recipient != "" {
		if err := o.Mailer.Send(o.Recipient, res.DigestSubject, res.DigestHTML); err != nil {
			log.Error().Err(err).Msg("digest delivery failed")
		} else {
			res.EmailSent = true
			log.Info().Str("recipient", o.Recipient).Msg("digest email sent")
		}
	}

	res.TasksUpdated, res.TasksUpdateFailed = o.updateTasks(ctx, res.Processed)
	return res, nil
}

// fanOut processes every eligible task concurrently, bounded by the
// configured concurrency. One slot per task keeps input order; a failure
// in one task never touches another's outcome.
func (o *Orchestrator) fanOut(ctx context.Context, eligible []task.Task) []outcome {
	outcomes := make([]outcome, len(eligible))
	g := new(errgroup.Group)
	limit := o.Concurrency
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)
	for i, t := range eligible {
		i, t := i, t
		g.Go(func() error {
			outcomes[i] = o.processTask(ctx, t)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// processTask runs one task's full sequence and always yields exactly one
// outcome. Panics escaping any stage are converted to a FailedItem here,
// at the fan-out boundary.
func (o *Orchestrator) processTask(ctx context.Context, t task.Task) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task_id", t.ID).Str("url", t.URL).Interface("panic", r).Msg("task processing panicked")
			out = outcome{failed: &FailedItem{URL: t.URL, Reason: fmt.Sprint(r)}}
		}
	}()

	if t.URL == "" {
		return outcome{failed: &FailedItem{URL: "", Reason: "no URL"}}
	}
	log.Info().Str("task_id", t.ID).Str("url", t.URL).Msg("processing task")

	if fetch.IsArxiv(t.URL) {
		return o.processPaper(ctx, t)
	}
	return o.processArticle(ctx, t)
}

func (o *Orchestrator) processArticle(ctx context.Context, t task.Task) outcome {
	article, err := o.Fetcher.Fetch(ctx, t.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", t.URL).Msg("fetch failed")
		return outcome{failed: &FailedItem{URL: t.URL, Reason: failureReason(err)}}
	}

	summary, err := o.Summarizer.SummarizeArticle(ctx, article.Title, article.Content)
	if err != nil {
		log.Warn().Err(err).Str("url", t.URL).Msg("summarization failed")
		return outcome{failed: &FailedItem{URL: t.URL, Reason: "summarization failed: " + err.Error()}}
	}

	return outcome{processed: &ProcessedItem{
		TaskID:      t.ID,
		URL:         t.URL,
		Title:       article.Title,
		Summary:     summary,
		ProcessedAt: time.Now().UTC(),
	}}
}

func (o *Orchestrator) processPaper(ctx context.Context, t task.Task) outcome {
	paper, err := o.Fetcher.FetchPDF(ctx, t.URL)
	if err != nil {
		log.Warn().Err(err).Str("url", t.URL).Msg("PDF fetch failed")
		return outcome{failed: &FailedItem{URL: t.URL, Reason: failureReason(err)}}
	}

	summary, err := o.Summarizer.SummarizePDF(ctx, paper.Title, paper.PDF)
	if err != nil {
		log.Warn().Err(err).Str("url", t.URL).Msg("paper summarization failed")
		return outcome{failed: &FailedItem{URL: t.URL, Reason: "summarization failed: " + err.Error()}}
	}

	item := &ProcessedItem{
		TaskID:      t.ID,
		URL:         t.URL,
		Title:       paper.Title,
		Summary:     summary,
		ProcessedAt: time.Now().UTC(),
	}

	// Figure extraction is an optional enhancement; nothing here may fail
	// the item.
	if o.Figures != nil {
		if hint := o.Summarizer.IdentifyFigure(ctx, paper.PDF); hint != nil {
			if data, mimeType := o.Figures.Locate(ctx, paper.PDF, *hint); data != nil {
				item.ImageData = data
				item.ImageMIMEType = mimeType
				item.ImageCaption = hint.Description
			}
		}
	}

	return outcome{processed: item}
}

// failureReason maps the error taxonomy onto the closed set of reason
// strings.
func failureReason(err error) string {
	var terr *fetch.TransportError
	if errors.As(err, &terr) {
		return terr.Reason()
	}
	var cerr *fetch.ContentError
	if errors.As(err, &cerr) {
		return cerr.Reason
	}
	return err.Error()
}

// updateTasks writes summaries back to the task source. Failures are
// counted, not fatal.
func (o *Orchestrator) updateTasks(ctx context.Context, processed []ProcessedItem) (updated, failed int) {
	for _, item := range processed {
		if err := o.Tasks.UpdateDescription(ctx, item.TaskID, FormatTaskDescription(item)); err != nil {
			log.Error().Err(err).Str("task_id", item.TaskID).Msg("task update failed")
			failed++
			continue
		}
		updated++
	}
	if updated > 0 || failed > 0 {
		log.Info().Int("updated", updated).Int("failed", failed).Msg("tasks updated")
	}
	return updated, failed
}

// FormatTaskDescription renders the summary block written back into the
// task description.
func FormatTaskDescription(item ProcessedItem) string {
	return fmt.Sprintf("## Summary\n\n%s\n\n---\n*Processed by TLDRist on %s*",
		item.Summary, item.ProcessedAt.Format("2006-01-02"))
}
