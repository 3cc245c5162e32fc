package farmbrief

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// WhiteboardStatus is the whiteboard state machine phase.
type WhiteboardStatus string

const (
	WhiteboardActive    WhiteboardStatus = "active"
	WhiteboardCompleted WhiteboardStatus = "completed"
)

// whiteboardImageExtensions is the filename extension allow-list for
// image submissions.
var whiteboardImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// WhiteboardImage is one accepted image submission.
type WhiteboardImage struct {
	Data        []byte
	ContentType string
	Filename    string
	SubmitterID string
}

// WhiteboardSession holds the mutable state of one whiteboard run.
type WhiteboardSession struct {
	Title     string
	CreatorID string
	StartedAt time.Time

	mu           sync.Mutex
	status       WhiteboardStatus
	images       []WhiteboardImage
	contributors map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWhiteboardSession returns an Active whiteboard session.
func NewWhiteboardSession(title, creatorID string) *WhiteboardSession {
	return &WhiteboardSession{
		Title:        title,
		CreatorID:    creatorID,
		StartedAt:    time.Now(),
		status:       WhiteboardActive,
		contributors: map[string]bool{},
		stopCh:       make(chan struct{}),
	}
}

// Status returns the current status.
func (w *WhiteboardSession) Status() WhiteboardStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// End signals the orchestrator to stop collecting and produce the summary.
// Safe to call more than once.
func (w *WhiteboardSession) End() {
	w.stopOnce.Do(
		func() {
			close(w.stopCh)
		},
	)
}

// ValidateImage checks an image submission against the format rules: the
// content type must indicate an image and the filename extension must be
// allow-listed. A rejected format mutates nothing.
func ValidateImage(contentType, filename string) error {
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf(
			"unsupported content type %q (expected an image)",
			contentType,
		)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !whiteboardImageExtensions[ext] {
		return fmt.Errorf(
			"unsupported image format %q (allowed: png, jpg, jpeg, gif, webp)",
			ext,
		)
	}
	return nil
}

// AddImage appends a validated image to the board and records its
// submitter as a contributor.
func (w *WhiteboardSession) AddImage(img WhiteboardImage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images = append(w.images, img)
	w.contributors[img.SubmitterID] = true
}

// Images returns a snapshot of the accepted images, in submission order.
func (w *WhiteboardSession) Images() []WhiteboardImage {
	w.mu.Lock()
	defer w.mu.Unlock()
	images := make([]WhiteboardImage, len(w.images))
	copy(images, w.images)
	return images
}

// ContributorCount returns the number of distinct submitters.
func (w *WhiteboardSession) ContributorCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.contributors)
}

func (w *WhiteboardSession) setStatus(s WhiteboardStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = s
}

// ImageDescriber is the slice of the generation client the whiteboard
// orchestrator uses.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, image []byte, mimeType string) (string, error)
}

// AttachmentFetcher downloads attachment content. The concrete
// implementation wraps an http.Client; tests substitute a fake.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type httpAttachmentFetcher struct {
	client *http.Client
}

func (f httpAttachmentFetcher) Fetch(ctx context.Context, url string) (
	[]byte,
	error,
) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	rv, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading attachment: %w", err)
	}
	defer func() {
		_ = rv.Body.Close()
	}()
	if rv.StatusCode < 200 || rv.StatusCode > 299 {
		return nil, fmt.Errorf("attachment download failed: %d", rv.StatusCode)
	}
	return readAll(rv.Body, "attachment")
}

// WhiteboardOrchestrator drives whiteboard sessions through
// Active -> Completed.
type WhiteboardOrchestrator struct {
	messenger Messenger
	signals   SignalSource
	describer ImageDescriber
	fetcher   AttachmentFetcher
	recorder  SessionRecorder
	logger    *slog.Logger
	config    *SessionConfig
}

// NewWhiteboardOrchestrator returns a whiteboard orchestrator. recorder
// may be nil.
func NewWhiteboardOrchestrator(
	messenger Messenger,
	signals SignalSource,
	describer ImageDescriber,
	fetcher AttachmentFetcher,
	recorder SessionRecorder,
	logger *slog.Logger,
	config *SessionConfig,
) *WhiteboardOrchestrator {
	return &WhiteboardOrchestrator{
		messenger: messenger,
		signals:   signals,
		describer: describer,
		fetcher:   fetcher,
		recorder:  recorder,
		logger:    logger,
		config:    config,
	}
}

// Run collects image submissions until the end signal, then summarizes
// every collected image through the vision model. The caller removes the
// session from the store on return, on every path.
func (o *WhiteboardOrchestrator) Run(ctx context.Context, sess *Session) error {
	board := sess.Whiteboard

	_, _ = o.messenger.Send(
		sess.ChannelID,
		fmt.Sprintf(
			"🖼️ **Whiteboard session started**: %s\nPost images in this channel to add them to the board. Use `/whiteboard end` to finish.",
			board.Title,
		),
	)

	collectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-board.stopCh:
			cancel()
		case <-collectCtx.Done():
		}
	}()

	for collectCtx.Err() == nil {
		msg, ok := o.signals.AwaitMessage(
			collectCtx,
			sess.ChannelID,
			func(m *discordgo.Message) bool {
				return len(m.Attachments) > 0
			},
			o.config.WhiteboardPollTimeout,
		)
		if !ok {
			// poll timeout or end signal; only the end signal exits
			continue
		}
		o.handleSubmission(collectCtx, sess, msg)
	}

	if ctx.Err() != nil {
		o.archive(sess, "aborted")
		return ctx.Err()
	}

	board.setStatus(WhiteboardCompleted)

	images := board.Images()
	if len(images) == 0 {
		_, _ = o.messenger.Send(
			sess.ChannelID,
			"🖼️ Whiteboard session ended with no images collected.",
		)
		o.archive(sess, "discarded")
		return nil
	}

	o.summarize(ctx, sess, images)
	o.archive(sess, "completed")
	return nil
}

// handleSubmission validates and stores each image attachment on the
// message. Rejected formats get a user-visible warning and no state change.
func (o *WhiteboardOrchestrator) handleSubmission(
	ctx context.Context,
	sess *Session,
	msg *discordgo.Message,
) {
	for _, att := range msg.Attachments {
		if att == nil {
			continue
		}
		// validate before downloading
		if err := ValidateImage(att.ContentType, att.Filename); err != nil {
			_, _ = o.messenger.Send(
				sess.ChannelID,
				fmt.Sprintf("⚠️ Skipped %s: %s", att.Filename, err.Error()),
			)
			continue
		}

		data, err := o.fetcher.Fetch(ctx, att.URL)
		if err != nil {
			o.logger.WarnContext(
				ctx,
				"attachment download failed",
				tint.Err(err),
				"filename", att.Filename,
			)
			_, _ = o.messenger.Send(
				sess.ChannelID,
				fmt.Sprintf("⚠️ Couldn't download %s", att.Filename),
			)
			continue
		}
		sess.Whiteboard.AddImage(
			WhiteboardImage{
				Data:        data,
				ContentType: att.ContentType,
				Filename:    att.Filename,
				SubmitterID: msg.Author.ID,
			},
		)

		_, _ = o.messenger.Send(
			sess.ChannelID,
			fmt.Sprintf("✅ Added %s to the whiteboard!", att.Filename),
		)
	}
}

// summarize runs every collected image through the vision model
// independently; a failed image contributes an error note instead of
// sinking the whole summary.
func (o *WhiteboardOrchestrator) summarize(
	ctx context.Context,
	sess *Session,
	images []WhiteboardImage,
) {
	board := sess.Whiteboard

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", board.Title)
	for i, img := range images {
		summary, err := o.describer.DescribeImage(ctx, img.Data, img.ContentType)
		if err != nil {
			o.logger.ErrorContext(
				ctx,
				"image summary failed",
				tint.Err(err),
				"index", i,
			)
			summary = "(summary unavailable for this image)"
		}
		fmt.Fprintf(&sb, "**Image %d** (%s)\n%s\n\n", i+1, img.Filename, summary)
	}

	_ = o.messenger.SendChunked(sess.ChannelID, "🖼️ **Whiteboard Summary**", sb.String())

	_, _ = o.messenger.Send(
		sess.ChannelID,
		fmt.Sprintf(
			"📋 Session stats: %s long, %d image(s), %d contributor(s).",
			time.Since(board.StartedAt).Round(time.Second),
			len(images),
			board.ContributorCount(),
		),
	)
}

func (o *WhiteboardOrchestrator) archive(sess *Session, outcome string) {
	if o.recorder == nil {
		return
	}
	board := sess.Whiteboard
	o.recorder.RecordSession(
		&SessionRecord{
			SessionID:    sess.ID,
			Kind:         string(SessionKindWhiteboard),
			ChannelID:    sess.ChannelID,
			Outcome:      outcome,
			Participants: board.ContributorCount(),
			Items:        len(board.Images()),
			DurationMS:   time.Since(board.StartedAt).Milliseconds(),
		},
	)
}
