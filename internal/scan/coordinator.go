// Package scan iterates monitored Telegram channels newest-first, downloads
// papers and quiz images, and drives the processing pipelines. Each channel
// carries a resumable cursor: the highest message id whose items were all
// durably handled.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medlit/paperbot/internal/config"
	"github.com/medlit/paperbot/internal/db"
	"github.com/medlit/paperbot/internal/observability"
	"github.com/medlit/paperbot/internal/process/processor"
)

// ErrChannelNotFound indicates the channel username did not resolve.
var ErrChannelNotFound = errors.New("channel not found")

// ErrNotAChannel indicates the resolved peer is not a channel.
var ErrNotAChannel = errors.New("peer is not a channel")

// DocumentPipeline runs one downloaded paper through the full pipeline.
type DocumentPipeline interface {
	Process(ctx context.Context, path string) processor.Result
}

// QuizPipeline handles a single downloaded quiz image.
type QuizPipeline interface {
	ProcessImage(ctx context.Context, path string) processor.Result
}

// Reporter receives the final snapshot of each scan session.
type Reporter interface {
	ScanFinished(ctx context.Context, snapshot Snapshot)
}

type Coordinator struct {
	cfg       *config.Config
	database  *db.DB
	documents DocumentPipeline
	quizzes   QuizPipeline
	session   *Session
	logger    *zerolog.Logger

	client   *telegram.Client
	trigger  chan struct{}
	reporter Reporter
}

func NewCoordinator(cfg *config.Config, database *db.DB, documents DocumentPipeline, quizzes QuizPipeline, session *Session, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		database:  database,
		documents: documents,
		quizzes:   quizzes,
		session:   session,
		logger:    logger,
		trigger:   make(chan struct{}, 1),
	}
}

// SetReporter registers an optional listener for finished scan sessions.
func (c *Coordinator) SetReporter(reporter Reporter) {
	c.reporter = reporter
}

// Trigger requests an immediate scan pass. Non-blocking; a pending trigger
// is collapsed into one.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

// Run authenticates the Telegram client and loops scan passes until the
// context is canceled. Passes run on the configured interval or on demand
// via Trigger.
func (c *Coordinator) Run(ctx context.Context) error {
	client := telegram.NewClient(c.cfg.TGAPIID, c.cfg.TGAPIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: c.cfg.TGSessionPath,
		},
	})

	c.client = client

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, c.authFlow()); err != nil {
			return err
		}

		c.logger.Info().Msg("authenticated with Telegram")

		api := tg.NewClient(client)

		for {
			if err := c.ScanAll(ctx, api); err != nil && !errors.Is(err, ErrScanInProgress) {
				c.logger.Error().Err(err).Msg("scan pass failed")
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.trigger:
			case <-time.After(c.cfg.ScanInterval):
			}
		}
	})
}

// ScanAll runs one session over every active channel. A failure in one
// channel is recorded and does not abort the rest.
func (c *Coordinator) ScanAll(ctx context.Context, api *tg.Client) error {
	channels, err := c.database.GetActiveChannels(ctx)
	if err != nil {
		return fmt.Errorf("get active channels: %w", err)
	}

	if err := c.session.TryStart(len(channels)); err != nil {
		return err
	}
	defer c.session.End()

	c.logger.Info().Int("channels", len(channels)).Msg("scan session starting")

	for _, channel := range channels {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.session.StartChannel(channel.Username)

		if err := c.scanChannel(ctx, api, channel); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}

			kind := classifyScanError(err)
			c.logger.Error().Err(err).Str("channel", channel.Username).Str("kind", kind).Msg("channel scan failed")
			c.session.AddError(channel.Username, err.Error())
			observability.ScanErrors.WithLabelValues(channel.Username, kind).Inc()
		}

		c.session.FinishChannel()
	}

	snapshot := c.session.Snapshot()
	c.logger.Info().
		Int("new", snapshot.NewPapers).
		Int("duplicates", snapshot.Duplicates).
		Int("quizzes", snapshot.Quizzes).
		Int("errors", snapshot.Errors).
		Msg("scan session finished")

	if c.reporter != nil {
		c.reporter.ScanFinished(ctx, snapshot)
	}

	return nil
}

// item is one channel message considered during a pass. An item counts as
// handled when it was fully processed or explicitly skipped; only handled
// items may advance the cursor.
type item struct {
	id      int64
	path    string
	isQuiz  bool
	skip    bool
	handled bool
}

func (c *Coordinator) scanChannel(ctx context.Context, api *tg.Client, channel db.Channel) error {
	peer, err := c.resolvePeer(ctx, api, &channel)
	if err != nil {
		return err
	}

	items, err := c.collectItems(ctx, api, peer, channel)
	if err != nil {
		// Commit what was durably handled before the failure.
		c.commitCursor(ctx, channel, items)
		return err
	}

	c.processItems(ctx, items)
	c.commitCursor(ctx, channel, items)

	return nil
}

// resolvePeer uses the cached peer identity when present, otherwise
// resolves the username once and caches the result.
func (c *Coordinator) resolvePeer(ctx context.Context, api *tg.Client, channel *db.Channel) (tg.InputPeerClass, error) {
	if channel.TGPeerID != 0 && channel.AccessHash != 0 {
		return &tg.InputPeerChannel{
			ChannelID:  channel.TGPeerID,
			AccessHash: channel.AccessHash,
		}, nil
	}

	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: channel.Username})
	if err != nil {
		return nil, fmt.Errorf("resolve username: %w", err)
	}

	if len(resolved.Chats) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channel.Username)
	}

	tgChannel, ok := resolved.Chats[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAChannel, channel.Username)
	}

	channel.TGPeerID = tgChannel.ID
	channel.AccessHash = tgChannel.AccessHash

	if err := c.database.UpdateChannelPeer(ctx, channel.ID, tgChannel.ID, tgChannel.AccessHash, tgChannel.Title); err != nil {
		c.logger.Warn().Err(err).Str("channel", channel.Username).Msg("failed to cache peer info")
	}

	return &tg.InputPeerChannel{
		ChannelID:  channel.TGPeerID,
		AccessHash: channel.AccessHash,
	}, nil
}

// collectItems pages the channel history newest-first, downloading each
// relevant payload, until it reaches the cursor, the item cap, or the end
// of history. A flood-wait signal pauses the same channel and continues.
func (c *Coordinator) collectItems(ctx context.Context, api *tg.Client, peer tg.InputPeerClass, channel db.Channel) ([]item, error) {
	var (
		items    []item
		offsetID int
	)

	for len(items) < c.cfg.ScanMessageLimit {
		req := &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    c.cfg.ScanFetchBatch,
		}

		history, err := api.MessagesGetHistory(ctx, req)
		if err != nil {
			floodErr, ok := tgerr.As(err)
			if ok && floodErr.Type == "FLOOD_WAIT" {
				wait := time.Duration(floodErr.Argument) * time.Second
				c.logger.Warn().Dur("wait", wait).Str("channel", channel.Username).Msg("flood wait")
				observability.ScanFloodWaitSeconds.WithLabelValues(channel.Username).Add(wait.Seconds())

				select {
				case <-ctx.Done():
					return items, ctx.Err()
				case <-time.After(wait):
				}

				continue
			}

			return items, fmt.Errorf("get history: %w", err)
		}

		messages := historyMessages(history)
		if len(messages) == 0 {
			break
		}

		selected, nextOffset, reachedCursor := filterBatch(messages, channel.LastMessageID, c.cfg.ScanMessageLimit-len(items), offsetID)
		offsetID = nextOffset

		for _, msg := range selected {
			items = append(items, c.classify(ctx, api, channel, msg))
		}

		if reachedCursor {
			break
		}
	}

	return items, nil
}

// filterBatch walks one newest-first history batch and selects the messages
// above the cursor, up to the remaining capacity. It returns the selection,
// the paging offset for the next request, and whether the cursor was
// reached. Nothing at or below the cursor is ever selected: those messages
// were handled in an earlier pass.
func filterBatch(messages []tg.MessageClass, cursor int64, capacity, offsetID int) ([]*tg.Message, int, bool) {
	var selected []*tg.Message

	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}

		if offsetID == 0 || msg.ID < offsetID {
			offsetID = msg.ID
		}

		if int64(msg.ID) <= cursor {
			return selected, offsetID, true
		}

		if len(selected) >= capacity {
			break
		}

		selected = append(selected, msg)
	}

	return selected, offsetID, false
}

// classify routes one message to a payload kind and downloads it. Items
// with no relevant payload, or with an empty download, are skips: durably
// handled without processing.
func (c *Coordinator) classify(ctx context.Context, api *tg.Client, channel db.Channel, msg *tg.Message) item {
	it := item{id: int64(msg.ID)}

	if msg.Media == nil {
		it.skip = true
		it.handled = true
		observability.ScanItemsSeen.WithLabelValues(channel.Username, "text").Inc()

		return it
	}

	switch media := msg.Media.(type) {
	case *tg.MessageMediaDocument:
		doc, ok := media.Document.(*tg.Document)
		if !ok || doc.MimeType != "application/pdf" {
			it.skip = true
			it.handled = true
			observability.ScanItemsSeen.WithLabelValues(channel.Username, "other_media").Inc()

			return it
		}

		observability.ScanItemsSeen.WithLabelValues(channel.Username, "document").Inc()

		path, err := c.downloadDocument(ctx, api, channel.Username, msg.ID, doc)
		if err != nil {
			c.logger.Warn().Err(err).Str("channel", channel.Username).Int("msg_id", msg.ID).Msg("document download failed")
			return it
		}

		if path == "" {
			it.skip = true
			it.handled = true

			return it
		}

		it.path = path

	case *tg.MessageMediaPhoto:
		if !channel.IsQuiz {
			it.skip = true
			it.handled = true
			observability.ScanItemsSeen.WithLabelValues(channel.Username, "photo").Inc()

			return it
		}

		observability.ScanItemsSeen.WithLabelValues(channel.Username, "quiz_photo").Inc()

		photo, ok := media.Photo.(*tg.Photo)
		if !ok {
			it.skip = true
			it.handled = true

			return it
		}

		path, err := c.downloadPhoto(ctx, api, channel.Username, msg.ID, photo)
		if err != nil {
			c.logger.Warn().Err(err).Str("channel", channel.Username).Int("msg_id", msg.ID).Msg("photo download failed")
			return it
		}

		if path == "" {
			it.skip = true
			it.handled = true

			return it
		}

		it.path = path
		it.isQuiz = true

	default:
		it.skip = true
		it.handled = true
		observability.ScanItemsSeen.WithLabelValues(channel.Username, "other_media").Inc()
	}

	return it
}

// processItems runs the pipelines over downloaded items with bounded
// concurrency. Per-item failures are recorded, never propagated: one bad
// paper must not sink the channel pass.
func (c *Coordinator) processItems(ctx context.Context, items []item) {
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ScanItemConcurrency)

	for i := range items {
		if items[i].skip || items[i].path == "" {
			continue
		}

		it := &items[i]

		g.Go(func() error {
			var result processor.Result
			if it.isQuiz {
				result = c.quizzes.ProcessImage(gctx, it.path)
			} else {
				result = c.documents.Process(gctx, it.path)
			}

			mu.Lock()
			defer mu.Unlock()

			switch result.Status {
			case processor.StatusSuccess:
				it.handled = true
				if it.isQuiz {
					c.session.AddQuiz()
				} else {
					c.session.AddNewPaper()
				}
			case processor.StatusDuplicate:
				it.handled = true
				c.session.AddDuplicate()
			case processor.StatusFailed:
				c.logger.Error().Err(result.Err).Str("stage", string(result.Stage)).Str("file", it.path).Msg("item processing failed")
				c.session.AddError("", fmt.Sprintf("processing %s: %v", filepath.Base(it.path), result.Err))
			}

			return nil
		})
	}

	_ = g.Wait()
}

// commitCursor persists the new cursor once per pass: the highest message
// id such that it and every item below it were durably handled. A crash or
// failure mid-pass leaves the cursor at the last safe point, so the next
// run re-examines at most the unfinished tail.
func (c *Coordinator) commitCursor(ctx context.Context, channel db.Channel, items []item) {
	cursor := advanceCursor(channel.LastMessageID, items)
	if cursor <= channel.LastMessageID {
		return
	}

	if err := c.database.UpdateChannelCursor(ctx, channel.ID, cursor); err != nil {
		c.logger.Error().Err(err).Str("channel", channel.Username).Int64("cursor", cursor).Msg("failed to commit cursor")
		return
	}

	observability.ScanCursor.WithLabelValues(channel.Username).Set(float64(cursor))
	c.logger.Info().Str("channel", channel.Username).Int64("cursor", cursor).Msg("cursor advanced")
}

// advanceCursor walks the pass's items in ascending id order and returns
// the highest id reachable through an unbroken run of handled items.
func advanceCursor(prev int64, items []item) int64 {
	sorted := make([]item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	cursor := prev

	for _, it := range sorted {
		if it.id <= cursor {
			continue
		}

		if !it.handled {
			break
		}

		cursor = it.id
	}

	return cursor
}

func historyMessages(history tg.MessagesMessagesClass) []tg.MessageClass {
	switch h := history.(type) {
	case *tg.MessagesMessages:
		return h.Messages
	case *tg.MessagesMessagesSlice:
		return h.Messages
	case *tg.MessagesChannelMessages:
		return h.Messages
	default:
		return nil
	}
}

// classifyScanError buckets channel-scoped failures for the session log.
func classifyScanError(err error) string {
	if tgErr, ok := tgerr.As(err); ok {
		if tgErr.Type == "FLOOD_WAIT" {
			return "flood"
		}

		return "protocol"
	}

	return "unexpected"
}

// downloadDocument streams a PDF into the download directory, reusing an
// already-present non-empty file.
func (c *Coordinator) downloadDocument(ctx context.Context, api *tg.Client, channelName string, msgID int, doc *tg.Document) (string, error) {
	dir := filepath.Join(c.cfg.DownloadDir, channelName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("download dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d_%s", msgID, documentFilename(doc)))

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	location := &tg.InputDocumentFileLocation{
		ID:            doc.ID,
		AccessHash:    doc.AccessHash,
		FileReference: doc.FileReference,
	}

	return c.downloadTo(ctx, api, location, path)
}

func (c *Coordinator) downloadPhoto(ctx context.Context, api *tg.Client, channelName string, msgID int, photo *tg.Photo) (string, error) {
	thumbSize := largestPhotoSize(photo)
	if thumbSize == "" {
		return "", nil
	}

	dir := filepath.Join(c.cfg.ImageDir, channelName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("image dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.jpg", msgID))

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	location := &tg.InputPhotoFileLocation{
		ID:            photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		ThumbSize:     thumbSize,
	}

	return c.downloadTo(ctx, api, location, path)
}

// downloadTo streams the file and discards empty downloads, returning an
// empty path so the item is skipped rather than fed to a pipeline.
func (c *Coordinator) downloadTo(ctx context.Context, api *tg.Client, location tg.InputFileLocationClass, path string) (string, error) {
	if _, err := downloader.NewDownloader().Download(api, location).ToPath(ctx, path); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("download media: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if info.Size() == 0 {
		c.logger.Warn().Str("file", path).Msg("discarding empty download")
		_ = os.Remove(path)

		return "", nil
	}

	return path, nil
}

func documentFilename(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		if filename, ok := attr.(*tg.DocumentAttributeFilename); ok && filename.FileName != "" {
			return sanitizeFilename(filename.FileName)
		}
	}

	return "document.pdf"
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")

	return name
}

func largestPhotoSize(photo *tg.Photo) string {
	var (
		best    string
		maxArea int
	)

	for _, size := range photo.Sizes {
		switch s := size.(type) {
		case *tg.PhotoSize:
			if s.W*s.H > maxArea {
				maxArea = s.W * s.H
				best = s.Type
			}
		case *tg.PhotoSizeProgressive:
			if s.W*s.H > maxArea {
				maxArea = s.W * s.H
				best = s.Type
			}
		}
	}

	return best
}
