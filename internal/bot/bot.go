// Package bot is the chat boundary: it routes commands, validates URLs,
// negotiates quality with the user and turns scheduler events back into chat
// messages. It holds no download logic of its own.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vidfetch/vidfetch-bot/internal/extract"
	"github.com/vidfetch/vidfetch-bot/internal/model"
	"github.com/vidfetch/vidfetch-bot/internal/ratelimit"
	"github.com/vidfetch/vidfetch-bot/internal/scheduler"
	"github.com/vidfetch/vidfetch-bot/internal/stats"
)

// Submitter is the job intake boundary, satisfied by the scheduler.
type Submitter interface {
	Submit(req scheduler.SubmitRequest) (model.DownloadJob, error)
	Cancel(id string, userID int64) error
}

// Prober fetches media metadata without downloading.
type Prober interface {
	Probe(ctx context.Context, url string) (*extract.ProbeInfo, error)
}

// StatsReader answers the /stats command.
type StatsReader interface {
	User(ctx context.Context, userID int64) (*stats.UserSummary, error)
}

// Config holds the bot's tunables.
type Config struct {
	SizeLimit        int64
	ProbeTimeout     time.Duration
	ProgressInterval time.Duration // minimum delay between progress edits
}

// Update is one incoming chat message.
type Update struct {
	UserID int64
	ChatID int64
	Text   string
}

// Bot wires the chat transport to the download engine.
type Bot struct {
	cfg        Config
	messenger  Messenger
	limiter    *ratelimit.Limiter
	jobs       Submitter
	prober     Prober
	prefs      *Preferences
	selections *Selections
	stats      StatsReader

	mu     sync.Mutex
	status map[string]*statusRef
}

// statusRef tracks the chat message a job's progress edits go to.
type statusRef struct {
	chatID    int64
	messageID int64
	lastEdit  time.Time
}

// New creates the bot.
func New(cfg Config, m Messenger, limiter *ratelimit.Limiter, jobs Submitter, prober Prober, prefs *Preferences, selections *Selections, st StatsReader) *Bot {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 2 * time.Second
	}
	return &Bot{
		cfg:        cfg,
		messenger:  m,
		limiter:    limiter,
		jobs:       jobs,
		prober:     prober,
		prefs:      prefs,
		selections: selections,
		stats:      st,
		status:     make(map[string]*statusRef),
	}
}

// HandleUpdate routes one incoming message. Commands start with a slash;
// anything else is treated as a candidate media URL.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) error {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return nil
	}

	cmd, args := splitCommand(text)
	switch cmd {
	case "/start":
		return b.send(ctx, u.ChatID, startMessage)
	case "/help":
		return b.send(ctx, u.ChatID, helpMessage)
	case "/quality":
		return b.handleQuality(ctx, u, args)
	case "/stats":
		return b.handleStats(ctx, u)
	case "/dl":
		return b.handleDownloadCommand(ctx, u, args)
	case "/cancel":
		return b.handleCancel(ctx, u, args)
	default:
		if strings.HasPrefix(cmd, "/") {
			return b.send(ctx, u.ChatID, "Unknown command. Use /help to see what I can do.")
		}
		return b.handleMediaURL(ctx, u, text)
	}
}

// handleMediaURL validates the URL, checks the user's quota, probes the media
// and offers the quality tiers with size estimates. The quota is only
// consumed once the URL passed validation.
func (b *Bot) handleMediaURL(ctx context.Context, u Update, url string) error {
	if !ValidateMediaURL(url) {
		return b.send(ctx, u.ChatID, failureMessage(model.CauseInvalidInput))
	}

	dec, err := b.limiter.Admit(ctx, u.UserID)
	if err != nil {
		var rl *model.RateLimitError
		if errors.As(err, &rl) {
			slog.Info("rate limited", "user_id", u.UserID, "retry_after", rl.RetryAfter)
			return b.send(ctx, u.ChatID, rateLimitMessage(rl.Limit, rl.RetryAfter))
		}
		slog.Error("admission check failed", "user_id", u.UserID, "error", err)
		return b.send(ctx, u.ChatID, failureMessage(model.CauseStorage))
	}
	slog.Info("admission granted", "user_id", u.UserID, "remaining", dec.Remaining)

	msgID, err := b.messenger.SendText(ctx, u.ChatID, "Processing URL...")
	if err != nil {
		return err
	}

	pctx, cancel := context.WithTimeout(ctx, b.cfg.ProbeTimeout)
	info, err := b.prober.Probe(pctx, url)
	cancel()
	if err != nil {
		slog.Warn("probe failed", "user_id", u.UserID, "url", url, "error", err)
		return b.messenger.EditText(ctx, u.ChatID, msgID,
			"Could not fetch video information. Please check the URL and try again.")
	}

	token, err := b.selections.Put(ctx, url)
	if err != nil {
		return b.messenger.EditText(ctx, u.ChatID, msgID, failureMessage(model.CauseStorage))
	}

	preferred, hasPref, err := b.prefs.Tier(ctx, u.UserID)
	if err != nil {
		hasPref = false
	}

	return b.messenger.EditText(ctx, u.ChatID, msgID, renderOptions(info, token, preferred, hasPref))
}

// renderOptions builds the quality menu with per-tier size estimates, the
// stored preference marked with a star.
func renderOptions(info *extract.ProbeInfo, token string, preferred model.Tier, hasPref bool) string {
	var sb strings.Builder
	if info.Title != "" {
		sb.WriteString(info.Title)
		sb.WriteString("\n")
	}
	sb.WriteString("Choose video quality (estimated sizes):\n")

	for _, tier := range model.Tiers() {
		line := fmt.Sprintf("%s (~%s)", tier.Label(), formatBytes(info.BySize[tier]))
		if hasPref && tier == preferred {
			line = "* " + line + " *"
		}
		sb.WriteString(fmt.Sprintf("  /dl %s %s - %s\n", tier, token, line))
	}
	return sb.String()
}

func (b *Bot) handleDownloadCommand(ctx context.Context, u Update, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return b.send(ctx, u.ChatID, "Usage: /dl <quality> <code> - pick an option from the quality menu.")
	}
	return b.HandleSelection(ctx, u.UserID, u.ChatID, fields[0], fields[1])
}

// HandleSelection resolves a quality pick against the selection cache and
// submits the job. The picked tier becomes the user's new default.
func (b *Bot) HandleSelection(ctx context.Context, userID, chatID int64, tierName, token string) error {
	tier, err := model.ParseTier(tierName)
	if err != nil {
		return b.send(ctx, chatID, "Unknown quality. Use one of: hd, 720p, 480p, audio.")
	}

	url, err := b.selections.Get(ctx, token)
	if errors.Is(err, ErrSelectionExpired) {
		return b.send(ctx, chatID, "Original URL not found or expired. Please send the link again.")
	}
	if err != nil {
		return b.send(ctx, chatID, failureMessage(model.CauseStorage))
	}

	if err := b.prefs.SetTier(ctx, userID, tier); err != nil {
		slog.Warn("failed to persist quality preference", "user_id", userID, "error", err)
	}
	b.selections.Delete(ctx, token)

	job, err := b.jobs.Submit(scheduler.SubmitRequest{
		UserID: userID,
		ChatID: chatID,
		URL:    url,
		Tier:   tier,
	})
	if errors.Is(err, model.ErrQueueFull) {
		return b.send(ctx, chatID, "The download queue is full right now. Please try again in a minute.")
	}
	if err != nil {
		return b.send(ctx, chatID, failureMessage(model.CauseOf(err)))
	}

	msgID, serr := b.messenger.SendText(ctx, chatID,
		fmt.Sprintf("Starting download in %s...\nCancel with /cancel %s", tier.Label(), job.ID))
	if serr == nil {
		b.mu.Lock()
		b.status[job.ID] = &statusRef{chatID: chatID, messageID: msgID}
		b.mu.Unlock()
	}
	return nil
}

func (b *Bot) handleCancel(ctx context.Context, u Update, args string) error {
	jobID := strings.TrimSpace(args)
	if jobID == "" {
		return b.send(ctx, u.ChatID, "Usage: /cancel <job id>")
	}
	if err := b.jobs.Cancel(jobID, u.UserID); err != nil {
		return b.send(ctx, u.ChatID, "Could not cancel that download. It may already be finished.")
	}
	return b.send(ctx, u.ChatID, "Cancellation requested.")
}

// handleQuality sets or shows the user's default quality.
func (b *Bot) handleQuality(ctx context.Context, u Update, args string) error {
	if args != "" {
		tier, err := model.ParseTier(strings.TrimSpace(args))
		if err != nil {
			return b.send(ctx, u.ChatID, "Unknown quality. Use one of: hd, 720p, 480p, audio.")
		}
		if err := b.prefs.SetTier(ctx, u.UserID, tier); err != nil {
			return b.send(ctx, u.ChatID, failureMessage(model.CauseStorage))
		}
		return b.send(ctx, u.ChatID, fmt.Sprintf("Default quality set to %s", tier.Label()))
	}

	preferred, hasPref, _ := b.prefs.Tier(ctx, u.UserID)

	var sb strings.Builder
	sb.WriteString("Select your preferred video quality with /quality <name>:\n")
	for _, tier := range model.Tiers() {
		marker := "  "
		if hasPref && tier == preferred {
			marker = "* "
		}
		sb.WriteString(fmt.Sprintf("%s%s - %s\n", marker, tier, tier.Label()))
	}
	return b.send(ctx, u.ChatID, sb.String())
}

func (b *Bot) handleStats(ctx context.Context, u Update) error {
	summary, err := b.stats.User(ctx, u.UserID)
	if err != nil {
		return b.send(ctx, u.ChatID, failureMessage(model.CauseStorage))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Your downloads: %d\n", summary.Downloads))
	sb.WriteString(fmt.Sprintf("Total data: %s\n", formatBytes(summary.Bytes)))
	if summary.Rank > 0 {
		sb.WriteString(fmt.Sprintf("Leaderboard rank: #%d\n", summary.Rank))
	}
	for _, tier := range model.Tiers() {
		if n := summary.ByTier[tier.String()]; n > 0 {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", tier.Label(), n))
		}
	}
	return b.send(ctx, u.ChatID, sb.String())
}

// Deliver uploads the finished artifact. It satisfies the scheduler's
// delivery boundary.
func (b *Bot) Deliver(ctx context.Context, job model.DownloadJob, artifactPath string) error {
	caption := fmt.Sprintf("Downloaded in %s", job.FinalTier.Label())
	if job.Title != "" {
		caption = job.Title + "\n" + caption
	}
	if job.Downgraded() {
		caption += fmt.Sprintf("\nNote: quality was lowered from %s to fit the %s size limit.",
			job.RequestedTier.Label(), formatBytes(b.cfg.SizeLimit))
	}
	return b.messenger.SendFile(ctx, job.ChatID, artifactPath, caption)
}

// OnJobUpdate reacts to job state changes; the scheduler calls it with a
// snapshot on every transition.
func (b *Bot) OnJobUpdate(job model.DownloadJob) {
	ctx := context.Background()

	switch job.State {
	case model.JobSucceeded:
		b.editStatus(ctx, job.ID, job.ChatID, fmt.Sprintf("Done! Sent in %s.", job.FinalTier.Label()), true)
	case model.JobFailed:
		b.editStatus(ctx, job.ID, job.ChatID, failureMessage(job.Cause), true)
	case model.JobCancelled:
		b.editStatus(ctx, job.ID, job.ChatID, failureMessage(model.CauseCancelled), true)
	}
}

// OnProgress forwards download progress as a throttled status edit.
func (b *Bot) OnProgress(job model.DownloadJob, p extract.Progress) {
	b.mu.Lock()
	ref, ok := b.status[job.ID]
	if !ok || time.Since(ref.lastEdit) < b.cfg.ProgressInterval {
		b.mu.Unlock()
		return
	}
	ref.lastEdit = time.Now()
	chatID, messageID := ref.chatID, ref.messageID
	b.mu.Unlock()

	eta := "N/A"
	if p.ETASec >= 0 {
		eta = fmt.Sprintf("%ds", p.ETASec)
	}
	text := fmt.Sprintf("Downloading...\nProgress: %d%%\nSpeed: %s\nETA: %s", p.Percent, p.Speed, eta)
	if err := b.messenger.EditText(context.Background(), chatID, messageID, text); err != nil {
		slog.Debug("progress edit failed", "job_id", job.ID, "error", err)
	}
}

// editStatus updates a job's status message, falling back to a fresh message
// when none is tracked. Terminal updates drop the tracking entry.
func (b *Bot) editStatus(ctx context.Context, jobID string, chatID int64, text string, terminal bool) {
	b.mu.Lock()
	ref, ok := b.status[jobID]
	if terminal {
		delete(b.status, jobID)
	}
	b.mu.Unlock()

	var err error
	if ok {
		err = b.messenger.EditText(ctx, ref.chatID, ref.messageID, text)
	} else {
		_, err = b.messenger.SendText(ctx, chatID, text)
	}
	if err != nil {
		slog.Warn("status update failed", "job_id", jobID, "error", err)
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) error {
	_, err := b.messenger.SendText(ctx, chatID, text)
	return err
}

// splitCommand separates "/cmd rest of line" into its command and argument
// parts. Non-command text comes back unchanged in cmd.
func splitCommand(text string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return text, ""
	}
	if i := strings.IndexByte(text, ' '); i > 0 {
		return text[:i], strings.TrimSpace(text[i+1:])
	}
	return text, ""
}
