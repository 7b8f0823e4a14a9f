package bot

import (
	"fmt"
	"time"

	"github.com/vidfetch/vidfetch-bot/internal/model"
)

const startMessage = "Hi! I can download videos from Twitter/X. Just send me a URL.\n\n" +
	"Available commands:\n" +
	"/help - Show usage guide\n" +
	"/quality - Set preferred video quality\n" +
	"/stats - Show your download stats"

const helpMessage = "How to use this bot:\n\n" +
	"1. Send me a Twitter/X video URL\n" +
	"2. Choose your preferred quality\n" +
	"3. Wait for the download to complete\n\n" +
	"Supported formats:\n" +
	"- Single video tweets\n" +
	"- HD (1080p), SD (720p/480p)\n" +
	"- Audio only (MP3)\n\n" +
	"Use /quality to set your default preference"

// failureMessages maps terminal failure causes to user-facing text. Raw
// error internals never reach the chat.
var failureMessages = map[model.FailureCause]string{
	model.CauseInvalidInput: "Please send a valid Twitter/X URL",
	model.CauseNotFound:     "Could not find that video. It may have been deleted.",
	model.CausePrivate:      "That video is private or requires a login.",
	model.CauseNetwork:      "Download failed because of a network problem. Please try again.",
	model.CauseSizeExceeded: "The video is too large to deliver even at the lowest quality.",
	model.CauseCompression:  "Could not shrink the video under the size limit.",
	model.CauseTimeout:      "The download took too long and was aborted. Please try again.",
	model.CauseStorage:      "The service is temporarily unavailable. Please try again shortly.",
	model.CauseCancelled:    "Download cancelled.",
}

// failureMessage returns the user-facing text for a failure cause.
func failureMessage(cause model.FailureCause) string {
	if msg, ok := failureMessages[cause]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}

func rateLimitMessage(limit int64, retryAfter time.Duration) string {
	wait := retryAfter.Round(time.Minute)
	if wait < time.Minute {
		wait = time.Minute
	}
	return fmt.Sprintf("Rate limit reached (%d downloads per hour). Please try again in %s.", limit, wait)
}

// formatBytes renders a byte count the way download tools do: two
// significant decimals, binary units.
func formatBytes(n int64) string {
	if n <= 0 {
		return "?"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
