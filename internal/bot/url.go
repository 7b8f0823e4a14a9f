package bot

import "regexp"

// Status URLs look like https://x.com/<handle>/status/<id>; twitter.com and
// the /i/status/<id> shape without a handle are accepted too.
var (
	statusURLPattern = regexp.MustCompile(`^https?://(?:www\.)?(?:twitter|x)\.com/(?:\w+|i)/status/\d+`)
	statusIDPattern  = regexp.MustCompile(`/status/(\d+)`)
)

// ValidateMediaURL reports whether url points at a supported media post.
func ValidateMediaURL(url string) bool {
	return statusURLPattern.MatchString(url)
}

// ParseStatusID extracts the numeric post id from a status URL.
func ParseStatusID(url string) (string, bool) {
	m := statusIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}
