package recording

import (
	"regexp"
	"strings"
)

const defaultTitle = "live_music"

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// FileName turns a free form title into a safe file name with the extension
// of the given format.
func FileName(title string, format Format) string {
	name := nonAlphanumeric.ReplaceAllString(strings.ToLower(title), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = defaultTitle
	}
	return name + "." + format.Extension()
}
