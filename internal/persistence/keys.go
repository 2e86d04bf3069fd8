package persistence

import (
	"fmt"
	"strconv"
	"strings"
)

// Storage keys inside one document.
const (
	BookmarksKey = "bookmarks"
	WorkspaceKey = "workspace"

	annotationsPrefix = "annotations-page-"
	pendingPrefix     = "pending-annotations-page-"
)

// AnnotationsKey is the key of a page's committed annotations.
func AnnotationsKey(page int) string { return fmt.Sprintf("%s%d", annotationsPrefix, page) }

// PendingKey is the key of a page's pending highlights.
func PendingKey(page int) string { return fmt.Sprintf("%s%d", pendingPrefix, page) }

// pageFromKey returns the page number of an annotations or pending key.
func pageFromKey(key string) (int, bool) {
	for _, prefix := range []string{pendingPrefix, annotationsPrefix} {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			page, err := strconv.Atoi(rest)
			if err != nil || page < 1 {
				return 0, false
			}
			return page, true
		}
	}
	return 0, false
}
