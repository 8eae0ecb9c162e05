package ingestion_engine

import (
	"path"
	"strings"
)

const (
	skipSystemFile = "ignored-system-file"
	skipArchive    = "unsupported-archive"
)

var systemFiles = map[string]bool{
	"thumbs.db":   true,
	"ehthumbs.db": true,
	".ds_store":   true,
	"desktop.ini": true,
}

var archiveExts = map[string]bool{
	".zip": true,
	".rar": true,
	".7z":  true,
	".tar": true,
	".gz":  true,
	".tgz": true,
	".bz2": true,
	".xz":  true,
}

// skipReason returns the last_error code for files that are never ingested, or "".
func skipReason(filename string) string {
	base := strings.ToLower(path.Base(strings.ReplaceAll(filename, `\`, "/")))
	switch {
	case systemFiles[base], strings.HasPrefix(base, "~$"), strings.HasPrefix(base, "._"):
		return skipSystemFile
	case archiveExts[path.Ext(base)]:
		return skipArchive
	}
	return ""
}
