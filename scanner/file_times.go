package scanner

import (
	"os"
	"time"

	"github.com/djherbis/times"

	"filesentry/output"
)

// stampFileTimes copies the source file's timestamps onto a report entry.
// Times the platform does not track are left empty.
func stampFileTimes(entry *output.Entry, path string, info os.FileInfo) {
	if info != nil {
		entry.ModTime = info.ModTime().UTC().Format(time.RFC3339)
	}
	ts, err := times.Stat(path)
	if err != nil {
		return
	}
	entry.AccessTime = ts.AccessTime().UTC().Format(time.RFC3339)
	if ts.HasChangeTime() {
		entry.ChangeTime = ts.ChangeTime().UTC().Format(time.RFC3339)
	}
	if ts.HasBirthTime() {
		entry.CreationTime = ts.BirthTime().UTC().Format(time.RFC3339)
	}
}
