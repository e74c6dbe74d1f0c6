package logwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/fsutil"
)

// Entry describes one crash log on disk.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Tag     string    `json:"tag"`
	Time    time.Time `json:"time"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

func writeFile(path string, data []byte) error {
	return fsutil.WriteFile(path, data, 0o600)
}

// List returns the crash logs in dir, newest first. A missing directory is
// an empty list.
func List(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading crash log dir: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		tag, ts, ok := ParseName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(dir, de.Name()),
			Tag:     tag,
			Time:    ts,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Time.Equal(entries[j].Time) {
			return entries[i].Time.After(entries[j].Time)
		}
		return entries[i].Name > entries[j].Name
	})
	return entries, nil
}

// Latest returns the newest crash log in dir.
func Latest(dir string) (Entry, error) {
	entries, err := List(dir)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return entries[0], nil
}

// Read returns the content of a crash log.
func Read(path string) (string, error) {
	data, err := fsutil.ReadFileScoped(path)
	if err != nil {
		return "", fmt.Errorf("reading crash log: %w", err)
	}
	return string(data), nil
}

// ParseName extracts the tag and timestamp from a crash log file name.
func ParseName(name string) (tag string, ts time.Time, ok bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", time.Time{}, false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)

	i := strings.LastIndex(rest, "-")
	if i <= 0 {
		return "", time.Time{}, false
	}
	rest = rest[:i] // drop the random suffix

	j := strings.LastIndex(rest, "-")
	if j <= 0 {
		return "", time.Time{}, false
	}
	ts, err := time.Parse(timeLayout, rest[j+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return rest[:j], ts, true
}
