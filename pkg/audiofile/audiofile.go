// Package audiofile validates files offered to the stream panel before a
// stream order is submitted.
package audiofile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Info describes a file that passed inspection.
type Info struct {
	Path string
	Name string
	Size int64
	MIME string
}

// containerTypes covers audio containers mimetype reports outside audio/*.
var containerTypes = map[string]bool{
	"application/ogg":  true,
	"application/flac": true,
	"video/ogg":        true,
	"video/mp4":        true, // m4a sniffs as its container
	"video/x-m4a":      true,
}

// IsAudio reports whether a detected MIME type is playable audio.
func IsAudio(mime string) bool {
	mime = strings.ToLower(mime)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if strings.HasPrefix(mime, "audio/") {
		return true
	}
	return containerTypes[mime]
}

var audioExts = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".ogg":  true,
	".aac":  true,
	".m4a":  true,
}

// HasAudioExt reports whether the file name carries a known audio extension.
// It is a cheap pre-filter for directory listings; Inspect remains the
// authority on content.
func HasAudioExt(name string) bool {
	return audioExts[strings.ToLower(filepath.Ext(name))]
}

// Inspect stats the file and sniffs its content type.
func Inspect(path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	if stat.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", path)
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("detecting type of %s: %w", path, err)
	}
	return Info{
		Path: path,
		Name: stat.Name(),
		Size: stat.Size(),
		MIME: mime.String(),
	}, nil
}

// InspectAudio inspects the file and rejects anything that is not audio.
func InspectAudio(path string) (Info, error) {
	info, err := Inspect(path)
	if err != nil {
		return Info{}, err
	}
	if !IsAudio(info.MIME) {
		return Info{}, fmt.Errorf("%s is not an audio file (%s)", info.Name, info.MIME)
	}
	return info, nil
}
