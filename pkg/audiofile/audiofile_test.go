package audiofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wavHeader = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00" +
	"\x01\x00\x01\x00\x44\xac\x00\x00\x88\x58\x01\x00\x02\x00\x10\x00" +
	"data\x00\x00\x00\x00")

func TestIsAudio(t *testing.T) {
	tests := []struct {
		name string
		mime string
		want bool
	}{
		{"plain_audio", "audio/mpeg", true},
		{"audio_with_params", "audio/ogg; codecs=opus", true},
		{"uppercase", "Audio/FLAC", true},
		{"ogg_container", "application/ogg", true},
		{"flac_container", "application/flac", true},
		{"m4a_container", "video/mp4", true},
		{"text", "text/plain", false},
		{"video", "video/webm", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAudio(tt.mime))
		})
	}
}

func TestHasAudioExt(t *testing.T) {
	assert.True(t, HasAudioExt("song.mp3"))
	assert.True(t, HasAudioExt("SONG.FLAC"))
	assert.True(t, HasAudioExt("/some/dir/track.wav"))
	assert.False(t, HasAudioExt("notes.txt"))
	assert.False(t, HasAudioExt("archive.mp3.zip"))
	assert.False(t, HasAudioExt("noext"))
}

func TestInspectAudio(t *testing.T) {
	dir := t.TempDir()

	t.Run("accepts_wav_content", func(t *testing.T) {
		path := filepath.Join(dir, "tone.wav")
		require.NoError(t, os.WriteFile(path, wavHeader, 0o666))

		info, err := InspectAudio(path)
		require.NoError(t, err)
		assert.Equal(t, "tone.wav", info.Name)
		assert.Equal(t, path, info.Path)
		assert.Equal(t, int64(len(wavHeader)), info.Size)
		assert.Equal(t, "audio/wav", info.MIME)
	})

	t.Run("rejects_text_content_behind_audio_ext", func(t *testing.T) {
		path := filepath.Join(dir, "fake.mp3")
		require.NoError(t, os.WriteFile(path, []byte("just some words"), 0o666))

		_, err := InspectAudio(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not an audio file")
	})

	t.Run("rejects_directory", func(t *testing.T) {
		_, err := InspectAudio(dir)
		require.Error(t, err)
	})

	t.Run("rejects_missing_file", func(t *testing.T) {
		_, err := InspectAudio(filepath.Join(dir, "no-such.flac"))
		require.Error(t, err)
	})
}
