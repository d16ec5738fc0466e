package media

import (
	"os"
	"path/filepath"
	"strings"
)

// LocalFile is a file read from disk for an outbound send or a one-shot
// transcription run.
type LocalFile struct {
	Path     string
	Data     []byte
	MimeType string
	FileName string
}

// ReadLocalFile reads a file after validating the path against a root
// directory. Relative paths resolve under root; anything escaping root is
// rejected before touching the filesystem.
func ReadLocalFile(root string, inputPath string) (*LocalFile, error) {
	trimmed := strings.TrimSpace(inputPath)
	if trimmed == "" {
		return nil, NewError(ErrorInvalidPath, "path must not be empty")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, NewError(ErrorInvalidPath, "root could not be resolved")
	}
	rootAbs = filepath.Clean(rootAbs)

	candidate := trimmed
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(rootAbs, candidate)
	}

	cleanPath := filepath.Clean(candidate)
	if !isWithin(rootAbs, cleanPath) {
		return nil, NewError(ErrorOutsideRoot, "resolved path escapes allowed root")
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewError(ErrorPathNotFound, "file does not exist")
		}

		return nil, NewError(ErrorIO, err.Error())
	}

	return &LocalFile{
		Path:     cleanPath,
		Data:     data,
		MimeType: MimeTypeByExtension(cleanPath),
		FileName: filepath.Base(cleanPath),
	}, nil
}

func isWithin(root string, path string) bool {
	if path == root {
		return true
	}

	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// MimeTypeByExtension maps a file suffix to a reasonable MIME type. Only
// the formats this gateway actually sends are covered; everything else is
// an octet stream.
func MimeTypeByExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".mp4":
		return "video/mp4"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
