package service

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"minirag/internal/chunker"
	"minirag/internal/domain"
)

// textTypes covers extensions the host MIME table may not know.
var textTypes = map[string]string{
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
}

// FileLoader turns text files into chunks ready for IndexIntoVectorDB.
type FileLoader struct {
	Chunker      *chunker.SentenceChunker
	AllowedTypes []string
	MaxSizeBytes int64
}

// Load expands glob patterns, skips files whose MIME type is not allowed,
// rejects files over the size limit and numbers chunks across all files.
func (l *FileLoader) Load(paths []string) ([]domain.Chunk, []int64, error) {
	var chunks []domain.Chunk
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !l.allowed(m) {
				continue
			}
			info, err := os.Stat(m)
			if err != nil {
				return nil, nil, err
			}
			if l.MaxSizeBytes > 0 && info.Size() > l.MaxSizeBytes {
				return nil, nil, fmt.Errorf("%s exceeds the %d byte limit", m, l.MaxSizeBytes)
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, nil, err
			}
			chunks = append(chunks, l.Chunker.Chunk(chunker.Document{Source: m, Content: string(data)})...)
		}
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("no text found in %s", strings.Join(paths, ", "))
	}
	ids := make([]int64, len(chunks))
	for i := range chunks {
		chunks[i].ID = int64(i)
		ids[i] = int64(i)
	}
	return chunks, ids, nil
}

func (l *FileLoader) allowed(path string) bool {
	if len(l.AllowedTypes) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	typ := mime.TypeByExtension(ext)
	if typ == "" {
		typ = textTypes[ext]
	}
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		typ = typ[:i]
	}
	for _, a := range l.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(a), typ) {
			return true
		}
	}
	return false
}
