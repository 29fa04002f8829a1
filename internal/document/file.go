package document

import (
    "context"
    "fmt"
    "os"
    "sync"
    "time"

    "github.com/rs/zerolog/log"
)

// FileLoader reads and parses a local HTML file on every Load.
type FileLoader struct {
    Path string
}

func (l FileLoader) Load(ctx context.Context) (Document, error) {
    if err := ctx.Err(); err != nil {
        return nil, err
    }
    b, err := os.ReadFile(l.Path)
    if err != nil {
        return nil, fmt.Errorf("read %s: %w", l.Path, err)
    }
    return FromHTML(b)
}

// FileSource signals a change whenever the watched file's size or
// modification time differs from the previous poll.
type FileSource struct {
    Path     string
    Interval time.Duration

    once   sync.Once
    closed chan struct{}
}

// NewFileSource polls path every interval (default 500ms).
func NewFileSource(path string, interval time.Duration) *FileSource {
    if interval <= 0 {
        interval = 500 * time.Millisecond
    }
    return &FileSource{Path: path, Interval: interval, closed: make(chan struct{})}
}

type fileStamp struct {
    size    int64
    modTime time.Time
    missing bool
}

func (s *FileSource) stamp() fileStamp {
    info, err := os.Stat(s.Path)
    if err != nil {
        return fileStamp{missing: true}
    }
    return fileStamp{size: info.Size(), modTime: info.ModTime()}
}

func (s *FileSource) Changes(ctx context.Context) (<-chan struct{}, error) {
    if _, err := os.Stat(s.Path); err != nil {
        return nil, fmt.Errorf("watch %s: %w", s.Path, err)
    }
    out := make(chan struct{}, 1)
    last := s.stamp()
    go func() {
        defer close(out)
        ticker := time.NewTicker(s.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-s.closed:
                return
            case <-ticker.C:
                cur := s.stamp()
                if cur == last {
                    continue
                }
                log.Debug().Str("path", s.Path).Int64("size", cur.size).Msg("file changed")
                last = cur
                select {
                case out <- struct{}{}:
                default:
                }
            }
        }
    }()
    return out, nil
}

func (s *FileSource) Close() error {
    s.once.Do(func() { close(s.closed) })
    return nil
}
