package filewriter

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"social-checker/internal/export"
	"social-checker/internal/manager"
	"social-checker/pkg/types"
)

// ThreadSafeFileWriter appends lines to one file, flushing after each line
type ThreadSafeFileWriter struct {
	filename string
	mutex    sync.Mutex
	file     *os.File
	writer   *bufio.Writer
}

// New opens filename for appending
func New(filename string) (*ThreadSafeFileWriter, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &ThreadSafeFileWriter{
		filename: filename,
		file:     file,
		writer:   bufio.NewWriter(file),
	}, nil
}

// Filename returns the path being written
func (w *ThreadSafeFileWriter) Filename() string {
	return w.filename
}

// WriteLine writes line followed by a newline
func (w *ThreadSafeFileWriter) WriteLine(line string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.writer == nil {
		return os.ErrClosed
	}
	if _, err := w.writer.WriteString(line); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	// Ensure data is written immediately
	return w.writer.Flush()
}

// Close flushes remaining data and closes the file
func (w *ThreadSafeFileWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	var err error
	if w.writer != nil {
		err = w.writer.Flush()
		w.writer = nil
	}
	if w.file != nil {
		err = multierr.Append(err, w.file.Close())
		w.file = nil
	}
	return err
}

// Streamer writes each result's original line to a per-status file while a
// run is in progress. Files are named like the exports, with a txt extension.
type Streamer struct {
	dir    string
	opts   export.Options
	logger *zap.Logger

	mu      sync.Mutex
	writers map[types.CheckStatus]*ThreadSafeFileWriter
}

// NewStreamer creates a streamer writing into dir. With opts.FoldUnknown,
// unknown results go to the error file as they do on export.
func NewStreamer(dir string, opts export.Options, logger *zap.Logger) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{dir: dir, opts: opts, logger: logger}
}

// RunStarted opens fresh files for the run's platform
func (s *Streamer) RunStarted(status manager.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeLocked(); err != nil {
		s.logger.Warn("closing previous result files", zap.Error(err))
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.logger.Error("creating result directory", zap.String("dir", s.dir), zap.Error(err))
		return
	}

	s.writers = make(map[types.CheckStatus]*ThreadSafeFileWriter, len(types.Statuses))
	for _, st := range types.Statuses {
		name := export.FileName(export.Bucket(st.String()), status.Platform, export.FormatTXT)
		path := filepath.Join(s.dir, name)
		// each run starts with empty files
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing old result file", zap.String("file", path), zap.Error(err))
		}
		if st == types.Unknown && s.opts.FoldUnknown {
			continue
		}
		w, err := New(path)
		if err != nil {
			s.logger.Error("opening result file", zap.String("file", path), zap.Error(err))
			continue
		}
		s.writers[st] = w
	}
}

// Progress appends the result's original line to its status file
func (s *Streamer) Progress(_ types.ProgressEvent, result types.CheckResult) {
	status := result.Status
	if status == types.Unknown && s.opts.FoldUnknown {
		status = types.Error
	}

	s.mu.Lock()
	w := s.writers[status]
	s.mu.Unlock()

	if w == nil {
		return
	}
	if err := w.WriteLine(result.Entry.RawLine); err != nil {
		s.logger.Warn("writing result", zap.String("file", w.Filename()), zap.Error(err))
	}
}

// RunFinished closes the run's files
func (s *Streamer) RunFinished(manager.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closeLocked(); err != nil {
		s.logger.Warn("closing result files", zap.Error(err))
	}
}

// Close closes any open files
func (s *Streamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Streamer) closeLocked() error {
	var err error
	for _, w := range s.writers {
		err = multierr.Append(err, w.Close())
	}
	s.writers = nil
	return err
}
