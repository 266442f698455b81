package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/autowriter/internal/chunk"
)

const maxRecordBytes = 4 * 1024 * 1024

// ChunkStore appends chunk records to a JSONL file, one record per line.
// It is written by a single builder; readers use ReadChunks or LoadChunks.
type ChunkStore struct {
	path  string
	file  *os.File
	w     *bufio.Writer
	count int
}

// CreateChunkStore creates or truncates the store at path.
func CreateChunkStore(path string) (*ChunkStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create chunk store: %w", err)
	}
	return &ChunkStore{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// OpenChunkStore opens an existing store for appending. A trailing partial
// line left by an interrupted write is cut off.
func OpenChunkStore(path string) (*ChunkStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	count, end, size, err := scanRecords(f, -1)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if end < size {
		slog.Warn("chunk_store_partial_record",
			slog.String("path", path),
			slog.Int64("discarded_bytes", size-end))
		if err := f.Truncate(end); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate partial record: %w", err)
		}
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &ChunkStore{path: path, file: f, w: bufio.NewWriter(f), count: count}, nil
}

// Path returns the file path.
func (s *ChunkStore) Path() string { return s.path }

// Count returns the number of records, including buffered ones.
func (s *ChunkStore) Count() int { return s.count }

// Append writes records after the existing ones.
func (s *ChunkStore) Append(chunks ...chunk.Chunk) error {
	for _, c := range chunks {
		line, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode chunk %s: %w", c.ID, err)
		}
		if _, err := s.w.Write(line); err != nil {
			return fmt.Errorf("write chunk %s: %w", c.ID, err)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write chunk %s: %w", c.ID, err)
		}
		s.count++
	}
	return nil
}

// Sync flushes buffered records and fsyncs the file.
func (s *ChunkStore) Sync() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush chunk store: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync chunk store: %w", err)
	}
	return nil
}

// Truncate keeps only the first n records.
func (s *ChunkStore) Truncate(n int) error {
	if n < 0 || n > s.count {
		return fmt.Errorf("cannot truncate %d records to %d", s.count, n)
	}
	if err := s.Sync(); err != nil {
		return err
	}

	count, end, _, err := scanRecords(s.file, n)
	if err != nil {
		return err
	}
	if count != n {
		return fmt.Errorf("found %d records while truncating to %d", count, n)
	}
	if err := s.file.Truncate(end); err != nil {
		return fmt.Errorf("truncate chunk store: %w", err)
	}
	if _, err := s.file.Seek(end, io.SeekStart); err != nil {
		return err
	}
	s.w.Reset(s.file)
	s.count = n
	return nil
}

// Close flushes and closes the file.
func (s *ChunkStore) Close() error {
	if s.file == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	s.file = nil
	return errors.Join(flushErr, closeErr)
}

// scanRecords counts newline-terminated non-blank records from the start of
// f, stopping after limit records when limit >= 0. It returns the count, the
// byte offset just past the last complete line read, and the file size.
func scanRecords(f *os.File, limit int) (count int, end int64, size int64, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("stat chunk store: %w", err)
	}
	size = info.Size()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, 0, 0, err
	}
	r := bufio.NewReader(f)
	for limit < 0 || count < limit {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			end += int64(len(line))
			if len(bytes.TrimSpace(line)) > 0 {
				count++
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, 0, fmt.Errorf("read chunk store: %w", err)
		}
	}
	return count, end, size, nil
}

// ReadChunks streams the records of a JSONL chunk file in order. Blank lines
// are skipped. The sequence stops at the first error.
func ReadChunks(path string) iter.Seq2[chunk.Chunk, error] {
	return func(yield func(chunk.Chunk, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(chunk.Chunk{}, err)
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), maxRecordBytes)
		line := 0
		for sc.Scan() {
			line++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			var c chunk.Chunk
			if err := json.Unmarshal(raw, &c); err != nil {
				yield(chunk.Chunk{}, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err))
				return
			}
			if c.Metadata == nil {
				c.Metadata = chunk.Metadata{}
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(chunk.Chunk{}, fmt.Errorf("read %s: %w", filepath.Base(path), err))
		}
	}
}

// LoadChunks reads every record of a chunk file into memory.
func LoadChunks(path string) ([]chunk.Chunk, error) {
	var out []chunk.Chunk
	for c, err := range ReadChunks(path) {
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// WriteChunks writes a complete chunk file atomically.
func WriteChunks(path string, chunks iter.Seq[chunk.Chunk]) (int, error) {
	n := 0
	err := writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for c := range chunks {
			if err := enc.Encode(c); err != nil {
				return fmt.Errorf("encode chunk %s: %w", c.ID, err)
			}
			n++
		}
		return nil
	})
	return n, err
}
