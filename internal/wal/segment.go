package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Segment represents a single WAL segment file. When compressed is true,
// each entry's marshaled bytes are zstd-compressed before the
// length-prefixed record is written (config's CompressionType == "zstd"),
// trading a small per-entry CPU cost for a smaller on-disk WAL.
type Segment struct {
	mu         sync.RWMutex
	path       string
	file       *os.File
	writer     *bufio.Writer
	size       int64
	minSeqID   uint64
	maxSeqID   uint64
	closed     bool
	compressed bool
}

// CreateSegment creates a new WAL segment
func CreateSegment(path string, compressed bool) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file: %w", err)
	}

	return &Segment{
		path:       path,
		file:       file,
		writer:     bufio.NewWriter(file),
		compressed: compressed,
	}, nil
}

// OpenSegment opens an existing WAL segment
func OpenSegment(path string, compressed bool) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat segment file: %w", err)
	}

	segment := &Segment{
		path:       path,
		file:       file,
		writer:     bufio.NewWriter(file),
		size:       stat.Size(),
		compressed: compressed,
	}

	if err := segment.scanSequenceIDs(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to scan sequence IDs: %w", err)
	}

	return segment, nil
}

func encodeRecord(entry *Entry, compressed bool) ([]byte, error) {
	data, err := entry.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry: %w", err)
	}
	if !compressed {
		return data, nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decodeRecord(raw []byte, compressed bool) (*Entry, error) {
	data := raw
	if compressed {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		plain, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress entry: %w", err)
		}
		data = plain
	}
	return UnmarshalEntry(data)
}

// Append appends an entry to the segment
func (s *Segment) Append(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("segment is closed")
	}

	data, err := encodeRecord(entry, s.compressed)
	if err != nil {
		return err
	}

	checksum := crc32.ChecksumIEEE(data)

	if err := binary.Write(s.writer, binary.LittleEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("failed to write entry length: %w", err)
	}
	if err := binary.Write(s.writer, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write entry data: %w", err)
	}

	recordSize := 8 + len(data)
	s.size += int64(recordSize)

	if s.minSeqID == 0 || entry.SequenceID < s.minSeqID {
		s.minSeqID = entry.SequenceID
	}
	if entry.SequenceID > s.maxSeqID {
		s.maxSeqID = entry.SequenceID
	}

	return nil
}

// Sync flushes the segment to disk
func (s *Segment) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("segment is closed")
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	return nil
}

// Close closes the segment
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}

// Size returns the current size of the segment
func (s *Segment) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Path returns the file path of the segment
func (s *Segment) Path() string {
	return s.path
}

// Contains checks if the segment contains the given sequence ID
func (s *Segment) Contains(seqID uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minSeqID <= seqID && seqID <= s.maxSeqID
}

// MinSequenceID returns the minimum sequence ID in the segment
func (s *Segment) MinSequenceID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minSeqID
}

// MaxSequenceID returns the maximum sequence ID in the segment
func (s *Segment) MaxSequenceID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSeqID
}

// NewReader creates a reader for this segment starting from the given sequence ID
func (s *Segment) NewReader(fromSeqID uint64) (*SegmentReader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("segment is closed")
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment for reading: %w", err)
	}

	return &SegmentReader{
		file:       file,
		reader:     bufio.NewReader(file),
		fromSeqID:  fromSeqID,
		compressed: s.compressed,
	}, nil
}

// SegmentReader reads entries from a segment
type SegmentReader struct {
	file       *os.File
	reader     *bufio.Reader
	fromSeqID  uint64
	eof        bool
	compressed bool
}

// Next reads the next entry from the segment
func (sr *SegmentReader) Next() (*Entry, error) {
	if sr.eof {
		return nil, io.EOF
	}

	for {
		var length uint32
		if err := binary.Read(sr.reader, binary.LittleEndian, &length); err != nil {
			if err == io.EOF {
				sr.eof = true
			}
			return nil, err
		}

		var checksum uint32
		if err := binary.Read(sr.reader, binary.LittleEndian, &checksum); err != nil {
			return nil, fmt.Errorf("failed to read checksum: %w", err)
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(sr.reader, data); err != nil {
			return nil, fmt.Errorf("failed to read entry data: %w", err)
		}

		if crc32.ChecksumIEEE(data) != checksum {
			return nil, fmt.Errorf("checksum mismatch")
		}

		entry, err := decodeRecord(data, sr.compressed)
		if err != nil {
			return nil, fmt.Errorf("failed to decode entry: %w", err)
		}

		if entry.SequenceID < sr.fromSeqID {
			continue
		}

		return entry, nil
	}
}

// Close closes the segment reader
func (sr *SegmentReader) Close() error {
	return sr.file.Close()
}

// scanSequenceIDs scans the segment to determine min/max sequence IDs
func (s *Segment) scanSequenceIDs() error {
	if s.size == 0 {
		return nil
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open segment for scanning: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var minSeqID, maxSeqID uint64

	for {
		var length uint32
		if err := binary.Read(reader, binary.LittleEndian, &length); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read entry length: %w", err)
		}

		var checksum uint32
		if err := binary.Read(reader, binary.LittleEndian, &checksum); err != nil {
			return fmt.Errorf("failed to read checksum: %w", err)
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(reader, data); err != nil {
			return fmt.Errorf("failed to read entry data: %w", err)
		}

		if crc32.ChecksumIEEE(data) != checksum {
			return fmt.Errorf("checksum mismatch during scan")
		}

		entry, err := decodeRecord(data, s.compressed)
		if err != nil {
			return fmt.Errorf("failed to decode entry during scan: %w", err)
		}

		if minSeqID == 0 || entry.SequenceID < minSeqID {
			minSeqID = entry.SequenceID
		}
		if entry.SequenceID > maxSeqID {
			maxSeqID = entry.SequenceID
		}
	}

	s.minSeqID = minSeqID
	s.maxSeqID = maxSeqID
	return nil
}
