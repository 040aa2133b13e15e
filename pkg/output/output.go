// Package output persists per-step simulation results to an
// append-only log: a topology-guarded header followed by
// length-prefixed, checksummed, snappy-compressed state snapshots.
// Reopening the log of an earlier run resumes the sequence, provided
// the network shape still matches the header.
package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

const (
	logName    = "results.log"
	logMagic   = uint32(0x48594452) // "HYDR"
	logVersion = byte(1)
)

var (
	// ErrTopologyMismatch means the network no longer matches the shape
	// recorded in the log header.
	ErrTopologyMismatch = errors.New("network topology does not match result log")
	// ErrCorrupt marks a record whose checksum failed.
	ErrCorrupt = errors.New("corrupt result record")
)

// Log is an append-only result log for one network topology.
type Log struct {
	file   *os.File
	writer *bufio.Writer
	path   string
	runID  uuid.UUID
	seq    uint64
	mu     sync.Mutex

	nodes, links, tanks uint32

	totalWrites       uint64
	bytesUncompressed uint64
	bytesCompressed   uint64
}

// StepRecord is one decoded simulation snapshot.
type StepRecord struct {
	Seq        uint64
	Clock      int64
	Dt         int64
	Head       []float64
	DemandFlow []float64
	Quality    []float64
	Flow       []float64
	Setting    []float64
	Status     []network.Status
	TankVolume []float64
}

// Stats reports write and compression totals.
type Stats struct {
	TotalWrites       uint64
	BytesUncompressed uint64
	BytesCompressed   uint64
	CompressionRatio  float64
}

// NewLog opens (or creates) the result log in dataDir for net. An
// existing log must carry the same node, link, and tank counts; its
// records are scanned so appends continue the sequence.
func NewLog(dataDir string, net *network.Network) (*Log, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dataDir, logName)

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open result log: %w", err)
	}

	l := &Log{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
		nodes:  uint32(len(net.Nodes)),
		links:  uint32(len(net.Links)),
		tanks:  uint32(len(net.Tanks)),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		l.runID = uuid.New()
		if err := l.writeHeader(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write result log header: %w", err)
		}
		return l, nil
	}

	if err := l.recover(); err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

// RunID identifies the run that created the log.
func (l *Log) RunID() uuid.UUID { return l.runID }

// Seq returns the sequence number of the last written record.
func (l *Log) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// RecordStep appends the network's current state, tagged with the
// simulation clock and the step length that follows it. It satisfies
// the simulation package's Recorder interface.
func (l *Log) RecordStep(clock, dt int64, net *network.Network) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if uint32(len(net.Nodes)) != l.nodes || uint32(len(net.Links)) != l.links {
		return ErrTopologyMismatch
	}

	payload, err := encodeState(net)
	if err != nil {
		return err
	}
	compressed := snappy.Encode(nil, payload)

	l.seq++
	l.totalWrites++
	l.bytesUncompressed += uint64(len(payload))
	l.bytesCompressed += uint64(len(compressed))

	// Format: [Seq:8][Clock:8][Dt:8][DataLen:4][Data:N][Checksum:4]
	if err := binary.Write(l.writer, binary.BigEndian, l.seq); err != nil {
		return err
	}
	if err := binary.Write(l.writer, binary.BigEndian, clock); err != nil {
		return err
	}
	if err := binary.Write(l.writer, binary.BigEndian, dt); err != nil {
		return err
	}
	if err := binary.Write(l.writer, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := l.writer.Write(compressed); err != nil {
		return err
	}
	if err := binary.Write(l.writer, binary.BigEndian, crc32.ChecksumIEEE(compressed)); err != nil {
		return err
	}
	return l.writer.Flush()
}

// ReadAll decodes every record in the log.
func (l *Log) ReadAll() ([]*StepRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return nil, err
	}
	records, _, err := readLog(l.path, l.nodes, l.links, l.tanks)
	return records, err
}

// Flush forces buffered records to stable storage.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}

// Truncate discards all records and starts a fresh run under a new
// run ID.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writer.Flush()
	l.file.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	file, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.writer = bufio.NewWriter(file)
	l.seq = 0
	l.runID = uuid.New()
	return l.writeHeader()
}

// Statistics returns write and compression totals so far.
func (l *Log) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	ratio := 0.0
	if l.bytesUncompressed > 0 {
		ratio = 1.0 - float64(l.bytesCompressed)/float64(l.bytesUncompressed)
	}
	return Stats{
		TotalWrites:       l.totalWrites,
		BytesUncompressed: l.bytesUncompressed,
		BytesCompressed:   l.bytesCompressed,
		CompressionRatio:  ratio,
	}
}

// writeHeader writes the topology guard that protects resumes.
// Format: [Magic:4][Version:1][RunID:16][Nodes:4][Links:4][Tanks:4]
func (l *Log) writeHeader() error {
	if err := binary.Write(l.writer, binary.BigEndian, logMagic); err != nil {
		return err
	}
	if err := l.writer.WriteByte(logVersion); err != nil {
		return err
	}
	if _, err := l.writer.Write(l.runID[:]); err != nil {
		return err
	}
	for _, v := range []uint32{l.nodes, l.links, l.tanks} {
		if err := binary.Write(l.writer, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return l.writer.Flush()
}

// recover validates the header against the current network and scans
// the records to continue the sequence after the last one.
func (l *Log) recover() error {
	records, runID, err := readLog(l.path, l.nodes, l.links, l.tanks)
	if err != nil {
		return err
	}
	l.runID = runID
	if len(records) > 0 {
		l.seq = records[len(records)-1].Seq
	}
	return nil
}
