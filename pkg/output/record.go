package output

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-hydronet/pkg/network"
)

// encodeState serializes the network's mutable state arrays.
// Payload: heads, demands, qualities (per node), flows, settings (per
// link), statuses (one byte per link), tank volumes.
func encodeState(net *network.Network) ([]byte, error) {
	var buf bytes.Buffer
	for _, arr := range [][]float64{net.Head, net.DemandFlow, net.Quality, net.Flow, net.Setting} {
		if err := binary.Write(&buf, binary.BigEndian, arr); err != nil {
			return nil, err
		}
	}
	status := make([]byte, len(net.LinkStatus))
	for k, st := range net.LinkStatus {
		status[k] = byte(int8(st))
	}
	buf.Write(status)
	if err := binary.Write(&buf, binary.BigEndian, net.TankVolume); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeState splits a payload back into a record's state arrays.
func decodeState(payload []byte, rec *StepRecord, nodes, links, tanks uint32) error {
	want := int(nodes)*3*8 + int(links)*2*8 + int(links) + int(tanks)*8
	if len(payload) != want {
		return fmt.Errorf("%w: payload is %d bytes, want %d", ErrCorrupt, len(payload), want)
	}
	buf := bytes.NewReader(payload)

	rec.Head = make([]float64, nodes)
	rec.DemandFlow = make([]float64, nodes)
	rec.Quality = make([]float64, nodes)
	rec.Flow = make([]float64, links)
	rec.Setting = make([]float64, links)
	for _, arr := range [][]float64{rec.Head, rec.DemandFlow, rec.Quality, rec.Flow, rec.Setting} {
		if err := binary.Read(buf, binary.BigEndian, arr); err != nil {
			return err
		}
	}

	status := make([]byte, links)
	if _, err := io.ReadFull(buf, status); err != nil {
		return err
	}
	rec.Status = make([]network.Status, links)
	for k, b := range status {
		rec.Status[k] = network.Status(int8(b))
	}

	rec.TankVolume = make([]float64, tanks)
	return binary.Read(buf, binary.BigEndian, rec.TankVolume)
}

// readLog reads the header and every record of the log at path,
// verifying the topology guard and each record checksum.
func readLog(path string, nodes, links, tanks uint32) ([]*StepRecord, uuid.UUID, error) {
	var runID uuid.UUID

	file, err := os.Open(path)
	if err != nil {
		return nil, runID, err
	}
	defer file.Close()
	reader := bufio.NewReader(file)

	var magic uint32
	if err := binary.Read(reader, binary.BigEndian, &magic); err != nil {
		return nil, runID, fmt.Errorf("failed to read result log header: %w", err)
	}
	if magic != logMagic {
		return nil, runID, fmt.Errorf("%w: bad magic %#x", ErrCorrupt, magic)
	}
	version, err := reader.ReadByte()
	if err != nil {
		return nil, runID, err
	}
	if version != logVersion {
		return nil, runID, fmt.Errorf("unsupported result log version %d", version)
	}
	if _, err := io.ReadFull(reader, runID[:]); err != nil {
		return nil, runID, err
	}
	var hdr [3]uint32
	for i := range hdr {
		if err := binary.Read(reader, binary.BigEndian, &hdr[i]); err != nil {
			return nil, runID, err
		}
	}
	if hdr[0] != nodes || hdr[1] != links || hdr[2] != tanks {
		return nil, runID, ErrTopologyMismatch
	}

	var records []*StepRecord
	for {
		rec := &StepRecord{}
		if err := binary.Read(reader, binary.BigEndian, &rec.Seq); err != nil {
			if err == io.EOF {
				break
			}
			return nil, runID, err
		}
		if err := binary.Read(reader, binary.BigEndian, &rec.Clock); err != nil {
			return nil, runID, err
		}
		if err := binary.Read(reader, binary.BigEndian, &rec.Dt); err != nil {
			return nil, runID, err
		}
		var dataLen uint32
		if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
			return nil, runID, err
		}
		compressed := make([]byte, dataLen)
		if _, err := io.ReadFull(reader, compressed); err != nil {
			return nil, runID, err
		}
		var checksum uint32
		if err := binary.Read(reader, binary.BigEndian, &checksum); err != nil {
			return nil, runID, err
		}
		if crc32.ChecksumIEEE(compressed) != checksum {
			return nil, runID, fmt.Errorf("%w: checksum mismatch at record %d", ErrCorrupt, rec.Seq)
		}
		payload, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, runID, fmt.Errorf("failed to decompress record %d: %w", rec.Seq, err)
		}
		if err := decodeState(payload, rec, nodes, links, tanks); err != nil {
			return nil, runID, err
		}
		records = append(records, rec)
	}
	return records, runID, nil
}
