package dataset

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
)

// Binary dataset format, little-endian throughout:
//
//	[magic(4) "SDED"][version(2)][nameLen(2)][name][count(4)][checksum(4)]
//	then per sample:
//	[T(8)][N(4)][paramCount(2)][params(8*paramCount)][trajLen(4)][traj(8*trajLen)]
//
// The checksum is CRC-32 (IEEE) over the record bytes. The system name is the
// explicit variant tag; loading verifies it against the caller's expectation.

const (
	binaryMagic   = 0x44454453 // "SDED"
	binaryVersion = 1
)

// WriteBinary writes the dataset to path in the binary format.
func WriteBinary(d *Dataset, path string) error {
	body := &bytes.Buffer{}
	for _, s := range d.Samples {
		if err := writeSample(body, s); err != nil {
			return err
		}
	}

	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	name := []byte(d.System)
	binary.Write(buf, binary.LittleEndian, uint16(len(name)))
	buf.Write(name)
	binary.Write(buf, binary.LittleEndian, uint32(len(d.Samples)))
	binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(body.Bytes()))
	buf.Write(body.Bytes())

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeSample(buf *bytes.Buffer, s Sample) error {
	binary.Write(buf, binary.LittleEndian, math.Float64bits(s.T))
	binary.Write(buf, binary.LittleEndian, uint32(s.N))
	binary.Write(buf, binary.LittleEndian, uint16(len(s.Params)))
	for _, p := range s.Params {
		binary.Write(buf, binary.LittleEndian, math.Float64bits(p))
	}
	if len(s.Trajectory) != s.N {
		return fmt.Errorf("dataset: sample N=%d but trajectory has %d samples", s.N, len(s.Trajectory))
	}
	binary.Write(buf, binary.LittleEndian, uint32(len(s.Trajectory)))
	for _, x := range s.Trajectory {
		binary.Write(buf, binary.LittleEndian, math.Float64bits(x))
	}
	return nil
}

// ReadBinary loads a dataset written by WriteBinary, verifying magic, version,
// checksum, and the system variant tag.
func ReadBinary(path, system string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}
	if magic != binaryMagic {
		return nil, fmt.Errorf("dataset: %s is not a dataset file (bad magic)", path)
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != binaryVersion {
		return nil, fmt.Errorf("dataset: %s has unsupported version %d", path, version)
	}
	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return nil, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	if string(name) != system {
		return nil, fmt.Errorf("dataset: %s holds system %q, expected %q", path, name, system)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	var sum uint32
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return nil, err
	}

	body := data[len(data)-r.Len():]
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("dataset: %s failed checksum, file is corrupt", path)
	}

	d := &Dataset{System: system, Samples: make([]Sample, 0, count)}
	for i := uint32(0); i < count; i++ {
		s, err := readSample(r)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s sample %d: %w", path, i, err)
		}
		d.Samples = append(d.Samples, s)
	}
	return d, nil
}

func readSample(r *bytes.Reader) (Sample, error) {
	var tBits uint64
	if err := binary.Read(r, binary.LittleEndian, &tBits); err != nil {
		return Sample{}, err
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return Sample{}, err
	}
	var paramCount uint16
	if err := binary.Read(r, binary.LittleEndian, &paramCount); err != nil {
		return Sample{}, err
	}
	params := make([]float64, paramCount)
	for j := range params {
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return Sample{}, err
		}
		params[j] = math.Float64frombits(bits)
	}
	var trajLen uint32
	if err := binary.Read(r, binary.LittleEndian, &trajLen); err != nil {
		return Sample{}, err
	}
	if trajLen != n {
		return Sample{}, fmt.Errorf("N=%d but trajectory length is %d", n, trajLen)
	}
	traj := make([]float64, trajLen)
	for j := range traj {
		var bits uint64
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return Sample{}, err
		}
		traj[j] = math.Float64frombits(bits)
	}
	return Sample{Trajectory: traj, T: math.Float64frombits(tBits), N: int(n), Params: params}, nil
}
