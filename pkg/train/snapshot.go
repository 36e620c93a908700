package train

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/Blackphoenix-15/Transformer-estimation-sde/pkg/model"
)

// Snapshot format, little-endian throughout:
//
//	[magic(4) "SDEM"][version(2)]
//	[sysLen(2)][system][runLen(2)][runID][valLoss(8)][count(4)][checksum(4)]
//	then per parameter:
//	[nameLen(2)][name][rows(4)][cols(4)][data(8*rows*cols)]
//
// The checksum is CRC-32 (IEEE) over the parameter records. Loading verifies
// the stored parameter set matches the model's exactly, name by name and
// shape by shape.

const (
	snapshotMagic   = 0x4D454453 // "SDEM"
	snapshotVersion = 1
)

// SaveSnapshot writes the model's current weights to path.
func SaveSnapshot(m *model.Regressor, path, system, runID string, valLoss float64) error {
	body := &bytes.Buffer{}
	params := m.Params()
	for _, p := range params {
		name := []byte(p.Name)
		binary.Write(body, binary.LittleEndian, uint16(len(name)))
		body.Write(name)
		rows, cols := p.Value.Dims()
		binary.Write(body, binary.LittleEndian, uint32(rows))
		binary.Write(body, binary.LittleEndian, uint32(cols))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				binary.Write(body, binary.LittleEndian, math.Float64bits(p.Value.At(i, j)))
			}
		}
	}

	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(snapshotMagic))
	binary.Write(buf, binary.LittleEndian, uint16(snapshotVersion))
	writeString(buf, system)
	writeString(buf, runID)
	binary.Write(buf, binary.LittleEndian, math.Float64bits(valLoss))
	binary.Write(buf, binary.LittleEndian, uint32(len(params)))
	binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(body.Bytes()))
	buf.Write(body.Bytes())

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadSnapshot restores weights saved by SaveSnapshot into m, which must have
// the same architecture. It returns the stored system tag, run ID, and
// validation loss.
func LoadSnapshot(m *model.Regressor, path string) (system, runID string, valLoss float64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", 0, err
	}
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return "", "", 0, fmt.Errorf("train: %s: %w", path, err)
	}
	if magic != snapshotMagic {
		return "", "", 0, fmt.Errorf("train: %s is not a model snapshot (bad magic)", path)
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return "", "", 0, err
	}
	if version != snapshotVersion {
		return "", "", 0, fmt.Errorf("train: %s has unsupported snapshot version %d", path, version)
	}
	if system, err = readString(r); err != nil {
		return "", "", 0, err
	}
	if runID, err = readString(r); err != nil {
		return "", "", 0, err
	}
	var lossBits uint64
	if err := binary.Read(r, binary.LittleEndian, &lossBits); err != nil {
		return "", "", 0, err
	}
	valLoss = math.Float64frombits(lossBits)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return "", "", 0, err
	}
	var sum uint32
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return "", "", 0, err
	}

	body := data[len(data)-r.Len():]
	if crc32.ChecksumIEEE(body) != sum {
		return "", "", 0, fmt.Errorf("train: %s failed checksum, file is corrupt", path)
	}

	params := m.Params()
	if int(count) != len(params) {
		return "", "", 0, fmt.Errorf("train: %s holds %d parameters, model has %d", path, count, len(params))
	}
	byName := make(map[string]*model.Param, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}

	for k := uint32(0); k < count; k++ {
		name, err := readString(r)
		if err != nil {
			return "", "", 0, fmt.Errorf("train: %s parameter %d: %w", path, k, err)
		}
		var rows, cols uint32
		if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
			return "", "", 0, err
		}
		if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
			return "", "", 0, err
		}
		p, ok := byName[name]
		if !ok {
			return "", "", 0, fmt.Errorf("train: %s holds parameter %q the model does not have", path, name)
		}
		pr, pc := p.Value.Dims()
		if int(rows) != pr || int(cols) != pc {
			return "", "", 0, fmt.Errorf("train: %s parameter %q is %dx%d, model expects %dx%d", path, name, rows, cols, pr, pc)
		}
		values := mat.NewDense(int(rows), int(cols), nil)
		for i := 0; i < int(rows); i++ {
			for j := 0; j < int(cols); j++ {
				var bits uint64
				if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
					return "", "", 0, err
				}
				values.Set(i, j, math.Float64frombits(bits))
			}
		}
		p.Value.Copy(values)
	}
	return system, runID, valLoss, nil
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
