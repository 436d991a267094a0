package storage

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/annel0/shipgrid/internal/block"
	"github.com/annel0/shipgrid/internal/grid"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

// Формат снимка: "SGRD", байт версии, затем zstd-кадр с телом в wire-формате protobuf.
//
//	1: version (varint)
//	2: repeated Type { 1: index, 2: asset id, 3: asset name }
//	3: repeated Node { 1: x, 2: y, 3: z (zigzag), 4: type index, 5: rotation, 6: color }
const snapshotVersion = 1

var snapshotMagic = []byte("SGRD")

// ErrCorruptSnapshot возвращается, если снимок не удаётся разобрать
var ErrCorruptSnapshot = errors.New("storage: corrupt grid snapshot")

// MaxSnapshotBody предельный размер распакованного тела снимка
const MaxSnapshotBody = 32 << 20

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxSnapshotBody))
)

const (
	fieldVersion protowire.Number = 1
	fieldType    protowire.Number = 2
	fieldNode    protowire.Number = 3

	typeIndex protowire.Number = 1
	typeID    protowire.Number = 2
	typeName  protowire.Number = 3

	nodeX        protowire.Number = 1
	nodeY        protowire.Number = 2
	nodeZ        protowire.Number = 3
	nodeType     protowire.Number = 4
	nodeRotation protowire.Number = 5
	nodeColor    protowire.Number = 6
)

// EncodeGrid сериализует блоки и таблицу типов сетки.
// Записи типов без живых блоков не сохраняются.
func EncodeGrid(g *grid.BlockGrid) ([]byte, error) {
	var body []byte
	body = protowire.AppendTag(body, fieldVersion, protowire.VarintType)
	body = protowire.AppendVarint(body, snapshotVersion)

	for i, t := range g.Types() {
		if t.Asset.IsZero() || t.Count == 0 {
			continue
		}
		var msg []byte
		msg = appendVarintField(msg, typeIndex, uint64(i))
		msg = appendVarintField(msg, typeID, uint64(t.Asset.ID))
		msg = protowire.AppendTag(msg, typeName, protowire.BytesType)
		msg = protowire.AppendString(msg, t.Asset.Name)

		body = protowire.AppendTag(body, fieldType, protowire.BytesType)
		body = protowire.AppendBytes(body, msg)
	}

	for _, n := range g.Nodes() {
		var msg []byte
		msg = appendVarintField(msg, nodeX, protowire.EncodeZigZag(int64(n.Pos.X)))
		msg = appendVarintField(msg, nodeY, protowire.EncodeZigZag(int64(n.Pos.Y)))
		msg = appendVarintField(msg, nodeZ, protowire.EncodeZigZag(int64(n.Pos.Z)))
		msg = appendVarintField(msg, nodeType, uint64(n.Type))
		msg = appendVarintField(msg, nodeRotation, uint64(n.Rotation))
		msg = appendVarintField(msg, nodeColor, uint64(n.Color))

		body = protowire.AppendTag(body, fieldNode, protowire.BytesType)
		body = protowire.AppendBytes(body, msg)
	}

	out := make([]byte, 0, len(snapshotMagic)+1+len(body)/2)
	out = append(out, snapshotMagic...)
	out = append(out, snapshotVersion)
	return zstdEncoder.EncodeAll(body, out), nil
}

// DecodeGrid восстанавливает сетку из снимка повторной вставкой блоков.
// Ассеты разрешаются по имени через реестр; если реестр nil, используются
// идентификаторы из снимка. capacity - ёмкость пулов новой сетки.
func DecodeGrid(data []byte, reg *block.Registry, capacity int) (*grid.BlockGrid, error) {
	if len(data) < len(snapshotMagic)+1 || !bytes.Equal(data[:len(snapshotMagic)], snapshotMagic) {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptSnapshot)
	}
	if v := data[len(snapshotMagic)]; v != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, v)
	}

	body, err := zstdDecoder.DecodeAll(data[len(snapshotMagic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if len(body) > MaxSnapshotBody {
		return nil, fmt.Errorf("%w: body of %d bytes exceeds limit", ErrCorruptSnapshot, len(body))
	}

	assets := make(map[uint64]block.Asset)
	var nodes []grid.Node

	err = consumeFields(body, func(num protowire.Number, value uint64, raw []byte) error {
		switch num {
		case fieldVersion:
			if value != snapshotVersion {
				return fmt.Errorf("unsupported body version %d", value)
			}
		case fieldType:
			idx, asset, err := decodeType(raw, reg)
			if err != nil {
				return err
			}
			assets[idx] = asset
		case fieldNode:
			n, err := decodeNode(raw)
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	g := grid.NewWithCapacity(capacity)
	for _, n := range nodes {
		asset, ok := assets[uint64(n.Type)]
		if !ok {
			return nil, fmt.Errorf("%w: node %v references unknown type %d", ErrCorruptSnapshot, n.Pos, n.Type)
		}
		if _, err := g.InsertColored(asset, n.Pos, n.Rotation, n.Color); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func decodeType(raw []byte, reg *block.Registry) (uint64, block.Asset, error) {
	var idx, id uint64
	var name string
	err := consumeFields(raw, func(num protowire.Number, value uint64, b []byte) error {
		switch num {
		case typeIndex:
			idx = value
		case typeID:
			id = value
		case typeName:
			name = string(b)
		}
		return nil
	})
	if err != nil {
		return 0, block.Asset{}, err
	}
	if name == "" {
		return 0, block.Asset{}, fmt.Errorf("type %d without asset name", idx)
	}

	if reg == nil {
		return idx, block.Asset{ID: block.AssetID(id), Name: name}, nil
	}
	asset, err := reg.Register(name)
	return idx, asset, err
}

func decodeNode(raw []byte) (grid.Node, error) {
	var n grid.Node
	err := consumeFields(raw, func(num protowire.Number, value uint64, b []byte) error {
		switch num {
		case nodeX:
			n.Pos.X = int(protowire.DecodeZigZag(value))
		case nodeY:
			n.Pos.Y = int(protowire.DecodeZigZag(value))
		case nodeZ:
			n.Pos.Z = int(protowire.DecodeZigZag(value))
		case nodeType:
			if value > math.MaxUint16 {
				return fmt.Errorf("node type index %d out of range", value)
			}
			n.Type = uint16(value)
		case nodeRotation:
			if value > math.MaxUint8 {
				return fmt.Errorf("node rotation %d out of range", value)
			}
			n.Rotation = uint8(value)
		case nodeColor:
			if value > math.MaxUint8 {
				return fmt.Errorf("node color %d out of range", value)
			}
			n.Color = uint8(value)
		}
		return nil
	})
	return n, err
}

// consumeFields перебирает поля сообщения. Для varint-полей передаётся value,
// для bytes-полей raw; поля других типов пропускаются.
func consumeFields(b []byte, fn func(num protowire.Number, value uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := fn(num, v, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if err := fn(num, 0, v); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
