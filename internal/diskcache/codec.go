// Package diskcache persists the RAM cache to a directory (spec.md §4.9):
// one binary-coded file per quad plus a small SQLite index. Reading is
// tolerant of truncated or version-mismatched files — a bad file is dropped
// and the rest of the directory is still read — and persistence as a whole
// is best-effort, matching the original renderer's
// write_tile_id_2_data_map/read_tile_id_2_data_map pattern in
// original_source/.../utils.cpp, which collapses any read failure to an
// empty map rather than propagating it.
package diskcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/alpinemaps/tilescheduler/internal/scheduler"
	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

// FileVersion is written as the first byte of every quad file. Bumping it
// invalidates every file written by a prior version without needing to
// parse the rest of the format; EncodeQuad is the only writer.
const FileVersion = 1

// EncodeQuad serializes q per spec.md §4.9: a version byte, then for each of
// up to four children a present flag, the TileId, the NetworkInfo, and the
// ortho/height/(vector) payloads each prefixed by a u32 length.
func EncodeQuad(q scheduler.TileQuad) []byte {
	var buf bytes.Buffer
	buf.WriteByte(FileVersion)

	for i := 0; i < 4; i++ {
		if i >= q.NTiles {
			buf.WriteByte(0)
			continue
		}
		buf.WriteByte(1)
		t := q.Tiles[i]
		writeTileID(&buf, t.ID)
		writeNetworkInfo(&buf, t.Info)
		writeBytes(&buf, t.Ortho)
		writeBytes(&buf, t.HeightRaw)
		if t.HasVector {
			buf.WriteByte(1)
			writeBytes(&buf, t.Vector)
		} else {
			buf.WriteByte(0)
		}
	}

	return buf.Bytes()
}

// DecodeQuad parses data written by EncodeQuad. Any structural problem
// (wrong version, short read, corrupt length prefix) returns an error; the
// caller (Store.ReadAll) drops the file and continues rather than
// propagating it.
func DecodeQuad(data []byte) (scheduler.TileQuad, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return scheduler.TileQuad{}, fmt.Errorf("read version: %w", err)
	}
	if version != FileVersion {
		return scheduler.TileQuad{}, fmt.Errorf("version mismatch: got %d want %d", version, FileVersion)
	}

	var q scheduler.TileQuad
	for i := 0; i < 4; i++ {
		present, err := r.ReadByte()
		if err != nil {
			return scheduler.TileQuad{}, fmt.Errorf("read present[%d]: %w", i, err)
		}
		if present == 0 {
			continue
		}

		id, err := readTileID(r)
		if err != nil {
			return scheduler.TileQuad{}, fmt.Errorf("read tile id[%d]: %w", i, err)
		}
		info, err := readNetworkInfo(r)
		if err != nil {
			return scheduler.TileQuad{}, fmt.Errorf("read network info[%d]: %w", i, err)
		}
		ortho, err := readBytes(r)
		if err != nil {
			return scheduler.TileQuad{}, fmt.Errorf("read ortho[%d]: %w", i, err)
		}
		height, err := readBytes(r)
		if err != nil {
			return scheduler.TileQuad{}, fmt.Errorf("read height[%d]: %w", i, err)
		}
		hasVector, err := r.ReadByte()
		if err != nil {
			return scheduler.TileQuad{}, fmt.Errorf("read has_vector[%d]: %w", i, err)
		}
		var vector []byte
		if hasVector != 0 {
			vector, err = readBytes(r)
			if err != nil {
				return scheduler.TileQuad{}, fmt.Errorf("read vector[%d]: %w", i, err)
			}
		}

		lt := scheduler.LayeredTile{
			ID:        id,
			Info:      info,
			Ortho:     ortho,
			HeightRaw: height,
			Vector:    vector,
			HasVector: hasVector != 0,
		}
		if q.NTiles == 0 {
			parent, ok := id.Parent()
			if !ok {
				return scheduler.TileQuad{}, fmt.Errorf("tile id[%d] %s has no parent", i, id)
			}
			q.ID = parent
		}
		q.Tiles[q.NTiles] = lt
		q.NTiles++
	}

	if q.NTiles == 0 {
		return scheduler.TileQuad{}, fmt.Errorf("empty quad")
	}
	return q, nil
}

func writeTileID(w *bytes.Buffer, id tileid.ID) {
	w.WriteByte(id.Zoom)
	_ = binary.Write(w, binary.LittleEndian, id.X)
	_ = binary.Write(w, binary.LittleEndian, id.Y)
	w.WriteByte(byte(id.Scheme))
}

func readTileID(r *bytes.Reader) (tileid.ID, error) {
	zoom, err := r.ReadByte()
	if err != nil {
		return tileid.ID{}, err
	}
	var x, y uint32
	if err := binary.Read(r, binary.LittleEndian, &x); err != nil {
		return tileid.ID{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &y); err != nil {
		return tileid.ID{}, err
	}
	scheme, err := r.ReadByte()
	if err != nil {
		return tileid.ID{}, err
	}
	return tileid.NewWithScheme(zoom, x, y, tileid.Scheme(scheme)), nil
}

func writeNetworkInfo(w *bytes.Buffer, info tileid.NetworkInfo) {
	w.WriteByte(byte(info.Status))
	_ = binary.Write(w, binary.LittleEndian, uint64(info.TimestampMs))
}

func readNetworkInfo(r *bytes.Reader) (tileid.NetworkInfo, error) {
	status, err := r.ReadByte()
	if err != nil {
		return tileid.NetworkInfo{}, err
	}
	var ts uint64
	if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
		return tileid.NetworkInfo{}, err
	}
	return tileid.NetworkInfo{Status: tileid.Status(status), TimestampMs: int64(ts)}, nil
}

func writeBytes(w *bytes.Buffer, data []byte) {
	_ = binary.Write(w, binary.LittleEndian, uint32(len(data)))
	w.Write(data)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
