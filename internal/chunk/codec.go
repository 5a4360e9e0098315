package chunk

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// chunkMagic starts every serialized chunk file.
var chunkMagic = [4]byte{'L', 'M', 'N', 'C'}

// chunkVersion is the current chunk file format version.
const chunkVersion byte = 0x01

// Encode writes the prototype tree to w: a 4-byte magic, a version byte and a
// msgpack-encoded Proto.
func Encode(w io.Writer, p *Proto) error {
	if _, err := w.Write(chunkMagic[:]); err != nil {
		return fmt.Errorf("write chunk header: %w", err)
	}
	if _, err := w.Write([]byte{chunkVersion}); err != nil {
		return fmt.Errorf("write chunk header: %w", err)
	}
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	return nil
}

// Decode reads a prototype tree previously written by Encode.
func Decode(r io.Reader) (*Proto, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read chunk header: %w", err)
	}
	if !bytes.Equal(header[:4], chunkMagic[:]) {
		return nil, fmt.Errorf("not a chunk file (bad magic %x)", header[:4])
	}
	if header[4] != chunkVersion {
		return nil, fmt.Errorf("unsupported chunk version %d (want %d)", header[4], chunkVersion)
	}
	var p Proto
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	return &p, nil
}

// SaveFile serializes the prototype tree to the given path.
func SaveFile(path string, p *Proto) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Encode(f, p); err != nil {
		return err
	}
	return f.Sync()
}

// LoadFile reads a chunk file from disk.
func LoadFile(path string) (*Proto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
