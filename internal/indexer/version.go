package indexer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// Version file layout, little endian:
//
//	magic(4) format(4) version(4) createdAt(8) crc32(4)
const (
	versionMagic  uint32 = 0x49584458 // "IXDX"
	versionFormat uint32 = 1
	versionSize          = 24
	versionFile          = "version"
)

var errVersionCorrupt = errors.New("version file corrupt")

// IndexVersion is the decoded content of an index directory's version file.
type IndexVersion struct {
	Version   int
	CreatedAt time.Time
}

// WriteVersion atomically records version for the index stored in dir.
func WriteVersion(dir string, version int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	buf := make([]byte, versionSize)
	binary.LittleEndian.PutUint32(buf[0:4], versionMagic)
	binary.LittleEndian.PutUint32(buf[4:8], versionFormat)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(version))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint32(buf[20:24], crc32.ChecksumIEEE(buf[:20]))

	finalPath := filepath.Join(dir, versionFile)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp version file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("writing version file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing version file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing version file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming version file: %w", err)
	}
	return nil
}

// ReadVersion returns the recorded version of the index in dir. A missing
// file is reported as os.ErrNotExist.
func ReadVersion(dir string) (IndexVersion, error) {
	buf, err := os.ReadFile(filepath.Join(dir, versionFile))
	if err != nil {
		return IndexVersion{}, err
	}
	if len(buf) != versionSize {
		return IndexVersion{}, fmt.Errorf("%w: size %d", errVersionCorrupt, len(buf))
	}
	if magic := binary.LittleEndian.Uint32(buf[0:4]); magic != versionMagic {
		return IndexVersion{}, fmt.Errorf("%w: bad magic %x", errVersionCorrupt, magic)
	}
	if crc := binary.LittleEndian.Uint32(buf[20:24]); crc != crc32.ChecksumIEEE(buf[:20]) {
		return IndexVersion{}, fmt.Errorf("%w: checksum mismatch", errVersionCorrupt)
	}
	if format := binary.LittleEndian.Uint32(buf[4:8]); format != versionFormat {
		return IndexVersion{}, fmt.Errorf("%w: unknown format %d", errVersionCorrupt, format)
	}
	return IndexVersion{
		Version:   int(binary.LittleEndian.Uint32(buf[8:12])),
		CreatedAt: time.Unix(int64(binary.LittleEndian.Uint64(buf[12:20])), 0),
	}, nil
}

// VersionState is the outcome of EnsureVersion.
type VersionState int

const (
	VersionCurrent VersionState = iota // recorded version matched
	VersionCreated                     // nothing was recorded yet
	VersionStale                       // data of another or unknown version was wiped
)

// EnsureVersion makes dir hold data of the given version. When the recorded
// version is missing, unreadable or different, the directory is wiped and the
// new version written.
func EnsureVersion(dir string, version int) (VersionState, error) {
	current, err := ReadVersion(dir)
	if err == nil && current.Version == version {
		return VersionCurrent, nil
	}
	state := VersionCreated
	existed, err := hasContent(dir)
	if err != nil {
		return state, err
	}
	if existed {
		state = VersionStale
	}
	if err := wipe(dir); err != nil {
		return state, err
	}
	return state, WriteVersion(dir, version)
}

func hasContent(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading index directory %s: %w", dir, err)
	}
	return len(entries) > 0, nil
}

func wipe(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("wiping index directory %s: %w", dir, err)
	}
	return nil
}
