package blobstore

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/clarisma/geodesk-go/internal/gderr"
	"github.com/clarisma/geodesk-go/internal/varint"
	"github.com/pkg/errors"
)

// journalEndFlag marks the terminal block's marker (spec §6: "a block
// whose marker has the JOURNAL_END flag set").
const journalEndFlag uint64 = 1 << 63

// journalSuffix is appended to the GOL path to name its journal file
// (spec §6: "Same directory as the GOL, suffix .journal").
const journalSuffix = ".journal"

// journalBlock is one pre-image region recorded during a transaction.
type journalBlock struct {
	marker  uint64
	content []byte
}

// Journal implements the write-ahead log protecting header/tile-index
// updates against torn writes (spec §4.1 steps 2-5).
type Journal struct {
	path    string
	file    *os.File
	marker  uint64
	blocks  []journalBlock // blocks added via AddBlock; Seal hashes the file itself
	written int64
}

// openJournal creates (truncating any prior journal) a fresh journal file
// at golPath+".journal" and resets its marker epoch.
func openJournal(golPath string, marker uint64) (*Journal, error) {
	path := golPath + journalSuffix
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening journal")
	}
	return &Journal{path: path, file: f, marker: marker}, nil
}

// AddBlock appends a pre-image region (a header or tile-index byte range
// about to be overwritten) to the journal, tagged with the transaction's
// marker.
func (j *Journal) AddBlock(content []byte) error {
	blk := journalBlock{marker: j.marker, content: append([]byte(nil), content...)}
	j.blocks = append(j.blocks, blk)

	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], blk.marker)
	if _, err := j.file.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "writing journal marker")
	}

	var lenBuf [varint.MaxBytes]byte
	n := varint.PutUvarint(lenBuf[:], uint64(len(content)))
	if _, err := j.file.Write(lenBuf[:n]); err != nil {
		return errors.Wrap(err, "writing journal block length")
	}
	if _, err := j.file.Write(content); err != nil {
		return errors.Wrap(err, "writing journal block content")
	}
	j.written += int64(8 + n + len(content))
	return nil
}

// Seal writes the terminal block (CRC32-C over every preceding byte, with
// the JOURNAL_END flag set on its marker) and fsyncs the journal (spec
// §4.1 step 3).
func (j *Journal) Seal() error {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking journal for checksum")
	}
	h := crc32.New(crcTable)
	if _, err := io.Copy(h, j.file); err != nil {
		return errors.Wrap(err, "hashing journal")
	}
	crc := h.Sum32()

	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "seeking journal to append terminal block")
	}

	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], journalEndFlag|j.marker)
	if _, err := j.file.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "writing journal terminal marker")
	}
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	if _, err := j.file.Write(crcBuf[:]); err != nil {
		return errors.Wrap(err, "writing journal terminal crc")
	}
	return j.file.Sync()
}

// Truncate discards the journal after its transaction has been applied and
// synced (spec §4.1 step 5).
func (j *Journal) Truncate() error {
	if err := j.file.Truncate(0); err != nil {
		return errors.Wrap(err, "truncating journal")
	}
	_, err := j.file.Seek(0, io.SeekStart)
	return err
}

// Close closes the journal's file handle.
func (j *Journal) Close() error {
	return j.file.Close()
}

// recoverJournal reads golPath+".journal" (if present) and returns its
// pre-image blocks in write order, already validated against the terminal
// CRC32-C. A missing journal, an empty journal, or one whose terminal
// block does not validate yields (nil, nil): per spec §4.1, "otherwise the
// partial journal is discarded" rather than treated as an error.
func recoverJournal(golPath string) ([]journalBlock, error) {
	path := golPath + journalSuffix
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading journal")
	}
	if len(data) < 12 {
		return nil, nil
	}

	var blocks []journalBlock
	pos := 0
	for pos+8 <= len(data) {
		marker := binary.LittleEndian.Uint64(data[pos : pos+8])
		pos += 8

		if marker&journalEndFlag != 0 {
			if pos+4 > len(data) {
				return nil, nil // truncated terminal block: discard
			}
			wantCRC := binary.LittleEndian.Uint32(data[pos : pos+4])
			gotCRC := CRC32C(data[:pos-8])
			if wantCRC != gotCRC {
				return nil, nil // CRC mismatch: partial journal, discard
			}
			return blocks, nil
		}

		length, n, err := varint.SafeUvarint(data, pos, len(data))
		if err != nil {
			return nil, nil // malformed length: discard partial journal
		}
		pos = n
		if pos+int(length) > len(data) {
			return nil, nil
		}
		content := data[pos : pos+int(length)]
		blocks = append(blocks, journalBlock{marker: marker, content: content})
		pos += int(length)
	}
	// Reached EOF without a terminal block: the journal was never sealed.
	return nil, nil
}

// removeJournal deletes a sealed-and-applied journal's file, ignoring a
// not-exist error.
func removeJournal(golPath string) error {
	err := os.Remove(golPath + journalSuffix)
	if err != nil && !os.IsNotExist(err) {
		return gderr.Wrap(err, gderr.Io, "removing journal")
	}
	return nil
}
