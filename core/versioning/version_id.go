package versioning

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const HashSize = 32

// ContentHash is the SHA-256 fingerprint of a blob.
type ContentHash [HashSize]byte

// CommitID identifies a commit. It is derived from the document, the version
// label, the content hash and a per-commit nonce.
type CommitID [HashSize]byte

func ComputeContentHash(content []byte) ContentHash {
	return ContentHash(sha256.Sum256(content))
}

// HashContent is ComputeContentHash for callers that may hold a nil slice.
// Empty but non-nil content is valid.
func HashContent(content []byte) (ContentHash, error) {
	if content == nil {
		return ContentHash{}, ErrNilContent
	}
	return ComputeContentHash(content), nil
}

func ComputeCommitID(documentID, versionLabel string, hash ContentHash, nonce uuid.UUID) CommitID {
	h := sha256.New()
	writeField(h, []byte(documentID))
	writeField(h, []byte(versionLabel))
	writeField(h, hash[:])
	writeField(h, nonce[:])
	var id CommitID
	copy(id[:], h.Sum(nil))
	return id
}

// writeField length-prefixes each field so ("ab","c") and ("a","bc") differ.
func writeField(h interface{ Write([]byte) (int, error) }, field []byte) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(field)))
	h.Write(size[:])
	h.Write(field)
}

func (c ContentHash) String() string {
	return hex.EncodeToString(c[:])
}

func (c ContentHash) Short() string {
	return hex.EncodeToString(c[:4])
}

func (c ContentHash) IsZero() bool {
	return c == ContentHash{}
}

func (c ContentHash) Equal(other ContentHash) bool {
	return c == other
}

func (c ContentHash) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ContentHash) UnmarshalText(text []byte) error {
	parsed, err := ParseContentHash(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func ParseContentHash(s string) (ContentHash, error) {
	var hash ContentHash
	if err := decodeHash(s, hash[:]); err != nil {
		return ContentHash{}, err
	}
	return hash, nil
}

func (id CommitID) String() string {
	return hex.EncodeToString(id[:])
}

func (id CommitID) Short() string {
	return hex.EncodeToString(id[:4])
}

func (id CommitID) IsZero() bool {
	return id == CommitID{}
}

func (id CommitID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

func (id *CommitID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = CommitID{}
		return nil
	}
	parsed, err := ParseCommitID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func ParseCommitID(s string) (CommitID, error) {
	var id CommitID
	if err := decodeHash(s, id[:]); err != nil {
		return CommitID{}, err
	}
	return id, nil
}

func decodeHash(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(raw))
	}
	copy(dst, raw)
	return nil
}
