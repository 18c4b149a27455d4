// Package reveal reconstructs a RevealLargePayload operation's payload
// from the rollup's content-addressed preimage store: the root hash
// resolves to an ordered index of chunk hashes, and each chunk is pulled
// with host.RevealPreimage and concatenated in order.
package reveal

import (
	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/jstzerrors"
	"github.com/jstz-dev/jstz/internal/storage"
)

// MaxChunkSize is the per-call ceiling the rollup host enforces on
// RevealPreimage.
const MaxChunkSize = 4096

// Reconstruct resolves rootHash to the full payload bytes.
func Reconstruct(h host.Host, rootHash []byte) ([]byte, error) {
	index, err := h.RevealPreimage(rootHash)
	if err != nil {
		return nil, jstzerrors.Wrap(jstzerrors.CodeHost, "reveal root index", err)
	}
	hashes, err := decodeChunkHashes(index)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, hash := range hashes {
		chunk, err := h.RevealPreimage(hash)
		if err != nil {
			return nil, jstzerrors.Wrap(jstzerrors.CodeHost, "reveal chunk", err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func decodeChunkHashes(b []byte) ([][]byte, error) {
	n, rest, err := storage.TakeUint64(b)
	if err != nil {
		return nil, err
	}
	hashes := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		var hash []byte
		hash, rest, err = storage.TakeBytes(rest)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// EncodeChunkIndex builds the root preimage bytes for an ordered list of
// chunk hashes. Used by tooling that prepares a RevealLargePayload
// submission; the kernel itself only ever reconstructs.
func EncodeChunkIndex(hashes [][]byte) []byte {
	buf := storage.PutUint64(nil, uint64(len(hashes)))
	for _, hash := range hashes {
		buf = storage.PutBytes(buf, hash)
	}
	return buf
}

// Chunk splits data into MaxChunkSize-sized pieces, for tooling that
// prepares a reveal submission's preimage table.
func Chunk(data []byte) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := MaxChunkSize
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
