package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Monotonic entropy keeps IDs from the same millisecond ordered.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a random, time-sortable ULID for run identifiers.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Trade returns a deterministic ULID for the seq-th trade of a run that
// entered at t. The same ledger always produces the same IDs, and IDs sort
// by entry time. Times before the Unix epoch cannot be encoded.
func Trade(t time.Time, seq int) (string, error) {
	if t.Before(time.Unix(0, 0)) {
		return "", fmt.Errorf("trade id: entry time %s: %w", t.UTC().Format(time.RFC3339), ulid.ErrBigTime)
	}
	var u ulid.ULID
	if err := u.SetTime(ulid.Timestamp(t.UTC())); err != nil {
		return "", fmt.Errorf("trade id: %w", err)
	}
	var entropy [10]byte
	binary.BigEndian.PutUint64(entropy[2:], uint64(seq))
	if err := u.SetEntropy(entropy[:]); err != nil {
		return "", fmt.Errorf("trade id: %w", err)
	}
	return u.String(), nil
}
