// Package chunkstore holds the ordered, append-only sequence of chunk texts whose positions
// match the vector index. A SHA-256 content-hash set gives exact-equality membership tests.
package chunkstore

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// Hash identifies chunk content.
type Hash [sha256.Size]byte

// HashOf returns the content hash of a chunk.
func HashOf(chunk string) Hash {
	return sha256.Sum256([]byte(chunk))
}

// Store is an append-only chunk sequence. Positions are dense, start at 0 and never change
// except through Truncate, which exists for rolling back a failed append.
type Store struct {
	mu     sync.RWMutex
	chunks []string
	// counts tracks how many times each content appears so Truncate can drop
	// a hash only when its last occurrence goes.
	counts map[Hash]int
}

// New returns a store holding chunks in order.
func New(chunks []string) *Store {
	s := &Store{counts: make(map[Hash]int, len(chunks))}
	s.appendLocked(chunks)
	return s
}

// Append adds chunks at the end and returns the position of the first one.
func (s *Store) Append(chunks ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.chunks)
	s.appendLocked(chunks)
	return start
}

func (s *Store) appendLocked(chunks []string) {
	for _, c := range chunks {
		s.chunks = append(s.chunks, c)
		s.counts[HashOf(c)]++
	}
}

// Get returns the chunk at position.
func (s *Store) Get(position int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if position < 0 || position >= len(s.chunks) {
		return "", fmt.Errorf("chunk position %d out of range [0, %d)", position, len(s.chunks))
	}
	return s.chunks[position], nil
}

// Len returns the number of chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Texts returns a copy of the chunk sequence.
func (s *Store) Texts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Contains reports whether a chunk with identical content is stored.
func (s *Store) Contains(chunk string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[HashOf(chunk)] > 0
}

// Difference returns the incoming chunks not already stored, without duplicates,
// in order of first occurrence.
func (s *Store) Difference(incoming []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[Hash]struct{})
	var out []string
	for _, c := range incoming {
		h := HashOf(c)
		if s.counts[h] > 0 {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Missing returns how many stored chunks do not appear in incoming (counting positions,
// so repeated stored content is counted once per position).
func (s *Store) Missing(incoming []string) int {
	in := make(map[Hash]struct{}, len(incoming))
	for _, c := range incoming {
		in[HashOf(c)] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	missing := 0
	for _, c := range s.chunks {
		if _, ok := in[HashOf(c)]; !ok {
			missing++
		}
	}
	return missing
}

// Truncate drops every chunk at position >= n.
func (s *Store) Truncate(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n > len(s.chunks) {
		return fmt.Errorf("truncate to %d: store has %d chunks", n, len(s.chunks))
	}
	for _, c := range s.chunks[n:] {
		h := HashOf(c)
		if s.counts[h]--; s.counts[h] <= 0 {
			delete(s.counts, h)
		}
	}
	s.chunks = s.chunks[:n:n]
	return nil
}

// Digest returns the SHA-256 of the chunk sequence: each chunk's length and bytes in order.
func (s *Store) Digest() Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Digest(s.chunks)
}

// Digest returns the sequence digest of chunks, identical to (*Store).Digest for the same sequence.
func Digest(chunks []string) Hash {
	h := sha256.New()
	var lenBuf [8]byte
	for _, c := range chunks {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(c)))
		h.Write(lenBuf[:])
		h.Write([]byte(c))
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
