package margin

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/luxfi/database"
)

// State is a journaled key-value overlay on top of a database.Database. All
// writes within a transaction land in the journal; Commit flushes them as one
// batch, Discard throws them away. This is what gives instruction sequences
// all-or-nothing semantics.
type State struct {
	db      database.Database
	journal map[string]*journalEntry
}

type journalEntry struct {
	value   []byte
	deleted bool
}

// NewState creates a state over the given database.
func NewState(db database.Database) *State {
	return &State{
		db:      db,
		journal: make(map[string]*journalEntry),
	}
}

func (s *State) get(key []byte) ([]byte, error) {
	if e, ok := s.journal[string(key)]; ok {
		if e.deleted {
			return nil, database.ErrNotFound
		}
		return e.value, nil
	}
	return s.db.Get(key)
}

func (s *State) put(key, value []byte) {
	s.journal[string(key)] = &journalEntry{value: value}
}

func (s *State) delete(key []byte) {
	s.journal[string(key)] = &journalEntry{deleted: true}
}

func (s *State) has(key []byte) (bool, error) {
	if e, ok := s.journal[string(key)]; ok {
		return !e.deleted, nil
	}
	return s.db.Has(key)
}

// Commit writes the journal to the underlying database as a single batch and
// resets the journal.
func (s *State) Commit() error {
	batch := s.db.NewBatch()
	for k, e := range s.journal {
		if e.deleted {
			if err := batch.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := batch.Put([]byte(k), e.value); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.journal = make(map[string]*journalEntry)
	return nil
}

// Discard drops all journaled writes.
func (s *State) Discard() {
	s.journal = make(map[string]*journalEntry)
}

// Dirty reports whether the journal holds uncommitted writes.
func (s *State) Dirty() bool {
	return len(s.journal) > 0
}

// Record is any persisted entity. Discriminator names the record type; the
// 8-byte prefix derived from it guards against deserializing one record type
// as another.
type Record interface {
	Discriminator() string
}

func discriminatorBytes(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:8]
}

// putRecord serializes a record at addr, overwriting any previous version.
func (s *State) putRecord(addr Address, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, 8+len(body))
	buf = append(buf, discriminatorBytes(rec.Discriminator())...)
	buf = append(buf, body...)
	s.put(addr[:], buf)
	return nil
}

// createRecord is putRecord plus an existence check; creating a record at an
// occupied address fails. Ephemeral bracket records rely on this for
// at-most-one-in-flight-operation-per-resource locking.
func (s *State) createRecord(addr Address, rec Record) error {
	ok, err := s.has(addr[:])
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s at %s", ErrAccountExists, rec.Discriminator(), addr)
	}
	return s.putRecord(addr, rec)
}

// getRecord loads the record at addr into out, checking the discriminator.
func (s *State) getRecord(addr Address, out Record) error {
	raw, err := s.get(addr[:])
	if err != nil {
		if err == database.ErrNotFound {
			return fmt.Errorf("%w: %s at %s", ErrAccountNotFound, out.Discriminator(), addr)
		}
		return err
	}
	disc := discriminatorBytes(out.Discriminator())
	if len(raw) < 8 || !bytes.Equal(raw[:8], disc) {
		return fmt.Errorf("%w: wrong discriminator at %s", ErrInvalidTransaction, addr)
	}
	return json.Unmarshal(raw[8:], out)
}

// hasRecord reports whether any record exists at addr.
func (s *State) hasRecord(addr Address) (bool, error) {
	return s.has(addr[:])
}

// closeRecord deletes the record at addr. The host environment returns the
// record's rent to the designated receiver; the ledger side of that is handled
// by callers where it matters.
func (s *State) closeRecord(addr Address) {
	s.delete(addr[:])
}
