package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
)

// NoteTargets maps debit note ids to the bank account they are booked against,
// replacing the bank account stored on the note header.
type NoteTargets struct {
	targets map[int64]int64
}

// NewNoteTargets builds overrides from an in-memory map.
func NewNoteTargets(targets map[int64]int64) *NoteTargets {
	copied := make(map[int64]int64, len(targets))
	for note, bank := range targets {
		copied[note] = bank
	}
	return &NoteTargets{targets: copied}
}

// LoadNoteTargets reads a JSON object of {"noteId": bankAccountId}. A blank path
// or a missing file yields no overrides.
func LoadNoteTargets(path string) (*NoteTargets, error) {
	if path == "" {
		return NewNoteTargets(nil), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewNoteTargets(nil), nil
		}
		return nil, fmt.Errorf("accounts: read note targets: %w", err)
	}
	if len(raw) == 0 {
		return NewNoteTargets(nil), nil
	}
	var decoded map[string]int64
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("accounts: decode note targets: %w", err)
	}
	targets := make(map[int64]int64, len(decoded))
	for key, bank := range decoded {
		note, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("accounts: note id %q: %w", key, err)
		}
		targets[note] = bank
	}
	return &NoteTargets{targets: targets}, nil
}

// Target returns the overriding bank account for a note.
func (n *NoteTargets) Target(noteID int64) (int64, bool) {
	if n == nil {
		return 0, false
	}
	bank, ok := n.targets[noteID]
	return bank, ok
}

// Redirected splits the overridden notes relative to bankID: into lists notes
// moved onto the bank account, away lists overridden notes booked elsewhere.
func (n *NoteTargets) Redirected(bankID int64) (into, away []int64) {
	if n == nil {
		return nil, nil
	}
	for note, bank := range n.targets {
		if bank == bankID {
			into = append(into, note)
		} else {
			away = append(away, note)
		}
	}
	sort.Slice(into, func(i, j int) bool { return into[i] < into[j] })
	sort.Slice(away, func(i, j int) bool { return away[i] < away[j] })
	return into, away
}
