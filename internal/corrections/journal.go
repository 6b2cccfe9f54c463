package corrections

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const journalFile = "corrections.jsonl"

// journal is an append-only JSON-lines log of correction records kept
// alongside the vector index. It is the source of truth for ListAll and
// makes the persistence directory self-contained: index plus journal fully
// describe every stored correction.
type journal struct {
	path string
	mu   sync.Mutex
}

func openJournal(dir string) (*journal, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return &journal{path: filepath.Join(dir, journalFile)}, nil
}

// append durably writes one record. Calls are serialized.
func (j *journal) append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}
	return f.Sync()
}

// snapshot re-reads the journal and returns a fresh, consistent copy of
// all records. A record that fails to decode indicates a corrupt journal
// and is surfaced, not skipped.
func (j *journal) snapshot() ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("corrupt journal entry: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return records, nil
}
