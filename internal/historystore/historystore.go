// Package historystore implements the router.HistoryUpdater collaborator
// (db_update_history in the original C, per history_handler.c), JSON-file
// backed in place of the original's SQLite table.
package historystore

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
)

type record struct {
	UserID          int `json:"user_id"`
	VideoID         int `json:"video_id"`
	PositionSeconds int `json:"position_seconds"`
}

// Store is a JSON-file-backed (user_id, video_id) -> last-watched-position
// table. One record per pair; a later update overwrites the prior one,
// mirroring the original's INSERT-OR-UPDATE semantics.
type Store struct {
	mu   sync.Mutex
	path string
	data map[[2]int]int
}

// New loads (or initializes) a history store from path.
func New(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[[2]int]int)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrap(err, "historystore: read")
	}
	var records []record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, errors.Wrap(err, "historystore: decode")
	}
	for _, r := range records {
		s.data[[2]int{r.UserID, r.VideoID}] = r.PositionSeconds
	}
	return s, nil
}

// UpdateHistory records userID's position in videoID, overwriting any
// prior entry, and persists synchronously (no write-behind — spec.md §9
// Open Question 2, decided to ack only after the write lands).
func (s *Store) UpdateHistory(userID, videoID, positionSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[[2]int{userID, videoID}] = positionSeconds

	records := make([]record, 0, len(s.data))
	for k, pos := range s.data {
		records = append(records, record{UserID: k[0], VideoID: k[1], PositionSeconds: pos})
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "historystore: encode")
	}
	return errors.Wrap(os.WriteFile(s.path, raw, 0o600), "historystore: write")
}

// Position returns userID's last recorded position in videoID, if any.
func (s *Store) Position(userID, videoID int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.data[[2]int{userID, videoID}]
	return pos, ok
}
