// Package videoindex implements the router.VideoLister collaborator
// (video_list_json in the original, per spec.md §6): a catalog of
// streamable videos enriched with each user's resume position from
// internal/historystore — a feature the distilled spec names only as an
// external collaborator but original_source/src/app/db_handler.c's
// comments describe as the point of storing history at all ("이어보기"
// — resume playback).
package videoindex

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Video is one catalog entry, loaded from a manifest file.
type Video struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// entry is what ListJSON actually emits: a Video plus the caller's resume
// position, if any.
type entry struct {
	Video
	ResumeSeconds int `json:"resume_seconds"`
}

// PositionLookup is the subset of historystore.Store videoindex needs.
type PositionLookup interface {
	Position(userID, videoID int) (int, bool)
}

// Index serves the video catalog, read once at startup from a JSON
// manifest (data_dir/videos.json).
type Index struct {
	videos  []Video
	history PositionLookup
}

// Load reads the manifest at path and binds it to a history lookup.
func Load(path string, history PositionLookup) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{history: history}, nil
		}
		return nil, errors.Wrap(err, "videoindex: read manifest")
	}
	var videos []Video
	if err := json.Unmarshal(raw, &videos); err != nil {
		return nil, errors.Wrap(err, "videoindex: decode manifest")
	}
	return &Index{videos: videos, history: history}, nil
}

// ListJSON returns the full catalog as a JSON array, each entry annotated
// with userID's resume position (0 if never watched).
func (idx *Index) ListJSON(userID int) (string, error) {
	entries := make([]entry, 0, len(idx.videos))
	for _, v := range idx.videos {
		pos, _ := idx.history.Position(userID, v.ID)
		entries = append(entries, entry{Video: v, ResumeSeconds: pos})
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return "", errors.Wrap(err, "videoindex: encode")
	}
	return string(out), nil
}
