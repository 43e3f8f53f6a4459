package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/imagesof/relay/internal/domain"
)

// FileSinkRecord is the JSONL row written for one rejected forward.
type FileSinkRecord struct {
	ItemID      string    `json:"item_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Subreddit   string    `json:"subreddit"`
	Author      string    `json:"author"`
	Destination string    `json:"destination"`
	Error       string    `json:"error"`
	At          time.Time `json:"at"`
	WrittenAt   time.Time `json:"written_at"`
}

// FileSink appends rejected forwards to a JSONL file for later review.
type FileSink struct {
	mu   sync.Mutex
	path string
}

func NewFileSink(path string) (*FileSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

func (f *FileSink) Send(_ context.Context, failure domain.ForwardFailure) error {
	record := FileSinkRecord{
		ItemID:      failure.Item.ID,
		Title:       failure.Item.Title,
		URL:         failure.Item.URL,
		Subreddit:   failure.Item.Subreddit,
		Author:      failure.Item.Author,
		Destination: failure.Destination,
		At:          failure.At,
		WrittenAt:   time.Now().UTC(),
	}
	if failure.Err != nil {
		record.Error = failure.Err.Error()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}
