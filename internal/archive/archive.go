// Package archive keeps audit copies of dispatched digests.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jwalitptl/notify-digest/internal/digest"
	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/pkg/messaging"
)

// SentTopic is the channel sent digests are announced on.
const SentTopic = "digest.sent"

type FileArchiver struct {
	dir string
}

// NewFileArchiver creates dir if needed.
func NewFileArchiver(dir string) (*FileArchiver, error) {
	if dir == "" {
		return nil, errors.New("archive directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileArchiver{dir: dir}, nil
}

// FileName is "<copy id>-<sent at, unix millis>.json".
func FileName(sent *model.SentCopy) string {
	return fmt.Sprintf("%s-%d.json", sent.ID, sent.SentAt.UnixMilli())
}

func (a *FileArchiver) ArchiveSentCopy(_ context.Context, sent *model.SentCopy) error {
	data, err := json.Marshal(sent)
	if err != nil {
		return fmt.Errorf("failed to marshal sent copy: %w", err)
	}
	path := filepath.Join(a.dir, FileName(sent))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// BrokerArchiver announces each sent digest so other services can react.
type BrokerArchiver struct {
	broker messaging.Broker
	topic  string
}

func NewBrokerArchiver(broker messaging.Broker) *BrokerArchiver {
	return &BrokerArchiver{broker: broker, topic: SentTopic}
}

// SentEvent is the payload published on SentTopic. The HTML body stays in
// the file archive.
type SentEvent struct {
	CopyID    string `json:"copy_id"`
	CycleID   string `json:"cycle_id"`
	UserID    string `json:"user_id"`
	Tier      string `json:"tier"`
	ItemCount int    `json:"item_count"`
	Subject   string `json:"subject"`
	SentAt    int64  `json:"sent_at"`
}

func NewSentEvent(sent *model.SentCopy) SentEvent {
	ev := SentEvent{
		CopyID:  sent.ID.String(),
		CycleID: sent.CycleID.String(),
		SentAt:  sent.SentAt.UnixMilli(),
	}
	if sent.Digest != nil {
		ev.UserID = sent.Digest.UserID.String()
		ev.Tier = string(sent.Digest.Tier)
		ev.ItemCount = sent.Digest.ItemCount
	}
	if sent.Message != nil {
		ev.Subject = sent.Message.Subject
	}
	return ev
}

func (a *BrokerArchiver) ArchiveSentCopy(ctx context.Context, sent *model.SentCopy) error {
	msg := messaging.NewMessage(a.topic, NewSentEvent(sent))
	if err := a.broker.Publish(ctx, a.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", a.topic, err)
	}
	return nil
}

// Multi fans a copy out to every archiver and joins their errors.
type Multi []digest.Archiver

func (m Multi) ArchiveSentCopy(ctx context.Context, sent *model.SentCopy) error {
	var errs []error
	for _, a := range m {
		if err := a.ArchiveSentCopy(ctx, sent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
