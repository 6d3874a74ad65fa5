package archive

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notify-digest/internal/digest"
	"github.com/jwalitptl/notify-digest/internal/model"
	"github.com/jwalitptl/notify-digest/pkg/messaging"
)

func sampleCopy() *model.SentCopy {
	user := uuid.New()
	return &model.SentCopy{
		ID:      uuid.New(),
		CycleID: uuid.New(),
		Digest: &model.Digest{
			UserID:    user,
			Tier:      model.TierDaily,
			Subject:   "2 unread notifications on Notify",
			ItemCount: 2,
		},
		Message: &model.Message{To: "fan@example.com", Subject: "2 unread notifications on Notify", HTML: "<p/>"},
		SentAt:  time.Date(2024, 3, 3, 0, 30, 0, 0, time.UTC),
	}
}

func TestFileArchiver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sent")
	a, err := NewFileArchiver(dir)
	require.NoError(t, err)

	sent := sampleCopy()
	require.NoError(t, a.ArchiveSentCopy(context.Background(), sent))

	name := FileName(sent)
	assert.Equal(t, sent.ID.String()+"-1709425800000.json", name)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var got model.SentCopy
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, sent.Message.To, got.Message.To)
	assert.Equal(t, sent.Digest.ItemCount, got.Digest.ItemCount)
}

func TestNewFileArchiverRequiresDir(t *testing.T) {
	_, err := NewFileArchiver("")
	assert.Error(t, err)
}

type recordingBroker struct {
	channel string
	message interface{}
	err     error
}

func (b *recordingBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.channel = channel
	b.message = message
	return b.err
}

func (b *recordingBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBroker) Close() error { return nil }

func TestBrokerArchiver(t *testing.T) {
	broker := &recordingBroker{}
	sent := sampleCopy()

	require.NoError(t, NewBrokerArchiver(broker).ArchiveSentCopy(context.Background(), sent))

	assert.Equal(t, SentTopic, broker.channel)
	msg, ok := broker.message.(messaging.Message)
	require.True(t, ok)
	assert.Equal(t, SentTopic, msg.Type)
	assert.NotEmpty(t, msg.ID)
	ev, ok := msg.Payload.(SentEvent)
	require.True(t, ok)
	assert.Equal(t, sent.Digest.UserID.String(), ev.UserID)
	assert.Equal(t, "daily", ev.Tier)
	assert.Equal(t, 2, ev.ItemCount)
	assert.Equal(t, sent.SentAt.UnixMilli(), ev.SentAt)
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("redis down")
	file, err := NewFileArchiver(t.TempDir())
	require.NoError(t, err)

	err = Multi{file, NewBrokerArchiver(&recordingBroker{err: boom})}.ArchiveSentCopy(context.Background(), sampleCopy())

	assert.ErrorIs(t, err, boom)
	entries, readErr := os.ReadDir(file.dir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

var _ digest.Archiver = Multi{}
