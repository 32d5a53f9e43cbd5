package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"honeytrap/internal/schema"
)

// Transcript is the archived object layout: the full session record plus
// archival metadata, stored as gzipped JSON.
type Transcript struct {
	Session    *schema.Session `json:"session"`
	ArchivedAt time.Time       `json:"archivedAt"`
	Version    string          `json:"version"`
}

// TranscriptArchiver writes finalized session transcripts to S3, one
// object per session keyed by date.
type TranscriptArchiver struct {
	client *Client
	logger *slog.Logger
}

// NewTranscriptArchiver creates a transcript archiver.
func NewTranscriptArchiver(client *Client, logger *slog.Logger) *TranscriptArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptArchiver{
		client: client,
		logger: logger.With("component", "transcript-archive"),
	}
}

// transcriptKey builds the object key: YYYY/MM/DD/<session-id>.json.gz
func transcriptKey(sessionID string, createdAt time.Time) string {
	return fmt.Sprintf("%s/%s.json.gz", createdAt.UTC().Format("2006/01/02"), sessionID)
}

// Archive uploads one session transcript. Safe to call more than once per
// session: the key is deterministic so a re-archive overwrites in place.
func (t *TranscriptArchiver) Archive(ctx context.Context, sess *schema.Session) (string, error) {
	transcript := Transcript{
		Session:    sess,
		ArchivedAt: time.Now().UTC(),
		Version:    schema.SchemaVersionCurrent,
	}

	raw, err := json.Marshal(transcript)
	if err != nil {
		return "", fmt.Errorf("s3: marshal transcript %s: %w", sess.ID, err)
	}

	compressed, err := gzipBytes(raw)
	if err != nil {
		return "", fmt.Errorf("s3: compress transcript %s: %w", sess.ID, err)
	}

	key := transcriptKey(sess.ID, sess.CreatedAt)
	location, err := t.client.Put(ctx, key, "application/gzip", compressed, map[string]string{
		"session-id":    sess.ID,
		"scam-type":     sess.ScamType,
		"message-count": strconv.Itoa(sess.MessageCount),
	})
	if err != nil {
		return "", err
	}

	t.logger.Info("transcript archived",
		"session_id", sess.ID,
		"key", key,
		"raw_bytes", len(raw),
		"compressed_bytes", len(compressed),
	)
	return location, nil
}

// Restore fetches and decodes an archived transcript.
func (t *TranscriptArchiver) Restore(ctx context.Context, sessionID string, createdAt time.Time) (*Transcript, error) {
	data, err := t.client.Get(ctx, transcriptKey(sessionID, createdAt))
	if err != nil {
		return nil, err
	}

	raw, err := gunzipBytes(data)
	if err != nil {
		return nil, fmt.Errorf("s3: decompress transcript %s: %w", sessionID, err)
	}

	var transcript Transcript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		return nil, fmt.Errorf("s3: decode transcript %s: %w", sessionID, err)
	}
	return &transcript, nil
}

// ListDay returns archived transcript keys for one UTC day.
func (t *TranscriptArchiver) ListDay(ctx context.Context, day time.Time) ([]string, error) {
	return t.client.List(ctx, day.UTC().Format("2006/01/02")+"/")
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
