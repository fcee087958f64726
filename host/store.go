package host

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gonzalop/mqttengine/engine"
	"github.com/gonzalop/mqttengine/packet"
)

// FileStore persists a Connection's retransmission store to disk as one
// JSON file per packet id, the way the teacher's FileStore persists
// pending publishes: a directory per client id, synchronous
// read/write/remove, no batching.
type FileStore struct {
	dir         string
	clientID    string
	permissions os.FileMode
}

// persistedEntry is the on-disk shape of one engine.StoreEntry.
type persistedEntry struct {
	ID       uint16            `json:"id"`
	IsPubrel bool              `json:"is_pubrel"`
	Publish  *persistedPublish `json:"publish,omitempty"`
}

type persistedPublish struct {
	QoS        uint8          `json:"qos"`
	Retain     bool           `json:"retain"`
	Topic      string         `json:"topic"`
	PacketID   uint16         `json:"packet_id"`
	Payload    []byte         `json:"payload"`
	Version    packet.Version `json:"version"`
	TopicAlias uint16         `json:"topic_alias,omitempty"`
}

// NewFileStore creates a file-backed store rooted at baseDir/clientID,
// matching the teacher's NewFileStore validation (reject path traversal
// in clientID) and default permissions.
func NewFileStore(baseDir, clientID string) (*FileStore, error) {
	if clientID == "" {
		return nil, fmt.Errorf("host: clientID cannot be empty")
	}
	if strings.Contains(clientID, "..") || strings.Contains(clientID, string(filepath.Separator)) {
		return nil, fmt.Errorf("host: clientID contains invalid characters")
	}
	dir := filepath.Join(baseDir, clientID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("host: create store directory: %w", err)
	}
	return &FileStore{dir: dir, clientID: clientID, permissions: 0644}, nil
}

// Save writes every entry to its own file, overwriting any prior snapshot.
func (f *FileStore) Save(entries []engine.StoreEntry) error {
	if err := f.Clear(); err != nil {
		return err
	}
	for _, e := range entries {
		pe := persistedEntry{ID: e.ID, IsPubrel: e.IsPubrel}
		if e.Publish != nil {
			pp := &persistedPublish{
				QoS: e.Publish.QoS, Retain: e.Publish.Retain, Topic: e.Publish.Topic,
				PacketID: e.Publish.PacketID, Payload: e.Publish.Payload, Version: e.Publish.Version,
			}
			if e.Publish.Properties != nil {
				pp.TopicAlias = e.Publish.Properties.TopicAlias
			}
			pe.Publish = pp
		}
		data, err := json.Marshal(pe)
		if err != nil {
			return fmt.Errorf("host: marshal store entry %d: %w", e.ID, err)
		}
		path := filepath.Join(f.dir, fmt.Sprintf("entry_%d.json", e.ID))
		if err := os.WriteFile(path, data, f.permissions); err != nil {
			return fmt.Errorf("host: write store entry %d: %w", e.ID, err)
		}
	}
	return nil
}

// Load reads back every persisted entry, skipping any file that fails to
// parse (matching the teacher's best-effort LoadPendingPublishes).
func (f *FileStore) Load() ([]engine.StoreEntry, error) {
	files, err := filepath.Glob(filepath.Join(f.dir, "entry_*.json"))
	if err != nil {
		return nil, fmt.Errorf("host: list store entries: %w", err)
	}
	var out []engine.StoreEntry
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var pe persistedEntry
		if err := json.Unmarshal(data, &pe); err != nil {
			continue
		}
		entry := engine.StoreEntry{ID: pe.ID, IsPubrel: pe.IsPubrel}
		if pe.Publish != nil {
			pub := &packet.Publish{
				QoS: pe.Publish.QoS, Retain: pe.Publish.Retain, Topic: pe.Publish.Topic,
				PacketID: pe.Publish.PacketID, Payload: pe.Publish.Payload, Version: pe.Publish.Version,
			}
			if pe.Publish.TopicAlias != 0 {
				pub.Properties = &packet.Properties{}
				pub.Properties.SetTopicAlias(pe.Publish.TopicAlias)
			}
			entry.Publish = pub
		}
		out = append(out, entry)
	}
	return out, nil
}

// Clear removes every persisted entry.
func (f *FileStore) Clear() error {
	files, err := filepath.Glob(filepath.Join(f.dir, "entry_*.json"))
	if err != nil {
		return fmt.Errorf("host: list store entries: %w", err)
	}
	for _, file := range files {
		os.Remove(file)
	}
	return nil
}
