// Package cluster replicates published playlists across nodes with Raft.
package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/agleyzer/hlsclip/internal/store"
	"github.com/hashicorp/raft"
)

func init() {
	// Register types for gob encoding/decoding
	gob.Register(PublishCommand{})
	gob.Register(ResetCommand{})
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandPublish stores a playlist under a name.
	CommandPublish CommandType = 1
	// CommandReset replaces every stored playlist.
	CommandReset CommandType = 2
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// PublishCommand stores Content under Name. UpdatedAt is chosen by the
// submitting node so every replica records the same time.
type PublishCommand struct {
	Name      string
	Content   string
	UpdatedAt time.Time
}

// ResetCommand replaces the replicated state.
type ResetCommand struct {
	Playlists []store.Playlist
}

// PlaylistFSM implements raft.FSM over a store.Memory.
type PlaylistFSM struct {
	playlists *store.Memory
	logger    *slog.Logger
}

// NewPlaylistFSM creates an empty PlaylistFSM.
func NewPlaylistFSM(logger *slog.Logger) *PlaylistFSM {
	return &PlaylistFSM{
		playlists: store.NewMemory(),
		logger:    logger,
	}
}

// Apply applies a Raft log entry to the FSM. A successful publish returns the
// stored store.Playlist, failures return an error.
func (f *PlaylistFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	switch cmd.Type {
	case CommandPublish:
		return f.applyPublish(cmd.Data)
	case CommandReset:
		return f.applyReset(cmd.Data)
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

func (f *PlaylistFSM) applyPublish(data any) any {
	pub, ok := data.(PublishCommand)
	if !ok {
		return fmt.Errorf("invalid publish command data")
	}
	if pub.Name == "" {
		return fmt.Errorf("publish command without a name")
	}

	p := f.playlists.PutAt(pub.Name, pub.Content, pub.UpdatedAt)
	f.logger.Debug("published playlist", "name", p.Name, "version", p.Version, "bytes", len(p.Content))
	return p
}

func (f *PlaylistFSM) applyReset(data any) any {
	reset, ok := data.(ResetCommand)
	if !ok {
		return fmt.Errorf("invalid reset command data")
	}

	f.playlists.Restore(reset.Playlists)
	f.logger.Info("reset FSM state", "playlists", len(reset.Playlists))
	return nil
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *PlaylistFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{playlists: f.playlists.Snapshot()}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *PlaylistFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var playlists []store.Playlist
	if err := gob.NewDecoder(snapshot).Decode(&playlists); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.playlists.Restore(playlists)
	f.logger.Info("restored FSM state from snapshot", "playlists", len(playlists))
	return nil
}

// Get returns the locally applied playlist stored under name.
func (f *PlaylistFSM) Get(name string) (store.Playlist, error) {
	return f.playlists.Get(name)
}

// Names lists the locally applied playlist names.
func (f *PlaylistFSM) Names() []string {
	return f.playlists.Names()
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	playlists []store.Playlist
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.playlists); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
