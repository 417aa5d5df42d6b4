// Package integration provides integration testing utilities for hlsclip.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/grafov/m3u8"
)

// Instance is one running hlsclip server.
type Instance struct {
	ID       string
	HTTPPort int
	RaftAddr string
	Cmd      *exec.Cmd
	Cancel   context.CancelFunc
}

// URL returns the absolute URL of path on this instance.
func (i *Instance) URL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", i.HTTPPort, path)
}

// TestHarness manages hlsclip processes sharing one HLS directory.
type TestHarness struct {
	t         *testing.T
	binary    string
	hlsDir    string
	env       []string
	instances []*Instance
}

// NewTestHarness creates a harness with a source playlist of the given chunk
// durations written as output.m3u8, plus a stub .ts file per chunk.
func NewTestHarness(t *testing.T, durations ...float64) *TestHarness {
	t.Helper()

	h := &TestHarness{
		t:      t,
		binary: findBinary(t),
		hlsDir: t.TempDir(),
	}

	if err := os.WriteFile(filepath.Join(h.hlsDir, "output.m3u8"), []byte(createTestPlaylist(durations...)), 0o644); err != nil {
		t.Fatalf("failed to write test playlist: %v", err)
	}
	for i := range durations {
		name := fmt.Sprintf("output%d.ts", i)
		if err := os.WriteFile(filepath.Join(h.hlsDir, name), []byte("ts"), 0o644); err != nil {
			t.Fatalf("failed to write segment: %v", err)
		}
	}

	return h
}

// Setenv passes an extra HLSCLIP_ variable to instances started afterwards.
func (h *TestHarness) Setenv(key, value string) {
	h.env = append(h.env, key+"="+value)
}

// Start launches a single node with an in-memory store.
func (h *TestHarness) Start() *Instance {
	h.t.Helper()

	inst := h.launch("node1", nil)
	waitForServer(h.t, inst.URL("/health"), 10*time.Second)
	return inst
}

// StartCluster launches nodeCount Raft-replicated nodes and waits for a leader.
func (h *TestHarness) StartCluster(nodeCount int) []*Instance {
	h.t.Helper()

	peers := make([]string, nodeCount)
	for i := range peers {
		peers[i] = fmt.Sprintf("127.0.0.1:%d", findAvailablePort(h.t))
	}

	nodes := make([]*Instance, nodeCount)
	for i := range nodes {
		nodes[i] = h.launch(fmt.Sprintf("node%d", i+1), []string{
			"--cluster",
			"--raft-id", fmt.Sprintf("node%d", i+1),
			"--raft-bind", peers[i],
			"--raft-peers", strings.Join(peers, ","),
		})
		nodes[i].RaftAddr = peers[i]
	}

	for _, inst := range nodes {
		waitForServer(h.t, inst.URL("/health"), 15*time.Second)
	}
	if _, err := h.WaitForLeader(nodes, 10*time.Second); err != nil {
		h.t.Fatalf("leader election failed: %v", err)
	}

	h.t.Logf("Cluster started with %d nodes", nodeCount)
	return nodes
}

func (h *TestHarness) launch(id string, extra []string) *Instance {
	h.t.Helper()

	port := findAvailablePort(h.t)
	args := append([]string{
		"serve",
		"--env-file", filepath.Join(h.t.TempDir(), "none.env"),
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"--hls-dir", h.hlsDir,
		"--output-dir", h.t.TempDir(),
	}, extra...)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Env = append(os.Environ(), h.env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		h.t.Fatalf("failed to start %s: %v", id, err)
	}

	inst := &Instance{ID: id, HTTPPort: port, Cmd: cmd, Cancel: cancel}
	h.instances = append(h.instances, inst)
	h.t.Logf("Started %s (HTTP: %d)", id, port)
	return inst
}

// WaitForLeader waits until one of nodes reports itself leader.
func (h *TestHarness) WaitForLeader(nodes []*Instance, timeout time.Duration) (*Instance, error) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C
		if leader, err := h.GetLeader(nodes); err == nil {
			h.t.Logf("Leader elected: %s", leader.ID)
			return leader, nil
		}
	}
	return nil, fmt.Errorf("leader election timeout after %v", timeout)
}

// GetLeader returns the node reporting itself leader.
func (h *TestHarness) GetLeader(nodes []*Instance) (*Instance, error) {
	for _, inst := range nodes {
		status, err := h.ClusterStatus(inst)
		if err != nil {
			continue
		}
		if isLeader, ok := status["is_leader"].(bool); ok && isLeader {
			return inst, nil
		}
	}
	return nil, fmt.Errorf("no leader found")
}

// ClusterStatus fetches /cluster/status from inst.
func (h *TestHarness) ClusterStatus(inst *Instance) (map[string]any, error) {
	resp, err := http.Get(inst.URL("/cluster/status"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return status, nil
}

// Get fetches path from inst and returns the status code and body.
func (h *TestHarness) Get(inst *Instance, path string) (int, string) {
	h.t.Helper()

	resp, err := http.Get(inst.URL(path))
	if err != nil {
		h.t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read %s: %v", path, err)
	}
	return resp.StatusCode, string(body)
}

// PostJSON posts body to path on inst and returns the status code and response body.
func (h *TestHarness) PostJSON(inst *Instance, path string, body any) (int, string) {
	h.t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		h.t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(inst.URL(path), "application/json", bytes.NewReader(data))
	if err != nil {
		h.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read %s: %v", path, err)
	}
	return resp.StatusCode, string(out)
}

// Reconstruct publishes the source restricted to ranges given as [start, end] pairs.
func (h *TestHarness) Reconstruct(inst *Instance, ranges ...[2]float64) (int, string) {
	h.t.Helper()

	type rangeBody struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	}
	body := struct {
		Ranges []rangeBody `json:"ranges"`
	}{}
	for _, r := range ranges {
		body.Ranges = append(body.Ranges, rangeBody{Start: r[0], End: r[1]})
	}
	return h.PostJSON(inst, "/api/hls/reconstruct", body)
}

// Stop interrupts inst and waits for it to exit.
func (h *TestHarness) Stop(inst *Instance) {
	h.t.Helper()

	inst.Cancel()
	if err := inst.Cmd.Wait(); err != nil && !strings.Contains(err.Error(), "signal:") {
		h.t.Logf("%s exited: %v", inst.ID, err)
	}
	h.t.Logf("Stopped %s", inst.ID)
}

// Cleanup stops all running instances.
func (h *TestHarness) Cleanup() {
	for _, inst := range h.instances {
		inst.Cancel()
		_ = inst.Cmd.Wait()
	}
}

// findBinary locates a built hlsclip binary or skips the test.
func findBinary(t *testing.T) string {
	t.Helper()

	candidates := []string{
		"../../hlsclip", // From test/integration
		"./hlsclip",     // From project root
		"../hlsclip",    // From test directory
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			t.Logf("Found hlsclip binary at: %s", absPath)
			return absPath
		}
	}

	t.Skip("hlsclip binary not found. Run 'go build -o hlsclip ./cmd/hlsclip' first")
	return ""
}

// waitForServer waits for a server to become available.
func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		<-ticker.C

		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return
			}
		}
	}

	t.Fatalf("server at %s did not become ready within %v", url, timeout)
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// createTestPlaylist renders a closed media playlist with one chunk per duration.
func createTestPlaylist(durations ...float64) string {
	target := 1
	for _, d := range durations {
		if int(d+0.999) > target {
			target = int(d + 0.999)
		}
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n#EXT-X-MEDIA-SEQUENCE:0\n", target)
	for i, d := range durations {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\noutput%d.ts\n", d, i)
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// PlaylistSegment is a segment of a decoded media playlist.
type PlaylistSegment struct {
	URI           string
	Duration      float64
	Discontinuity bool
}

// ParsePlaylist decodes a media playlist and returns its segments and whether
// it is closed.
func ParsePlaylist(t *testing.T, content string) ([]PlaylistSegment, bool) {
	t.Helper()

	p, listType, err := m3u8.DecodeFrom(strings.NewReader(content), true)
	if err != nil {
		t.Fatalf("decode playlist: %v\n%s", err, content)
	}
	if listType != m3u8.MEDIA {
		t.Fatalf("expected a media playlist:\n%s", content)
	}
	mp := p.(*m3u8.MediaPlaylist)

	var segments []PlaylistSegment
	for _, s := range mp.Segments {
		if s == nil {
			continue
		}
		segments = append(segments, PlaylistSegment{
			URI:           s.URI,
			Duration:      s.Duration,
			Discontinuity: s.Discontinuity,
		})
	}
	return segments, mp.Closed
}

// WaitForCondition polls until a condition is met or timeout occurs.
func (h *TestHarness) WaitForCondition(condition func() bool, timeout time.Duration, description string) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for !condition() {
		<-ticker.C
		if time.Now().After(deadline) {
			h.t.Fatalf("timeout waiting for condition: %s", description)
		}
	}
}
