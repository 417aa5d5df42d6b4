package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agleyzer/hlsclip/internal/merge"
	"github.com/agleyzer/hlsclip/internal/parser"
	"github.com/agleyzer/hlsclip/internal/playlist"
	"github.com/agleyzer/hlsclip/internal/segment"
	"github.com/agleyzer/hlsclip/internal/selection"
	"github.com/agleyzer/hlsclip/internal/store"
	"github.com/go-chi/chi/v5"
)

const (
	mpegURL        = "application/vnd.apple.mpegurl"
	maxRequestBody = 4 << 20
)

var errBadRequest = errors.New("bad request")

type rangeRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type rangesRequest struct {
	Ranges []rangeRequest `json:"ranges"`
}

// validate rejects ranges that start or end before the timeline origin.
func (r rangesRequest) validate() error {
	for i, rr := range r.Ranges {
		if rr.Start < 0 || rr.End < 0 {
			return fmt.Errorf("%w: range %d has a negative time", errBadRequest, i)
		}
	}
	return nil
}

func (r rangesRequest) timeRanges() []selection.TimeRange {
	out := make([]selection.TimeRange, len(r.Ranges))
	for i, rr := range r.Ranges {
		out[i] = selection.NewRange(rr.Start, rr.End)
	}
	return out
}

type updateRequest struct {
	M3U8Content string `json:"m3u8Content"`
}

type extractRequest struct {
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

type chunkResponse struct {
	Index    int     `json:"index"`
	URI      string  `json:"uri"`
	Duration float64 `json:"duration"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}

type indexResponse struct {
	Total          float64         `json:"total"`
	TargetDuration int             `json:"targetDuration"`
	Chunks         []chunkResponse `json:"chunks"`
}

type reconstructResponse struct {
	StreamURL   string  `json:"streamUrl"`
	M3U8Content string  `json:"m3u8Content"`
	Chunks      int     `json:"chunks"`
	Duration    float64 `json:"duration"`
	Version     uint64  `json:"version"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "ok",
		"published": s.store.Names(),
	}

	s.mu.RLock()
	if s.index != nil {
		health["chunks"] = s.index.Len()
		health["duration"] = s.index.Total()
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, health)
}

// clusterNode is implemented by replicated stores.
type clusterNode interface {
	NodeID() string
	IsLeader() bool
	LeaderAddr() string
	State() string
	Peers() []string
}

// handleClusterStatus reports the Raft role of this node.
func (s *Server) handleClusterStatus(w http.ResponseWriter, r *http.Request) {
	node, ok := s.store.(clusterNode)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   true,
		"node_id":   node.NodeID(),
		"is_leader": node.IsLeader(),
		"leader":    node.LeaderAddr(),
		"state":     node.State(),
		"peers":     node.Peers(),
	})
}

// handleSourcePlaylist serves the source playlist file.
func (s *Server) handleSourcePlaylist(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, s.cfg.HLSDir, s.cfg.Playlist, "")
}

// handleIndex serves the parsed segment index of the source playlist.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := s.sourceIndex()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := indexResponse{
		Total:          idx.Total(),
		TargetDuration: idx.TargetDuration(),
		Chunks:         make([]chunkResponse, 0, idx.Len()),
	}
	for _, c := range idx.Chunks() {
		resp.Chunks = append(resp.Chunks, chunkResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVideoStream lists the segment files in modification order.
func (s *Server) handleVideoStream(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.HLSDir)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read hls dir: %w", err))
		return
	}

	type file struct {
		name string
		mod  int64
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".ts") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{name: e.Name(), mod: info.ModTime().UnixNano()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].mod < files[j].mod })

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	writeJSON(w, http.StatusOK, names)
}

// handleUpdate validates and publishes a client-built playlist.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := parser.Build(req.M3U8Content); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.store.Put(PublishedName, req.M3U8Content)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("publish playlist: %w", err))
		return
	}

	s.logger.Info("published playlist", "name", p.Name, "version", p.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"streamUrl": s.publishedURL(r),
		"version":   p.Version,
	})
}

// handleReconstruct rebuilds the source playlist restricted to the requested
// ranges and publishes the result.
func (s *Server) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	var req rangesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	idx, err := s.sourceIndex()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec := playlist.Build(idx, req.timeRanges())
	content, err := rec.Encode()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("encode playlist: %w", err))
		return
	}

	p, err := s.store.Put(PublishedName, content)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("publish playlist: %w", err))
		return
	}

	s.logger.Info("reconstructed playlist",
		"ranges", len(req.Ranges),
		"chunks", rec.Len(),
		"duration", rec.Duration(),
		"version", p.Version)

	writeJSON(w, http.StatusOK, reconstructResponse{
		StreamURL:   s.publishedURL(r),
		M3U8Content: content,
		Chunks:      rec.Len(),
		Duration:    rec.Duration(),
		Version:     p.Version,
	})
}

// handleListPublished lists the published playlist names.
func (s *Server) handleListPublished(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Names())
}

// handlePublished serves the published playlist.
func (s *Server) handlePublished(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Get(PublishedName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mpegURL)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, p.Content)
}

// handleMerge merges the requested ranges and returns the file as an attachment.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req rangesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	artifact, err := s.runMerge(r.Context(), req.timeRanges())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="merged_video.mp4"`)
	http.ServeFile(w, r, artifact.Path)
}

// handleExtract cuts one interval and returns a download link.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.StartTime < 0 || req.Duration <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: startTime must be >= 0 and duration > 0", errBadRequest))
		return
	}

	ranges := []selection.TimeRange{selection.NewRange(req.StartTime, req.StartTime+req.Duration)}
	artifact, err := s.runMerge(r.Context(), ranges)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"downloadUrl": "/api/output/" + filepath.Base(artifact.Path),
	})
}

// handleOutput serves a merged file for download.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.serveFile(w, r, s.cfg.OutputDir, name, name)
}

// handleSegment serves segment files next to the source playlist.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, s.cfg.HLSDir, chi.URLParam(r, "filename"), "")
}

// runMerge clamps ranges to the source timeline and submits a merge job
// bounded by MergeTimeout. The job is abandoned when the client goes away.
func (s *Server) runMerge(ctx context.Context, ranges []selection.TimeRange) (merge.Artifact, error) {
	idx, err := s.sourceIndex()
	if err != nil {
		return merge.Artifact{}, err
	}
	ranges = clampRanges(ranges, idx.Total())

	if s.cfg.MergeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MergeTimeout)
		defer cancel()
	}

	job := s.merger.Submit(ctx, s.cfg.SourceURL, ranges)
	artifact, err := job.Wait(ctx)
	if err != nil {
		job.Cancel()
		return merge.Artifact{}, err
	}
	return artifact, nil
}

// clampRanges limits ranges to [0, total] and drops those left without width.
func clampRanges(ranges []selection.TimeRange, total float64) []selection.TimeRange {
	out := make([]selection.TimeRange, 0, len(ranges))
	for _, r := range ranges {
		r.Start = math.Max(0, math.Min(r.Start, total))
		r.End = math.Max(0, math.Min(r.End, total))
		if r.End > r.Start {
			out = append(out, r)
		}
	}
	return out
}

// sourceIndex returns the parsed source playlist, reparsing it only when the
// file's size or modification time changed.
func (s *Server) sourceIndex() (*segment.Index, error) {
	path := filepath.Join(s.cfg.HLSDir, s.cfg.Playlist)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source playlist: %w", err)
	}

	s.mu.RLock()
	idx := s.index
	fresh := idx != nil && info.ModTime().Equal(s.indexMod) && info.Size() == s.indexLen
	s.mu.RUnlock()
	if fresh {
		return idx, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source playlist: %w", err)
	}
	defer f.Close()

	idx, err = parser.BuildFrom(f)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.index = idx
	s.indexMod = info.ModTime()
	s.indexLen = info.Size()
	s.mu.Unlock()

	s.logger.Info("loaded source playlist", "path", path, "chunks", idx.Len(), "duration", idx.Total())
	return idx, nil
}

// serveFile serves dir/name. A non-empty attachment name adds a
// Content-Disposition header.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, dir, name, attachment string) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		s.writeError(w, r, fmt.Errorf("%w: invalid file name %q", errBadRequest, name))
		return
	}

	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		s.writeError(w, r, fmt.Errorf("%s: %w", name, os.ErrNotExist))
		return
	}

	switch filepath.Ext(name) {
	case ".m3u8":
		w.Header().Set("Content-Type", mpegURL)
		w.Header().Set("Cache-Control", "no-cache")
	case ".ts":
		w.Header().Set("Content-Type", "video/mp2t")
	}
	if attachment != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment))
	}

	http.ServeFile(w, r, path)
}

func (s *Server) publishedURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/api/%s", scheme, r.Host, PublishedName)
}

// writeError maps err onto a status code and writes a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	title := "internal error"
	detail := err.Error()

	var parseErr *parser.ParseError
	var rangeErr *merge.InvalidRangeError
	var collabErr *merge.CollaboratorFailure

	switch {
	case errors.As(err, &parseErr):
		status = http.StatusBadRequest
		title = "invalid playlist"
	case errors.Is(err, errBadRequest), errors.Is(err, merge.ErrEmptyRequest):
		status = http.StatusBadRequest
		title = "bad request"
	case errors.Is(err, store.ErrNotFound), errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
		title = "not found"
	case errors.Is(err, store.ErrNotLeader):
		status = http.StatusServiceUnavailable
		title = "not the leader"
	case errors.As(err, &rangeErr):
		title = "invalid range"
	case errors.As(err, &collabErr):
		status = http.StatusBadGateway
		title = "operation failed"
		detail = collabErr.Cause.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		title = "operation timed out"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	writeJSON(w, status, errorResponse{Error: title, Detail: detail})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
