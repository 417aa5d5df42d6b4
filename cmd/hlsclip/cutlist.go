package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agleyzer/hlsclip/internal/selection"
	"gopkg.in/yaml.v3"
)

// cutList is the YAML file format listing ranges to keep:
//
//	source: https://example.com/vod/playlist.m3u8
//	ranges:
//	  - start: 5
//	    end: 11
//	  - start: "00:01:30"
//	    end: "00:02:00.5"
type cutList struct {
	Source string     `yaml:"source,omitempty"`
	Ranges []cutRange `yaml:"ranges"`
}

type cutRange struct {
	Start seconds `yaml:"start"`
	End   seconds `yaml:"end"`
}

// seconds accepts plain numbers or [hh:]mm:ss[.fff] timestamps.
type seconds float64

func (s *seconds) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: time must be a scalar", value.Line)
	}
	v, err := parseTimestamp(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = seconds(v)
	return nil
}

// timeRanges converts the cut list into selection ranges.
func (c cutList) timeRanges() []selection.TimeRange {
	out := make([]selection.TimeRange, len(c.Ranges))
	for i, r := range c.Ranges {
		out[i] = selection.NewRange(float64(r.Start), float64(r.End))
	}
	return out
}

func loadCutList(path string) (cutList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cutList{}, fmt.Errorf("read cut list: %w", err)
	}

	var cl cutList
	if err := yaml.Unmarshal(data, &cl); err != nil {
		return cutList{}, fmt.Errorf("parse cut list %s: %w", path, err)
	}
	for i, r := range cl.Ranges {
		if r.Start < 0 || r.End < 0 {
			return cutList{}, fmt.Errorf("cut list %s: range %d has a negative time", path, i)
		}
	}
	return cl, nil
}

// parseTimestamp parses "12.5", "01:30" or "1:02:03.250" into seconds.
func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}

	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		if i < len(parts)-1 && (v != float64(int64(v)) || v < 0) {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("invalid time %q: field out of range", s)
		}
		total = total*60 + v
	}
	return total, nil
}

// parseRangeFlag parses "START-END" or "START,END" (each a timestamp).
func parseRangeFlag(s string) (cutRange, error) {
	sep := strings.LastIndexAny(s, "-,")
	if sep <= 0 || sep == len(s)-1 {
		return cutRange{}, fmt.Errorf("invalid range %q, want START-END", s)
	}

	start, err := parseTimestamp(s[:sep])
	if err != nil {
		return cutRange{}, err
	}
	end, err := parseTimestamp(s[sep+1:])
	if err != nil {
		return cutRange{}, err
	}
	return cutRange{Start: seconds(start), End: seconds(end)}, nil
}

// collectRanges merges the ranges of an optional cut list file with --range
// flags and any ranges built from other flags.
func collectRanges(cutsPath string, flags []string, extra ...cutRange) (cutList, error) {
	var cl cutList
	if cutsPath != "" {
		var err error
		if cl, err = loadCutList(cutsPath); err != nil {
			return cutList{}, err
		}
	}

	for _, f := range flags {
		r, err := parseRangeFlag(f)
		if err != nil {
			return cutList{}, err
		}
		cl.Ranges = append(cl.Ranges, r)
	}
	cl.Ranges = append(cl.Ranges, extra...)

	if len(cl.Ranges) == 0 {
		return cutList{}, fmt.Errorf("no ranges given; use --cuts or --range")
	}
	return cl, nil
}
