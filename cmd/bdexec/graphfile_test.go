package main

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePipeline = `{
  "clocks": [{"name": "main", "t": 0.05}],
  "blocks": [
    {"id": "wave", "type": "waveform", "clock": "main", "config": {"wave": "sine", "freq": 1, "amplitude": 1}},
    {"id": "gain", "type": "gain", "config": {"K": 2}},
    {"id": "sink", "type": "record", "config": {"scope": "out"}}
  ],
  "wires": [
    {"from": "wave.0", "to": "gain.0"},
    {"from": "gain.0", "to": "sink.0"}
  ]
}`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp graph file: %v", err)
	}
	return path
}

func TestLoadGraphFileCompiles(t *testing.T) {
	path := writeTemp(t, samplePipeline)
	g, err := loadGraphFile(path)
	if err != nil {
		t.Fatalf("loadGraphFile: %v", err)
	}
	if !g.Compiled() {
		t.Fatal("expected graph to be compiled")
	}
	if len(g.Blocks()) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(g.Blocks()))
	}
}

func TestLoadGraphFileUnknownBlockType(t *testing.T) {
	path := writeTemp(t, `{"clocks":[],"blocks":[{"id":"x","type":"nonexistent","config":{}}],"wires":[]}`)
	if _, err := loadGraphFile(path); err == nil {
		t.Fatal("expected error for unregistered block type")
	}
}

func TestLoadGraphFileMissingClockReference(t *testing.T) {
	path := writeTemp(t, `{"clocks":[],"blocks":[{"id":"wave","type":"waveform","clock":"nope","config":{}}],"wires":[]}`)
	if _, err := loadGraphFile(path); err == nil {
		t.Fatal("expected error for unknown clock reference")
	}
}

func TestLoadGraphFileUnconnectedInput(t *testing.T) {
	path := writeTemp(t, `{
		"clocks": [{"name": "main", "t": 0.05}],
		"blocks": [
			{"id": "wave", "type": "waveform", "clock": "main", "config": {}},
			{"id": "gain", "type": "gain", "config": {}}
		],
		"wires": []
	}`)
	if _, err := loadGraphFile(path); err == nil {
		t.Fatal("expected compile error for unconnected gain input")
	}
}

func TestLoadGraphFileBadPortReference(t *testing.T) {
	path := writeTemp(t, `{
		"clocks": [{"name": "main", "t": 0.05}],
		"blocks": [
			{"id": "wave", "type": "waveform", "clock": "main", "config": {}},
			{"id": "gain", "type": "gain", "config": {}}
		],
		"wires": [{"from": "wave.0", "to": "gain"}]
	}`)
	if _, err := loadGraphFile(path); err == nil {
		t.Fatal("expected error for malformed port reference")
	}
}
