package main

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/fatih/color"
	"github.com/jcalabro/bitbloom"
	"github.com/tidwall/btree"
)

const (
	formatNative = "native"
	formatLegacy = "legacy"
)

// whitelist lists validation entries the filter reports as present although
// they were never added.
type whitelist struct {
	Data []string `json:"data"`
}

// manifest is written to PREFIX-bloom-spec.json.
type manifest struct {
	TotalEntries int     `json:"totalEntries"`
	ErrorRate    float64 `json:"errorRate"`
	SHA256       string  `json:"sha256"`
	Bits         uint64  `json:"bits"`
	Hashes       uint32  `json:"hashes"`
	Hash         string  `json:"hash"`
	Format       string  `json:"format"`
}

type result struct {
	bloomFile     string
	whitelistFile string
	manifestFile  string

	manifest       manifest
	falsePositives int
}

func generate(cfg config, log logger.Logger) (*result, error) {
	res := &result{
		bloomFile:     cfg.outputPrefix + "-bloom.bin",
		whitelistFile: cfg.outputPrefix + "-whitelist.json",
		manifestFile:  cfg.outputPrefix + "-bloom-spec.json",
	}

	log.Infof("generating filter from %s", cfg.inputFile)
	input, err := readEntries(cfg.inputFile)
	if err != nil {
		return nil, err
	}
	// The empty line still counts towards sizing but is never added.
	f, err := bitbloom.New(uint64(input.Len()), cfg.errorRate, bitbloom.WithHash(cfg.hash))
	if err != nil {
		return nil, fmt.Errorf("sizing filter for %d entries: %w", input.Len(), err)
	}
	input.Scan(func(entry string) bool {
		if entry != "" {
			f.AddString(entry)
		}
		return true
	})
	log.Debugf("filter: entries=%d bits=%d k=%d hash=%v", input.Len(), f.Cap(), f.K(), f.Hash())

	var buf bytes.Buffer
	format := formatNative
	if cfg.legacy {
		format = formatLegacy
		_, err = f.WriteLegacy(&buf)
	} else {
		_, err = f.WriteTo(&buf)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding filter: %w", err)
	}
	if err := os.WriteFile(res.bloomFile, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}

	log.Infof("generating whitelist from %s", cfg.validationFile)
	validation, err := readEntries(cfg.validationFile)
	if err != nil {
		return nil, err
	}
	wl := whitelist{Data: []string{}}
	validation.Scan(func(entry string) bool {
		if f.TestString(entry) && !input.Contains(entry) {
			wl.Data = append(wl.Data, entry)
		}
		return true
	})
	if err := writeJSON(res.whitelistFile, wl); err != nil {
		return nil, err
	}
	res.falsePositives = len(wl.Data)

	log.Infof("writing filter manifest")
	sum := sha256.Sum256(buf.Bytes())
	res.manifest = manifest{
		TotalEntries: input.Len(),
		ErrorRate:    cfg.errorRate,
		SHA256:       hex.EncodeToString(sum[:]),
		Bits:         f.Cap(),
		Hashes:       f.K(),
		Hash:         f.Hash().String(),
		Format:       format,
	}
	if err := writeJSON(res.manifestFile, res.manifest); err != nil {
		return nil, err
	}
	return res, nil
}

// readEntries returns the distinct lines of path in sorted order.
func readEntries(path string) (*btree.Set[string], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var set btree.Set[string]
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		set.Insert(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &set, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func printSummary(w io.Writer, cfg config, res *result) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	m := res.manifest
	green.Fprintf(w, "filter:    %s (%s, %d bits, k=%d, %s)\n", res.bloomFile, m.Format, m.Bits, m.Hashes, m.Hash)
	green.Fprintf(w, "manifest:  %s\n", res.manifestFile)
	fp := green
	if res.falsePositives > 0 {
		fp = yellow
	}
	fp.Fprintf(w, "whitelist: %s (%d false positives from %s)\n", res.whitelistFile, res.falsePositives, cfg.validationFile)
}
