// Command bloomgen builds a bloom filter from a file of newline separated
// entries and writes it alongside a whitelist of known false positives and a
// JSON manifest describing the filter.
//
// Usage:
//
//	bloomgen [flags] INPUT_FILE VALIDATION_FILE OUTPUT_PREFIX
//
// Outputs are OUTPUT_PREFIX-bloom.bin, OUTPUT_PREFIX-whitelist.json and
// OUTPUT_PREFIX-bloom-spec.json.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/jcalabro/bitbloom"
)

const defaultErrorRate = 0.0001

var errUsage = errors.New("usage: bloomgen [flags] INPUT_FILE VALIDATION_FILE OUTPUT_PREFIX")

type config struct {
	inputFile      string
	validationFile string
	outputPrefix   string

	errorRate float64
	hash      bitbloom.Hash
	legacy    bool
	logLevel  string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "bloomgen:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := parseArgs(args)
	if err != nil {
		return err
	}

	logger.New(cfg.logLevel)
	defer logger.OnExit()
	log := logger.Sugar.WithServiceName("bloomgen")

	res, err := generate(cfg, log)
	if err != nil {
		return err
	}
	printSummary(stdout, cfg, res)
	return nil
}

func parseArgs(args []string) (config, error) {
	fs := flag.NewFlagSet("bloomgen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	cfg := config{}
	fs.Float64Var(&cfg.errorRate, "fp", defaultErrorRate, "target false positive rate")
	hashName := fs.String("hash", bitbloom.HashXXH3.String(), "hash kind: xxh3, murmur3, xxhash or legacy")
	fs.BoolVar(&cfg.legacy, "legacy", false, "write the packed legacy format (forces -hash=legacy)")
	fs.StringVar(&cfg.logLevel, "log-level", "INFO", "log level")

	if err := fs.Parse(args); err != nil {
		return config{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 3 {
		return config{}, errUsage
	}
	cfg.inputFile, cfg.validationFile, cfg.outputPrefix = fs.Arg(0), fs.Arg(1), fs.Arg(2)

	h, err := bitbloom.ParseHash(*hashName)
	if err != nil {
		return config{}, err
	}
	cfg.hash = h
	if cfg.legacy {
		cfg.hash = bitbloom.HashLegacy
	}
	return cfg, nil
}
