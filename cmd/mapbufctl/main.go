package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cespare/xxhash/v2"
	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mapbufr/mapbuffer/pkg/config"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/codec"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/metrics"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/mmapfile"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/remote"
	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/stats"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".stats"),
	readline.PcItem("BUILD"),
	readline.PcItem("GET"),
	readline.PcItem("CONTAINS"),
	readline.PcItem("ITER"),
	readline.PcItem("VALIDATE"),
	readline.PcItem("DIGEST"),
)

const helpText = `
mapbufctl - inspect and build mapbuffer files

Usage:
  mapbufctl [options] [buffer_path]  - Start with an optional buffer open

Options:
  -codec string       - Codec for BUILD (none, gzip, zstd) (default "none")
  -version int        - Format version for BUILD (0 or 1) (default 0)
  -strict             - Validate checksums eagerly on open
  -mmap               - Open the initial buffer path as a read-only memory map
  -s3 bucket/key      - Open the initial buffer from S3 instead of a local path
  -metrics-addr addr  - Serve Prometheus metrics for this session's stats.Collector at addr/metrics

Commands (interactive mode only):
  .help               - Show this help message
  .open PATH          - Open a buffer at PATH
  .close              - Close the current buffer
  .exit               - Exit the program
  .stats              - Show operation counts, latencies, and hit ratio for this session

  BUILD src.jsonl out.mbuf  - Build a buffer from newline-delimited {"key":N,"value":"..."} records
  GET key                   - Look up key (decimal uint64) in the open buffer
  CONTAINS key              - Report whether key is present
  ITER                      - Print every entry in ascending key order
  VALIDATE                  - Structurally validate the open buffer
  DIGEST key value          - Print the xxhash64 of value, useful for spot-checking BUILD input
`

type record struct {
	Key   uint64 `json:"key"`
	Value string `json:"value"`
}

func main() {
	codecFlag := flag.String("codec", "none", "codec for BUILD (none, gzip, zstd)")
	versionFlag := flag.Int("version", 0, "format version for BUILD (0 or 1)")
	strictFlag := flag.Bool("strict", false, "validate checksums eagerly on open")
	mmapFlag := flag.Bool("mmap", false, "open the initial buffer path as a read-only memory map")
	s3Flag := flag.String("s3", "", "open the initial buffer from S3 as bucket/key")
	metricsAddrFlag := flag.String("metrics-addr", "", "serve Prometheus metrics for this session's stats.Collector at addr/metrics")
	flag.Parse()

	fmt.Println("mapbufctl version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	collector := stats.NewCollector()

	if *metricsAddrFlag != "" {
		reg := prometheus.NewRegistry()
		if err := reg.Register(metrics.NewRecorder(collector)); err != nil {
			fmt.Fprintf(os.Stderr, "Error registering metrics: %s\n", err)
			os.Exit(1)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddrFlag, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server stopped: %s\n", err)
			}
		}()
		fmt.Printf("Serving metrics at http://%s/metrics\n", *metricsAddrFlag)
	}

	var reader *mapbuffer.Reader
	var bufPath string
	readerOpts := []mapbuffer.ReaderOption{mapbuffer.WithReaderStats(collector)}
	if *strictFlag {
		readerOpts = append(readerOpts, mapbuffer.WithStrict(true), mapbuffer.WithVerifyOnOpen(true))
	}

	switch {
	case *s3Flag != "":
		bufPath = *s3Flag
		var err error
		reader, err = openS3Buffer(*s3Flag, readerOpts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening buffer from S3: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Opened buffer at s3://%s (%d entries)\n", bufPath, reader.Len())
	case len(flag.Args()) > 0:
		bufPath = flag.Args()[0]
		var err error
		reader, err = openBuffer(bufPath, *mmapFlag, readerOpts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening buffer: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Opened buffer at %s (%d entries)\n", bufPath, reader.Len())
	}

	historyFile := filepath.Join(os.TempDir(), ".mapbufctl_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mapbufctl> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	buildCodec := codec.EncodeTag(*codecFlag)
	buildVersion := uint8(*versionFlag)

	for {
		prompt := "mapbufctl> "
		if bufPath != "" {
			prompt = fmt.Sprintf("mapbufctl:%s> ", bufPath)
		}
		rl.SetPrompt(prompt)

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		if strings.HasPrefix(cmd, ".") {
			switch strings.ToLower(cmd) {
			case ".help":
				fmt.Print(helpText)
			case ".open":
				if len(parts) < 2 {
					fmt.Println("Error: missing path argument")
					continue
				}
				if reader != nil {
					reader.Close()
				}
				bufPath = parts[1]
				reader, err = openBuffer(bufPath, *mmapFlag, readerOpts)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error opening buffer: %s\n", err)
					bufPath = ""
					continue
				}
				fmt.Printf("Opened buffer at %s (%d entries)\n", bufPath, reader.Len())
			case ".close":
				if reader == nil {
					fmt.Println("No buffer open")
					continue
				}
				reader.Close()
				reader = nil
				bufPath = ""
				fmt.Println("Buffer closed")
			case ".stats":
				printStats(collector, reader)
			case ".exit":
				if reader != nil {
					reader.Close()
				}
				fmt.Println("Goodbye!")
				return
			default:
				fmt.Printf("Unknown command: %s\n", cmd)
			}
			continue
		}

		switch cmd {
		case "BUILD":
			if len(parts) != 3 {
				fmt.Println("Usage: BUILD src.jsonl out.mbuf")
				continue
			}
			if err := runBuild(parts[1], parts[2], buildCodec, buildVersion, collector); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			} else {
				fmt.Printf("Wrote %s\n", parts[2])
			}

		case "GET":
			if reader == nil {
				fmt.Println("No buffer open")
				continue
			}
			if len(parts) != 2 {
				fmt.Println("Usage: GET key")
				continue
			}
			key, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				fmt.Printf("Bad key: %s\n", err)
				continue
			}
			value, err := reader.Get(key)
			if err != nil {
				fmt.Printf("(error) %s\n", err)
				continue
			}
			fmt.Printf("%s\n", value)

		case "CONTAINS":
			if reader == nil {
				fmt.Println("No buffer open")
				continue
			}
			if len(parts) != 2 {
				fmt.Println("Usage: CONTAINS key")
				continue
			}
			key, err := strconv.ParseUint(parts[1], 10, 64)
			if err != nil {
				fmt.Printf("Bad key: %s\n", err)
				continue
			}
			ok, err := reader.Contains(key)
			if err != nil {
				fmt.Printf("(error) %s\n", err)
				continue
			}
			fmt.Println(ok)

		case "ITER":
			if reader == nil {
				fmt.Println("No buffer open")
				continue
			}
			it, err := reader.Iter()
			if err != nil {
				fmt.Printf("(error) %s\n", err)
				continue
			}
			for it.Next() {
				fmt.Printf("%d\t%s\n", it.Key(), it.Value())
			}
			if it.Err() != nil {
				fmt.Printf("(error) %s\n", it.Err())
			}

		case "VALIDATE":
			if reader == nil {
				fmt.Println("No buffer open")
				continue
			}
			data, err := os.ReadFile(bufPath)
			if err != nil {
				fmt.Printf("(error) %s\n", err)
				continue
			}
			if err := mapbuffer.Validate(data, mapbuffer.ValidateOptions{Stats: collector}); err != nil {
				fmt.Printf("invalid: %s\n", err)
			} else {
				fmt.Println("valid")
			}

		case "DIGEST":
			if len(parts) < 3 {
				fmt.Println("Usage: DIGEST key value")
				continue
			}
			fmt.Printf("%016x\n", xxhash.Sum64String(strings.Join(parts[2:], " ")))

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}

// openBuffer opens the buffer at path. With useMmap, the file is memory
// mapped read-only and served via mmapfile.File instead of being loaded
// fully into memory, which matters once a buffer is larger than
// comfortably fits in the process's heap.
func openBuffer(path string, useMmap bool, opts []mapbuffer.ReaderOption) (*mapbuffer.Reader, error) {
	if useMmap {
		f, err := mmapfile.Open(path)
		if err != nil {
			return nil, err
		}
		return mapbuffer.OpenAt(f, f.Size(), opts...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return mapbuffer.Open(data, opts...)
}

// openS3Buffer opens the buffer stored at bucket/key in S3, fetching only
// the byte ranges each lookup or iteration step touches rather than
// downloading the whole object first.
func openS3Buffer(ref string, opts []mapbuffer.ReaderOption) (*mapbuffer.Reader, error) {
	bucket, key, ok := strings.Cut(ref, "/")
	if !ok {
		return nil, fmt.Errorf("invalid -s3 value %q, want bucket/key", ref)
	}
	sess, err := session.NewSession()
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	obj, err := remote.NewS3Object(context.Background(), sess, bucket, key)
	if err != nil {
		return nil, err
	}
	return mapbuffer.OpenAt(obj, obj.Size(), opts...)
}

// printStats reports operation counts, average latencies, and the
// hit/miss ratio the session's collector has observed so far, along with
// the currently open buffer's header fields if one is open.
func printStats(collector *stats.Collector, reader *mapbuffer.Reader) {
	if reader != nil {
		fmt.Printf("entries=%d version=%d codec=%s\n", reader.Len(), reader.Version(), reader.CodecTag())
	}
	for _, op := range []stats.Operation{stats.OpBuild, stats.OpGet, stats.OpContains, stats.OpIterate, stats.OpValidate} {
		snap := collector.Snapshot(op)
		if snap.Count == 0 {
			continue
		}
		fmt.Printf("%-8s count=%d avg=%s min=%s max=%s\n", op, snap.Count,
			time.Duration(snap.AvgNs), time.Duration(snap.MinNs), time.Duration(snap.MaxNs))
	}
	hits, misses := collector.HitsMisses()
	if total := hits + misses; total > 0 {
		fmt.Printf("lookups  hits=%d misses=%d ratio=%.2f\n", hits, misses, float64(hits)/float64(total))
	}
	read, built := collector.BytesReadBuilt()
	if read > 0 || built > 0 {
		fmt.Printf("bytes    read=%d built=%d\n", read, built)
	}
	for kind, count := range collector.Errors() {
		fmt.Printf("error    kind=%s count=%d\n", kind, count)
	}
}

// runBuild reads newline-delimited JSON records from srcPath and writes a
// buffer to dstPath.
func runBuild(srcPath, dstPath string, tag codec.Tag, version uint8, collector *stats.Collector) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var pairs mapbuffer.SliceSource
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("parsing %q: %w", line, err)
		}
		pairs = append(pairs, mapbuffer.Pair{Key: rec.Key, Value: []byte(rec.Value)})
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	cfg := config.NewDefaultConfig(filepath.Dir(dstPath))
	buf, err := mapbuffer.Build(pairs, mapbuffer.BuildOptions{
		Codec:       tag,
		Version:     version,
		Parallelism: cfg.BuildParallelism,
		Stats:       collector,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(dstPath, buf, 0644)
}
