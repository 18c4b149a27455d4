// Command jstzd is the kernel's rollup-invoked entrypoint: one process
// invocation processes one level's worth of inbox messages against the
// durable store and flushes whatever outbox messages resulted.
//
// The real rollup host supplies read_input/write_output/store_*/
// reveal_preimage as WASM imports; this sandbox build stands in for that
// host with internal/host.Memory, reading the level's messages as
// newline-delimited hex from a file (or stdin) so the dispatch pipeline
// can be exercised end to end without a PVM.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jstz-dev/jstz/internal/dispatch"
	"github.com/jstz-dev/jstz/internal/host"
	"github.com/jstz-dev/jstz/internal/inbox"
	"github.com/jstz-dev/jstz/internal/kv"
	"github.com/jstz-dev/jstz/internal/metrics"
	"github.com/jstz-dev/jstz/internal/outbox"
	"github.com/jstz-dev/jstz/internal/storage"
	"github.com/jstz-dev/jstz/pkg/config"
	"github.com/jstz-dev/jstz/pkg/logger"
)

func main() {
	levelFile := flag.String("level", "-", "path to newline-delimited hex inbox messages for this level ('-' for stdin)")
	rollupAddr := flag.String("rollup-address", "", "hex-encoded 20-byte rollup address this kernel instance answers to")
	ticketerCreator := flag.String("ticketer-creator", "", "hex-encoded 20-byte L1 address authorised to mint native deposits")
	ticketerID := flag.Uint64("ticketer-id", 0, "ticket ID the configured ticketer mints")
	injectorKey := flag.String("injector-key", "", "hex-encoded SEC1-compressed public key authorised to submit RevealLargePayload")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithField("error", err).Error("metrics server stopped")
			}
		}()
	}

	rollupAddress, err := parseHex20(*rollupAddr)
	if err != nil {
		log.WithField("error", err).Fatal("invalid rollup address")
	}

	mem := host.NewMemory(hex.EncodeToString(rollupAddress[:]), 100)
	store := storage.New(mem)

	creator := firstNonEmpty(*ticketerCreator, cfg.Storage.Ticketer)
	injector := firstNonEmpty(*injectorKey, cfg.Storage.Injector)
	if err := bootstrap(store, creator, *ticketerID, injector); err != nil {
		log.WithField("error", err).Fatal("bootstrap ticketer/injector")
	}

	ticketer, err := readTicketer(store)
	if err != nil {
		log.WithField("error", err).Fatal("read ticketer configuration")
	}

	lines, err := readLines(*levelFile)
	if err != nil {
		log.WithField("error", err).Fatal("read level input")
	}
	for i, payload := range lines {
		mem.QueueInput(0, uint32(i), payload)
	}

	persistent := outbox.New(store)
	if err := persistent.SetMax(uint64(cfg.Outbox.Max)); err != nil {
		log.WithField("error", err).Fatal("set outbox capacity")
	}
	snapshot := &outbox.SnapshotQueue{}
	d := dispatch.New(store, snapshot, cfg.Runtime.DefaultGasLimit)

	parseLog := func(msg string) { log.WithField("component", "inbox").Debug(msg) }

	var processed, dropped int
	for {
		in, ok, err := mem.ReadInput()
		if err != nil {
			log.WithField("error", err).Fatal("read input")
		}
		if !ok {
			break
		}
		parsed, ok := inbox.Parse(parseLog, in, ticketer, rollupAddress)
		if !ok {
			dropped++
			metrics.InboxMessage("dropped")
			continue
		}
		receipt, err := d.Apply(mem, *parsed)
		if err != nil {
			log.WithField("error", err).Fatal("apply operation")
		}
		if receipt == nil {
			metrics.InboxMessage("level_info")
			continue
		}
		processed++
		metrics.InboxMessage("dispatched")
		log.WithFields(map[string]interface{}{
			"op_hash": hex.EncodeToString(receipt.OpHash),
			"status":  receipt.Status,
		}).Info("operation dispatched")
	}

	flushed, err := outbox.Flush(mem, persistent, snapshot)
	if err != nil {
		log.WithField("error", err).Fatal("flush outbox")
	}
	metrics.AddOutboxFlushed(float64(flushed))
	metrics.LevelProcessed()

	log.WithFields(map[string]interface{}{
		"processed": processed,
		"dropped":   dropped,
		"flushed":   flushed,
	}).Info("level complete")
}

func bootstrap(store *storage.Storage, ticketerCreator string, ticketerID uint64, injectorKey string) error {
	tx := kv.New(store)
	if ticketerCreator != "" {
		creator, err := parseHex20(ticketerCreator)
		if err != nil {
			return fmt.Errorf("ticketer creator: %w", err)
		}
		if err := kv.Insert(tx, storage.TicketerPath(), ticketerValue{Creator: creator, TicketID: ticketerID}); err != nil {
			return err
		}
	}
	if injectorKey != "" {
		raw, err := hex.DecodeString(injectorKey)
		if err != nil {
			return fmt.Errorf("injector key: %w", err)
		}
		if err := dispatch.SetInjector(tx, raw); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func readTicketer(store *storage.Storage) (inbox.Ticketer, error) {
	tx := kv.New(store)
	v, found, err := kv.Get(tx, storage.TicketerPath(), decodeTicketerValue)
	if err != nil {
		return inbox.Ticketer{}, err
	}
	if !found {
		return inbox.Ticketer{}, nil
	}
	return inbox.Ticketer{Creator: v.Creator, TicketID: v.TicketID}, nil
}

// ticketerValue is the durable encoding of the configured L1 ticketer at
// /ticketer, so a restarted kernel need not be re-handed its
// configuration out of band.
type ticketerValue struct {
	Creator  [20]byte
	TicketID uint64
}

func (v ticketerValue) Encode() ([]byte, error) {
	buf := storage.PutBytes(nil, v.Creator[:])
	buf = storage.PutUint64(buf, v.TicketID)
	return buf, nil
}

func decodeTicketerValue(b []byte) (ticketerValue, error) {
	creator, rest, err := storage.TakeBytes(b)
	if err != nil {
		return ticketerValue{}, err
	}
	id, _, err := storage.TakeUint64(rest)
	if err != nil {
		return ticketerValue{}, err
	}
	var v ticketerValue
	copy(v.Creator[:], creator)
	v.TicketID = id
	return v, nil
}

func parseHex20(s string) ([20]byte, error) {
	var out [20]byte
	if s == "" {
		return out, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("expected 20 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func readLines(path string) ([][]byte, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
	}

	var out [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		raw, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", len(out)+1, err)
		}
		out = append(out, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
