package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/companion/internal/protocol"
)

type options struct {
	baseURL    string
	platform   string
	roomID     string
	events     int
	auditEvery int
	interval   time.Duration
	ackTimeout time.Duration
	texts      []string
	verbose    bool
}

type latencySummary struct {
	Count int
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

var defaultMessages = []string{
	"hello from the chat",
	"what song is this?",
	"love the stream today",
	"can you say hi to my friend?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfevents: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfevents: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var intervalMS int
	var ackTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "companion base URL")
	flag.StringVar(&cfg.platform, "platform", "perf", "platform label on generated events")
	flag.StringVar(&cfg.roomID, "room-id", "perf-room", "room id on generated events")
	flag.IntVar(&cfg.events, "events", 200, "number of events to ingest")
	flag.IntVar(&cfg.auditEvery, "audit-every", 0, "send an approve verdict for every Nth event (0 disables)")
	flag.IntVar(&intervalMS, "interval-ms", 0, "delay between events in milliseconds")
	flag.IntVar(&ackTimeoutMS, "ack-timeout-ms", 5000, "timeout waiting for each reply in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "messages separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print every reply")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.events <= 0 {
		return options{}, fmt.Errorf("events must be > 0")
	}
	if cfg.auditEvery < 0 {
		cfg.auditEvery = 0
	}
	if intervalMS < 0 {
		intervalMS = 0
	}
	if ackTimeoutMS < 100 {
		ackTimeoutMS = 100
	}
	cfg.interval = time.Duration(intervalMS) * time.Millisecond
	cfg.ackTimeout = time.Duration(ackTimeoutMS) * time.Millisecond
	cfg.texts = splitTexts(textsRaw)
	if len(cfg.texts) == 0 {
		cfg.texts = append([]string(nil), defaultMessages...)
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	wsURL, err := wsURLForEvents(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	ingestLatencies := make([]time.Duration, 0, cfg.events)
	var auditLatencies []time.Duration
	for i := 0; i < cfg.events; i++ {
		ingest := protocol.EventIngest{
			Type:      protocol.TypeEventIngest,
			RequestID: fmt.Sprintf("perf-%d", i),
			Event: protocol.LiveEvent{
				Platform: cfg.platform,
				RoomID:   cfg.roomID,
				Username: fmt.Sprintf("viewer%d", i%17),
				UID:      fmt.Sprint(1000 + i%17),
				Content:  cfg.texts[i%len(cfg.texts)],
			},
		}
		var ack protocol.EventAck
		elapsed, err := roundTrip(conn, ingest, &ack, cfg.ackTimeout)
		if err != nil {
			return fmt.Errorf("event %d: %w", i+1, err)
		}
		if ack.Type != protocol.TypeEventAck {
			return fmt.Errorf("event %d: unexpected reply %q", i+1, ack.Type)
		}
		ingestLatencies = append(ingestLatencies, elapsed)
		if cfg.verbose {
			fmt.Printf("perfevents: %s -> %s in %s\n", ingest.RequestID, ack.EventID, elapsed)
		}

		if cfg.auditEvery > 0 && (i+1)%cfg.auditEvery == 0 {
			audit := protocol.EventAudit{Type: protocol.TypeEventAudit, EventID: ack.EventID, Allowed: true, Reason: "perf"}
			var auditAck protocol.AuditAck
			elapsed, err := roundTrip(conn, audit, &auditAck, cfg.ackTimeout)
			if err != nil {
				return fmt.Errorf("audit %s: %w", ack.EventID, err)
			}
			if !auditAck.Found {
				return fmt.Errorf("audit %s: event not visible", ack.EventID)
			}
			auditLatencies = append(auditLatencies, elapsed)
		}

		if cfg.interval > 0 {
			time.Sleep(cfg.interval)
		}
	}

	printSummary("ingest", summarize(ingestLatencies))
	if len(auditLatencies) > 0 {
		printSummary("audit", summarize(auditLatencies))
	}
	return nil
}

func roundTrip(conn *websocket.Conn, msg any, reply any, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	_ = conn.SetWriteDeadline(start.Add(timeout))
	if err := conn.WriteJSON(msg); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	if err := conn.ReadJSON(reply); err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	return time.Since(start), nil
}

func wsURLForEvents(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/events/ws"
	return u.String(), nil
}

func splitTexts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func summarize(samples []time.Duration) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(q float64) time.Duration {
		idx := int(q*float64(len(sorted))+0.5) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	return latencySummary{
		Count: len(sorted),
		P50:   at(0.50),
		P95:   at(0.95),
		Max:   sorted[len(sorted)-1],
	}
}

func printSummary(label string, s latencySummary) {
	fmt.Printf("perfevents: %s n=%d p50=%s p95=%s max=%s\n", label, s.Count, s.P50, s.P95, s.Max)
}
