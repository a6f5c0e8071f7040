package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/wire"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	TagActions        map[log.TagAction]int
	ErrorKinds        map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int
	Truncated         bool
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single backend connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Endpoint  string
	Remote    string
	Requests  int
	Callbacks int
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		TagActions:        make(map[log.TagAction]int),
		ErrorKinds:        make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.Tag != nil {
		s.TagActions[event.Tag.Action]++
	}
	if event.Error != nil {
		s.Errors++
		if event.Error.Kind != "" {
			s.ErrorKinds[event.Error.Kind]++
		}
	}

	// Engine events carry no connection.
	if event.ConnectionID == "" {
		return
	}
	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.Endpoint == "" {
		conn.Endpoint = event.Endpoint
	}
	if conn.Remote == "" {
		conn.Remote = event.RemoteAddr
	}
	if event.Message != nil {
		switch event.Message.Type {
		case wire.MessageTypeRequest:
			conn.Requests++
		case wire.MessageTypeCallback:
			conn.Callbacks++
		}
	}
}

// RunStats analyzes the capture at path and prints statistics to w.
func RunStats(path string, w io.Writer) error {
	reader, err := openCapture(path, log.Filter{})
	if err != nil {
		return err
	}
	defer reader.Close()

	stats := newStats()
	stats.Truncated, err = forEach(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return err
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== OPC Gateway Protocol Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	if stats.Truncated {
		fmt.Fprintln(w, "Capture is truncated after the last event")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerSession, log.LayerEngine} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError, log.CategoryTag} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.TagActions) > 0 {
		fmt.Fprintln(w, "Tag Lifecycle:")
		for _, a := range []log.TagAction{log.TagCreated, log.TagUpgraded, log.TagEvicted, log.TagDropped} {
			if count := stats.TagActions[a]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", a.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.Endpoint != "" {
				fmt.Fprintf(w, "           Endpoint: %s\n", c.stats.Endpoint)
			}
			if c.stats.Remote != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.Remote)
			}
			if c.stats.Requests > 0 || c.stats.Callbacks > 0 {
				fmt.Fprintf(w, "           Requests: %d, Callbacks: %d\n", c.stats.Requests, c.stats.Callbacks)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
		kinds := make([]string, 0, len(stats.ErrorKinds))
		for k := range stats.ErrorKinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-18s %d\n", k+":", stats.ErrorKinds[k])
		}
	}
}
