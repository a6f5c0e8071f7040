// Command opcgw-log views and analyzes gateway protocol capture files.
//
// Capture files are written by opcgw when started with -protocol-log (or
// protocolLog in the configuration file).
//
// Usage:
//
//	opcgw-log <command> [flags] <file.glog>
//
// Commands:
//
//	view     View capture in human-readable format
//	export   Export capture to JSON lines or CSV
//	filter   Filter capture and write to new file
//	stats    Show statistics about the capture
//
// Examples:
//
//	# View all events
//	opcgw-log view protocol.glog
//
//	# View tag lifecycle events only
//	opcgw-log view --category tag protocol.glog
//
//	# View only outgoing DA bridge messages
//	opcgw-log view --layer wire --direction out protocol.glog
//
//	# Extract one backend endpoint
//	opcgw-log filter --endpoint opcda://scada:4841/Sim.1 -o sim.glog protocol.glog
//
//	# Export to CSV
//	opcgw-log export --format csv -o protocol.csv protocol.glog
//
//	# Statistics of a capture streamed from another host
//	ssh gw cat /var/log/opcgw/protocol.glog | opcgw-log stats -
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Open-Plant/OpenPlantOPC-sub000/cmd/opcgw-log/commands"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/log"
)

const usage = `opcgw-log - OPC Gateway Protocol Capture Analyzer

Usage:
  opcgw-log <command> [flags] <file.glog>

Commands:
  view     View capture in human-readable format
  export   Export capture to JSON lines or CSV
  filter   Filter capture and write to new file
  stats    Show statistics about the capture

Use "opcgw-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func requirePath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required (- for stdin)")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "opcgw-log %s - %s\n\nUsage:\n  opcgw-log %s [flags] <file.glog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture in human-readable format")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, session, engine)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error, tag)")
	endpoint := fs.String("endpoint", "", "Filter by backend endpoint URL")
	item := fs.String("item", "", "Filter tag events by item ID")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	filter := log.Filter{Endpoint: *endpoint, ItemID: *item}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture to JSON lines or CSV")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture and write to new file")
	output := fs.String("o", "", "Output file (required)")
	connID := fs.String("conn-id", "", "Filter by connection ID")
	endpoint := fs.String("endpoint", "", "Filter by backend endpoint URL")
	item := fs.String("item", "", "Filter tag events by item ID")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, session, engine)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error, tag)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:    *output,
		ConnID:    *connID,
		Endpoint:  *endpoint,
		ItemID:    *item,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Layer:     *layer,
		Direction: *direction,
		Category:  *category,
	}
	if err := commands.RunFilter(path, opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
