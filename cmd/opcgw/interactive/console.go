// Package interactive provides the operator console for opcgw.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/discovery"
	"github.com/Open-Plant/OpenPlantOPC-sub000/pkg/engine"
)

// ErrNoEngine is returned for endpoints whose scheme no engine serves.
var ErrNoEngine = errors.New("no engine for endpoint scheme")

// Discoverer finds backends on the local network.
type Discoverer interface {
	FindAll(ctx context.Context, kind discovery.Kind) ([]*discovery.Service, error)
}

// Router picks the engine serving an endpoint by URL scheme.
type Router struct {
	engines map[string]*engine.Engine
	order   []string
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{engines: make(map[string]*engine.Engine)}
}

// Add registers the engine for a scheme.
func (r *Router) Add(scheme string, e *engine.Engine) {
	if _, ok := r.engines[scheme]; !ok {
		r.order = append(r.order, scheme)
	}
	r.engines[scheme] = e
}

// For returns the engine for endpoint.
func (r *Router) For(endpoint string) (*engine.Engine, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoEngine, endpoint)
	}
	e, ok := r.engines[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoEngine, u.Scheme)
	}
	return e, nil
}

// Engines returns the registered engines in registration order.
func (r *Router) Engines() []*engine.Engine {
	out := make([]*engine.Engine, 0, len(r.order))
	for _, s := range r.order {
		out = append(out, r.engines[s])
	}
	return out
}

// Console handles interactive mode for opcgw.
type Console struct {
	router   *Router
	discover Discoverer
	out      io.Writer
	rl       *readline.Instance

	// DiscoverTimeout bounds the discover command (default: 3s).
	DiscoverTimeout time.Duration
}

// New creates a console reading from the terminal.
func New(router *Router, discover Discoverer) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "opcgw> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := NewWithWriter(router, discover, rl.Stdout())
	c.rl = rl
	return c, nil
}

// NewWithWriter creates a console without a terminal; commands are fed
// through Exec.
func NewWithWriter(router *Router, discover Discoverer, out io.Writer) *Console {
	return &Console{
		router:          router,
		discover:        discover,
		out:             out,
		DiscoverTimeout: discovery.BrowseTimeout,
	}
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	if c.rl != nil {
		return c.rl.Stdout()
	}
	return c.out
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	if c.rl != nil {
		return c.rl.Stderr()
	}
	return c.out
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("read"),
		readline.PcItem("browse"),
		readline.PcItem("status"),
		readline.PcItem("disconnect"),
		readline.PcItem("tags"),
		readline.PcItem("groups"),
		readline.PcItem("endpoints"),
		readline.PcItem("stats"),
		readline.PcItem("sweep"),
		readline.PcItem("discover", readline.PcItem("ua"), readline.PcItem("da")),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Exec(ctx, line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns false when the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "read", "r":
		c.cmdRead(ctx, args)

	case "browse", "b":
		c.cmdBrowse(ctx, args)

	case "status":
		c.cmdStatus(ctx, args)

	case "disconnect":
		c.cmdDisconnect(args)

	case "tags":
		c.cmdTags(args)

	case "groups":
		c.cmdGroups(args)

	case "endpoints", "ep":
		c.cmdEndpoints()

	case "stats":
		c.cmdStats()

	case "sweep":
		c.cmdSweep(ctx)

	case "discover":
		c.cmdDiscover(ctx, args)

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
OPC Gateway Commands:
  Data:
    read <endpoint> <interval> <item>...  - Read items, subscribing at interval (e.g. 1s)
    browse <endpoint> [path]              - List the children of a node

  Connections:
    status <endpoint>                     - Query backend server status
    disconnect <endpoint>                 - Drop the connection and its tags
    endpoints                             - List connected endpoints
    discover [ua|da]                      - Find backends via mDNS

  Registry:
    tags [endpoint]                       - List cached tags
    groups <endpoint>                     - List subscription groups
    stats                                 - Show cache statistics
    sweep                                 - Evict idle tags now

  General:
    help                                  - Show this help
    quit                                  - Exit

  Endpoints:
    opcda://host[:port]/ProgID            - DA server behind a bridge agent
    opc.tcp://host[:port][/path]          - UA server`)
}

func (c *Console) cmdRead(ctx context.Context, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: read <endpoint> <interval> <item>...")
		return
	}
	e, err := c.router.For(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	interval, err := time.ParseDuration(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Invalid interval %q: %v\n", args[1], err)
		return
	}

	results := e.Read(ctx, args[0], args[2:], interval)
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tVALUE\tQUALITY\tSOURCE TIME\tERROR")
	for _, r := range results {
		if !r.OK {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s: %s\n", r.ID, r.Kind, r.Error)
			continue
		}
		quality := "GOOD"
		if !r.QualityOK {
			quality = "BAD"
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%s\t\n", r.ID, r.Value, quality, formatTime(r.SourceTime))
	}
	_ = w.Flush()
}

func (c *Console) cmdBrowse(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: browse <endpoint> [path]")
		return
	}
	e, err := c.router.For(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	path := ""
	if len(args) > 1 {
		path = args[1]
	}

	nodes, err := e.Browse(ctx, args[0], path)
	if err != nil {
		fmt.Fprintf(c.out, "Browse error: %v\n", err)
		return
	}
	if len(nodes) == 0 {
		fmt.Fprintln(c.out, "(no children)")
		return
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tITEM ID\tTYPE\tACCESS")
	for _, n := range nodes {
		if n.Branch {
			fmt.Fprintf(w, "%s/\t%s\t\t\n", n.Name, n.ItemID)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.Name, n.ItemID, n.DataType, access(n))
	}
	_ = w.Flush()
}

func access(n engine.Node) string {
	switch {
	case n.Readable && n.Writable:
		return "rw"
	case n.Readable:
		return "r"
	case n.Writable:
		return "w"
	default:
		return "-"
	}
}

func (c *Console) cmdStatus(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: status <endpoint>")
		return
	}
	e, err := c.router.For(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", args[0], e.ServerStatus(ctx, args[0]))
}

func (c *Console) cmdDisconnect(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: disconnect <endpoint>")
		return
	}
	e, err := c.router.For(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := e.Disconnect(args[0]); err != nil {
		fmt.Fprintf(c.out, "Disconnect error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Disconnected %s\n", args[0])
}

func (c *Console) cmdTags(args []string) {
	filter := ""
	if len(args) > 0 {
		filter = args[0]
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tITEM\tVALUE\tREQUESTED\tGRANTED\tLAST READ")
	n := 0
	for _, e := range c.router.Engines() {
		tags := e.Tags()
		sort.Slice(tags, func(i, j int) bool {
			if tags[i].Endpoint != tags[j].Endpoint {
				return tags[i].Endpoint < tags[j].Endpoint
			}
			return tags[i].ItemID < tags[j].ItemID
		})
		for _, t := range tags {
			if filter != "" && t.Endpoint != filter {
				continue
			}
			value := "-"
			if t.HasValue {
				value = fmt.Sprint(t.Value)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.Endpoint, t.ItemID, value, t.RequestedInterval, t.GrantedInterval, formatTime(t.LastRequested))
			n++
		}
	}
	_ = w.Flush()
	fmt.Fprintf(c.out, "%d tag(s)\n", n)
}

func (c *Console) cmdGroups(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: groups <endpoint>")
		return
	}
	e, err := c.router.For(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	groups := e.Groups(args[0])
	if len(groups) == 0 {
		fmt.Fprintln(c.out, "No groups")
		return
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREQUESTED\tGRANTED\tMEMBERS\tSTATE")
	for _, g := range groups {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", g.ID, g.Requested, g.Interval, g.Members, g.State)
	}
	_ = w.Flush()
}

func (c *Console) cmdEndpoints() {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FAMILY\tENDPOINT\tSTATE\tTAGS\tGROUPS")
	n := 0
	for _, e := range c.router.Engines() {
		for _, ep := range e.Endpoints() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", e.Family(), ep.Endpoint, ep.State, ep.Tags, ep.Groups)
			n++
		}
	}
	_ = w.Flush()
	if n == 0 {
		fmt.Fprintln(c.out, "No endpoints connected")
	}
}

func (c *Console) cmdStats() {
	for _, e := range c.router.Engines() {
		s := e.Stats()
		fmt.Fprintf(c.out, "\n%s engine:\n", e.Family())
		fmt.Fprintf(c.out, "  Calls/min:  %d\n", s.CallsPerMinute)
		fmt.Fprintf(c.out, "  Reads:      %d\n", s.Reads)
		fmt.Fprintf(c.out, "  Hits:       %d (%.1f%%)\n", s.Hits, 100*s.HitRatio())
		fmt.Fprintf(c.out, "  Misses:     %d\n", s.Misses)
		fmt.Fprintf(c.out, "  Failures:   %d\n", s.Failures)
		fmt.Fprintf(c.out, "  Pushes:     %d\n", s.Pushes)
		fmt.Fprintf(c.out, "  Stale:      %d\n", s.Stale)
		fmt.Fprintf(c.out, "  Upgrades:   %d\n", s.Upgrades)
		fmt.Fprintf(c.out, "  Evictions:  %d\n", s.Evictions)
	}
}

func (c *Console) cmdSweep(ctx context.Context) {
	total := 0
	for _, e := range c.router.Engines() {
		total += e.Sweep(ctx)
	}
	fmt.Fprintf(c.out, "Evicted %d tag(s)\n", total)
}

func (c *Console) cmdDiscover(ctx context.Context, args []string) {
	if c.discover == nil {
		fmt.Fprintln(c.out, "Discovery disabled")
		return
	}

	kinds := []discovery.Kind{discovery.KindUA, discovery.KindDABridge}
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "ua":
			kinds = []discovery.Kind{discovery.KindUA}
		case "da":
			kinds = []discovery.Kind{discovery.KindDABridge}
		default:
			fmt.Fprintln(c.out, "Usage: discover [ua|da]")
			return
		}
	}

	fmt.Fprintln(c.out, "Discovering backends...")
	found := 0
	for _, kind := range kinds {
		dctx, cancel := context.WithTimeout(ctx, c.DiscoverTimeout)
		services, err := c.discover.FindAll(dctx, kind)
		cancel()
		if err != nil {
			fmt.Fprintf(c.out, "Discovery error (%s): %v\n", kind, err)
			continue
		}
		for _, svc := range services {
			eps, err := svc.Endpoints()
			if err != nil {
				fmt.Fprintf(c.out, "  %s %s: %v\n", kind, svc.Instance, err)
				continue
			}
			for _, ep := range eps {
				found++
				fmt.Fprintf(c.out, "  %d. %s %s (%s)\n", found, kind, ep, svc.Instance)
			}
		}
	}
	if found == 0 {
		fmt.Fprintln(c.out, "No backends found")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04:05.000")
}
