// Package cli turns command-line arguments, CHATSERV_* environment variables
// and an optional .env file into the relay configuration.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/trace"
)

// ProgramName is used in usage and error output.
const ProgramName = "chatserv"

// EnvFile is loaded before the environment is read. A missing file is ignored.
var EnvFile = ".env"

var (
	// ErrUsage reports malformed arguments.
	ErrUsage = errors.New("usage error")

	// ErrHelp reports that -h was given.
	ErrHelp = errors.New("help requested")
)

// Options is the parsed command line.
type Options struct {
	Config     server.Config
	TraceLevel trace.Level `validate:"min=0,max=4"`
}

type envOptions struct {
	Debug int `env:"CHATSERV_DEBUG,default=0"`
}

var validate = validator.New()

// Parse reads args (without the program name). Flags override the
// environment, which overrides the built-in defaults.
func Parse(args []string) (Options, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Options{}, fmt.Errorf("load %s: %w", EnvFile, err)
	}

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return Options{}, err
	}
	var eo envOptions
	if _, err := env.UnmarshalFromEnviron(&eo); err != nil {
		return Options{}, fmt.Errorf("%w: CHATSERV_DEBUG: %v", ErrUsage, err)
	}

	fset := flag.NewFlagSet(ProgramName, flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	help := fset.Bool("h", false, "print this help")
	level := fset.Int("d", eo.Debug, "debug level (0..4)")
	fset.StringVar(&cfg.Port, "p", cfg.Port, "port name or number")
	fset.StringVar(&cfg.Host, "b", cfg.Host, "bind host (default: every local address)")
	fset.StringVar(&cfg.WebSocket.Addr, "w", cfg.WebSocket.Addr, "websocket gateway address, e.g. :8080")

	if err := fset.Parse(args); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *help {
		return Options{}, ErrHelp
	}
	if fset.NArg() > 0 {
		return Options{}, fmt.Errorf("%w: unexpected argument %q", ErrUsage, fset.Arg(0))
	}

	opts := Options{Config: *cfg, TraceLevel: trace.Level(*level)}
	if err := validate.StructPartial(opts, "TraceLevel"); err != nil {
		return Options{}, fmt.Errorf("%w: debug level must be between %d and %d", ErrUsage, trace.ErrorLevel, trace.MaxLevel)
	}
	if err := opts.Config.Validate(); err != nil {
		return Options{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return opts, nil
}

// Usage writes the synopsis, the options and the debug level table.
func Usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s [-h] [-d <debug_level>] [-p <port_name>] [-b <host>] [-w <ws_addr>]\n\n", ProgramName)
	fmt.Fprintf(w, "  -h  print this help\n")
	fmt.Fprintf(w, "  -d  debug level (default %d)\n", trace.ErrorLevel)
	fmt.Fprintf(w, "  -p  port name or number (default %s)\n", server.DefaultPort)
	fmt.Fprintf(w, "  -b  bind host (default: every local address)\n")
	fmt.Fprintf(w, "  -w  websocket gateway address (default: disabled)\n\n")

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Level", "Name"})
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	for _, l := range trace.Levels() {
		table.Append([]string{fmt.Sprint(int(l)), l.String()})
	}
	table.Render()
}

// PrintError writes err highlighted, followed by the usage text for usage errors.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, color.New(color.FgRed, color.OpBold).Render(fmt.Sprintf("%s: %v", ProgramName, err)))
	if errors.Is(err, ErrUsage) {
		fmt.Fprintln(w)
		Usage(w)
	}
}

// Exit codes of startup failures. A failure after the event loop started
// still exits with ExitOK.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitNoListeners = 3
	ExitAddressInfo = 4
)

// ExitCode maps a startup error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, ErrHelp):
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, server.ErrNoListenersAvailable):
		return ExitNoListeners
	case errors.Is(err, server.ErrAddressInfo):
		return ExitAddressInfo
	default:
		return ExitFailure
	}
}
