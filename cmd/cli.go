// Package cmd parses the server's command line.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Args holds the CLI configuration parsed from arguments. Zero values mean
// "not given" and leave the loaded configuration untouched.
type Args struct {
	ConfigPath string
	Port       int
	LogLevel   string
	CheckDeps  bool
}

// ParseArgs parses command line arguments.
func ParseArgs() (*Args, error) {
	return parse(os.Args[1:], os.Stderr)
}

func parse(argv []string, output io.Writer) (*Args, error) {
	args := &Args{}
	fs := flag.NewFlagSet("kabutune", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&args.ConfigPath, "config", "", "Path to a TOML config file")
	fs.StringVar(&args.ConfigPath, "c", "", "Path to a TOML config file (shorthand)")
	fs.IntVar(&args.Port, "port", 0, "HTTP port (overrides server.port)")
	fs.StringVar(&args.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&args.CheckDeps, "check", false, "Check yt-dlp and ffmpeg, then exit")
	fs.Usage = func() { printUsage(output) }

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if args.Port < 0 || args.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", args.Port)
	}
	return args, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  kabutune [-config kabutune.toml] [-port 4000] [-log-level info]")
	fmt.Fprintln(w, "\nFlags:")
	fmt.Fprintln(w, "  -c, -config      TOML config file")
	fmt.Fprintln(w, "  -port            HTTP port")
	fmt.Fprintln(w, "  -log-level       debug, info, warn or error")
	fmt.Fprintln(w, "  -check           Check external dependencies and exit")
	fmt.Fprintln(w, "\nEnvironment:")
	fmt.Fprintln(w, "  KABUTUNE_<SECTION>_<KEY>, e.g. KABUTUNE_SEARCH_BACKEND=youtube")
	fmt.Fprintln(w, "  PORT, PIPED_BASE, YT_API_KEY, YT_COOKIES_FILE, YT_COOKIES_BROWSER")
	fmt.Fprintln(w)
}

// PrintUsageAndExit prints usage and exits with code 2.
func PrintUsageAndExit() {
	printUsage(os.Stderr)
	os.Exit(2)
}
