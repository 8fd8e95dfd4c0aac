package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-filediff/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// A nil pointer means the flag is not registered for the parsed command.
type cliFlags struct {
	// Global
	LogLevel *string
	DryRun   *bool
	Yes      *bool
	Metrics  *bool

	// Shared: Diff / Sync / Init
	Main         *string
	Sync         *string
	Workers      *int
	NoCache      *bool
	CacheOnly    *bool
	Compression  *string
	MetricsFile  *string
	Ignore       *string
	NoTrash      *bool
	RetryCount   *int
	RetryWait    *int
	BufferSizeKB *int

	// Diff specific
	Preview *bool

	// Cache specific
	Root *string

	// Init specific
	Force   *bool
	Default *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
	f.Yes = fs.Bool("yes", false, "Answer yes to every confirmation prompt.")
	f.Metrics = fs.Bool("metrics", false, "Enable detailed performance and file-counting metrics.")
}

func registerRootFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Main = fs.String("main", "", "Main directory holding the authoritative tree. (Required)")
	f.Sync = fs.String("sync", "", "Sync directory that is brought up to date with main. (Required)")
}

func registerDetectFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Workers = fs.Int("workers", 0, "Number of worker goroutines for comparisons and copies (0 = number of CPUs).")
	f.NoCache = fs.Bool("no-cache", false, "Ignore the metadata caches and fingerprint every file.")
	f.CacheOnly = fs.Bool("cache-only", false, "Rebuild both caches from a full walk and exit without diffing.")
	f.Compression = fs.String("compression", "", "Cache file compression: 'none', 'gzip' or 'zstd'.")
	f.MetricsFile = fs.String("metrics-file", "", "Write run metrics in Prometheus text format to this file.")
	f.Ignore = fs.String("ignore", "", "Comma-separated list of extra relative paths or glob patterns to ignore.")
}

func registerApplyFlags(fs *flag.FlagSet, f *cliFlags) {
	f.NoTrash = fs.Bool("no-trash", false, "Delete files permanently instead of moving them to the trash directory.")
	f.RetryCount = fs.Int("retry-count", 0, "Number of retries for failed file copies.")
	f.RetryWait = fs.Int("retry-wait", 0, "Seconds to wait between retries.")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the I/O buffer in kilobytes for file copies and hashing.")
}

func registerDiffFlags(fs *flag.FlagSet, f *cliFlags) {
	registerRootFlags(fs, f)
	registerDetectFlags(fs, f)
	f.Preview = fs.Bool("preview", false, "Print a unified diff for every modified text file.")
}

func registerSyncFlags(fs *flag.FlagSet, f *cliFlags) {
	registerRootFlags(fs, f)
	registerDetectFlags(fs, f)
	registerApplyFlags(fs, f)
}

func registerCacheFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Root = fs.String("root", "", "Directory whose cache file should be printed. (Required)")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	registerRootFlags(fs, f)
	f.Force = fs.Bool("force", false, "Bypass confirmation prompts.")
	f.Default = fs.Bool("default", false, "Overwrite an existing configuration with defaults.")
	f.Workers = fs.Int("workers", 0, "Number of worker goroutines for comparisons and copies (0 = number of CPUs).")
	f.NoCache = fs.Bool("no-cache", false, "Disable the metadata caches.")
	f.Compression = fs.String("compression", "", "Cache file compression: 'none', 'gzip' or 'zstd'.")
	registerApplyFlags(fs, f)
}

type subcommand struct {
	desc     string
	register func(*flag.FlagSet, *cliFlags)
}

var subcommands = map[Command]subcommand{
	Diff:  {"Detect and report the changes between the main and sync directories.", registerDiffFlags},
	Sync:  {"Detect the changes, confirm them and apply them to the sync directory.", registerSyncFlags},
	Cache: {"Print the cached tree of a directory.", registerCacheFlags},
	Init:  {"Write a configuration file into the sync directory.", registerInitFlags},
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the
// command and a map holding only the flags the user set explicitly.
func Parse(args []string) (Command, map[string]any, error) {
	if len(args) == 0 {
		printTopLevelUsage(flag.NewFlagSet("main", flag.ContinueOnError))
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])
	switch cmdStr {
	case "help", "-h", "-help", "--help":
		printTopLevelUsage(flag.NewFlagSet("main", flag.ContinueOnError))
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}
	if command == Version {
		return command, nil, nil
	}

	sub, ok := subcommands[command]
	if !ok {
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	registerGlobalFlags(fs, f)
	sub.register(fs, f)
	fs.Usage = func() {
		printSubcommandUsage(command, sub.desc, fs)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return command, nil, err
	}
	if fs.NArg() > 0 {
		return command, nil, fmt.Errorf("unexpected arguments for %s: %s", command, strings.Join(fs.Args(), " "))
	}
	return command, flagsToMap(fs, f), nil
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) map[string]any {
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "yes", f.Yes)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)

	addIfUsed(flagMap, usedFlags, "main", f.Main)
	addIfUsed(flagMap, usedFlags, "sync", f.Sync)
	addIfUsed(flagMap, usedFlags, "workers", f.Workers)
	addIfUsed(flagMap, usedFlags, "no-cache", f.NoCache)
	addIfUsed(flagMap, usedFlags, "cache-only", f.CacheOnly)
	addIfUsed(flagMap, usedFlags, "compression", f.Compression)
	addIfUsed(flagMap, usedFlags, "metrics-file", f.MetricsFile)
	addIfUsed(flagMap, usedFlags, "no-trash", f.NoTrash)
	addIfUsed(flagMap, usedFlags, "retry-count", f.RetryCount)
	addIfUsed(flagMap, usedFlags, "retry-wait", f.RetryWait)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)
	addIfUsed(flagMap, usedFlags, "preview", f.Preview)
	addIfUsed(flagMap, usedFlags, "root", f.Root)
	addIfUsed(flagMap, usedFlags, "force", f.Force)
	addIfUsed(flagMap, usedFlags, "default", f.Default)

	addParsedIfUsed(flagMap, usedFlags, "ignore", f.Ignore, ParseList)

	return flagMap
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "A cache-accelerated two-directory diff and sync utility.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  diff        Report the changes between main and sync\n")
	fmt.Fprintf(fs.Output(), "  sync        Apply the changes from main to sync\n")
	fmt.Fprintf(fs.Output(), "  cache       Print the cached tree of a directory\n")
	fmt.Fprintf(fs.Output(), "  init        Write a configuration file into the sync directory\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "A cache-accelerated two-directory diff and sync utility.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseList parses a comma-separated list of paths or patterns. Single or
// double quotes group items containing commas or spaces and are removed.
// Backslashes are kept literally for Windows paths.
func ParseList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	for _, r := range s {
		switch {
		case r == '\'' || r == '"':
			switch quoteChar {
			case 0:
				quoteChar = r
			case r:
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
