// tui-wright drives terminal applications from outside processes: spawn
// a child under a virtual terminal, inject input, and read back a
// structured view of what it has drawn to the screen. Each subcommand
// is a short-lived invocation that sends one request to a session
// daemon and prints its response, grounded on
// _examples/chriswa-spaceterm/pty-daemon/main.go's verb switch and
// GandalftheGUI-grove/cmd/catherd's per-verb dispatch functions.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pepegar/tui-wright/internal/clientutil"
	"github.com/pepegar/tui-wright/internal/config"
	"github.com/pepegar/tui-wright/internal/daemonize"
	"github.com/pepegar/tui-wright/internal/emulator"
	"github.com/pepegar/tui-wright/internal/protocol"
	"github.com/pepegar/tui-wright/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case daemonize.Stage1Marker:
		exe := mustExecutable()
		daemonize.RunStage1(exe, os.Args[2:])
		return
	case daemonize.Stage2Marker:
		runDaemonStage2(os.Args[2:])
		return
	case "spawn":
		cmdSpawn(os.Args[2:])
	case "run":
		cmdRun(os.Args[2:])
	case "screen":
		cmdScreen(os.Args[2:])
	case "cursor":
		cmdCursor(os.Args[2:])
	case "type":
		cmdType(os.Args[2:])
	case "key":
		cmdKey(os.Args[2:])
	case "mouse":
		cmdMouse(os.Args[2:])
	case "resize":
		cmdResize(os.Args[2:])
	case "waitfor":
		cmdWaitfor(os.Args[2:])
	case "assert":
		cmdAssert(os.Args[2:])
	case "kill":
		cmdKill(os.Args[2:])
	case "list":
		cmdList()
	case "snapshot":
		cmdSnapshot(os.Args[2:])
	case "trace":
		cmdTrace(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "tui-wright: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `tui-wright — drive terminal applications from outside processes

Commands:
  spawn COMMAND [ARGS...] [--cols N] [--rows N]
  run COMMAND
  screen SESSION [--json]
  cursor SESSION
  type SESSION TEXT
  key SESSION NAME
  mouse SESSION ACTION COL ROW
  resize SESSION COLS ROWS
  waitfor SESSION TEXT [--timeout MS]
  assert SESSION TEXT
  kill SESSION
  list
  snapshot save SESSION FILE
  snapshot diff SESSION FILE
  trace start SESSION [--output PATH]
  trace stop SESSION
  trace marker SESSION LABEL`)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "tui-wright: "+format+"\n", args...)
	os.Exit(1)
}

func mustExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		fail("find executable: %v", err)
	}
	return exe
}

// ─── spawn / run ────────────────────────────────────────────────────────────

func cmdSpawn(args []string) {
	cfg, _ := config.Load()

	fs := flag.NewFlagSet("spawn", flag.ExitOnError)
	cols := fs.Int("cols", cfg.Cols, "terminal width in columns")
	rows := fs.Int("rows", cfg.Rows, "terminal height in rows")
	fs.Parse(args)

	rest := fs.Args()
	// --cols/--rows may also trail COMMAND [ARGS...], as the usage shows.
	for len(rest) >= 3 && strings.HasPrefix(rest[len(rest)-2], "-") {
		name := strings.TrimLeft(rest[len(rest)-2], "-")
		if name != "cols" && name != "rows" {
			break
		}
		n, err := strconv.Atoi(rest[len(rest)-1])
		if err != nil {
			fail("invalid %s: %v", name, err)
		}
		if name == "cols" {
			*cols = n
		} else {
			*rows = n
		}
		rest = rest[:len(rest)-2]
	}
	if len(rest) < 1 {
		fail("usage: spawn COMMAND [ARGS...] [--cols N] [--rows N]")
	}
	command, cmdArgs := rest[0], rest[1:]

	id, err := spawnSession(command, cmdArgs, *cols, *rows)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("session %s\n", id)
}

func spawnSession(command string, cmdArgs []string, cols, rows int) (string, error) {
	id, err := clientutil.NewSessionID()
	if err != nil {
		return "", err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}

	exe := mustExecutable()
	daemonArgs := append([]string{id, strconv.Itoa(cols), strconv.Itoa(rows), cwd, command}, cmdArgs...)
	if err := daemonize.Spawn(exe, daemonArgs, 5*time.Second); err != nil {
		return "", err
	}
	return id, nil
}

// cmdRun is the spawn+type+enter convenience spec.md §1 calls out as an
// external collaborator, not part of the core: it spawns a shell, races
// a short sleep against the shell's startup (the spec leaves this
// choice open, see SPEC_FULL.md), then types COMMAND and presses enter.
func cmdRun(args []string) {
	if len(args) < 1 {
		fail("usage: run COMMAND")
	}
	cfg, _ := config.Load()

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "bash"
	}

	id, err := spawnSession(shell, nil, cfg.Cols, cfg.Rows)
	if err != nil {
		fail("%v", err)
	}

	time.Sleep(300 * time.Millisecond)

	command := strings.Join(args, " ")
	if _, err := clientutil.Request(id, protocol.Request{Kind: protocol.KindType, Text: command}); err != nil {
		fail("%v", err)
	}
	if _, err := clientutil.Request(id, protocol.Request{Kind: protocol.KindKey, Name: "enter"}); err != nil {
		fail("%v", err)
	}

	fmt.Printf("session %s\n", id)
}

// ─── screen / cursor / type / key / mouse / resize ─────────────────────────

func cmdScreen(args []string) {
	fs := flag.NewFlagSet("screen", flag.ExitOnError)
	jsonOut := fs.Bool("json", false, "emit the full cell grid as JSON")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		fail("usage: screen SESSION [--json]")
	}
	sessionID := rest[0]
	fs.Parse(rest[1:]) // flags after SESSION

	format := "text"
	if *jsonOut {
		format = "json"
	}
	resp := mustRequest(sessionID, protocol.Request{Kind: protocol.KindScreen, Format: format})

	if *jsonOut {
		data, err := json.Marshal(resp.Grid)
		if err != nil {
			fail("encode grid: %v", err)
		}
		fmt.Println(string(data))
		return
	}
	fmt.Println(resp.Text)
}

func cmdCursor(args []string) {
	if len(args) < 1 {
		fail("usage: cursor SESSION")
	}
	resp := mustRequest(args[0], protocol.Request{Kind: protocol.KindCursor})
	fmt.Printf("%d %d\n", resp.Row, resp.Col)
}

func cmdType(args []string) {
	if len(args) < 2 {
		fail("usage: type SESSION TEXT")
	}
	mustRequest(args[0], protocol.Request{Kind: protocol.KindType, Text: args[1]})
}

func cmdKey(args []string) {
	if len(args) < 2 {
		fail("usage: key SESSION NAME")
	}
	mustRequest(args[0], protocol.Request{Kind: protocol.KindKey, Name: args[1]})
}

func cmdMouse(args []string) {
	if len(args) < 4 {
		fail("usage: mouse SESSION ACTION COL ROW")
	}
	col, err := strconv.Atoi(args[2])
	if err != nil {
		fail("invalid col: %v", err)
	}
	row, err := strconv.Atoi(args[3])
	if err != nil {
		fail("invalid row: %v", err)
	}
	mustRequest(args[0], protocol.Request{Kind: protocol.KindMouse, Action: args[1], Col: col, Row: row})
}

func cmdResize(args []string) {
	if len(args) < 3 {
		fail("usage: resize SESSION COLS ROWS")
	}
	cols, err := strconv.Atoi(args[1])
	if err != nil {
		fail("invalid cols: %v", err)
	}
	rows, err := strconv.Atoi(args[2])
	if err != nil {
		fail("invalid rows: %v", err)
	}
	mustRequest(args[0], protocol.Request{Kind: protocol.KindResize, Cols: cols, Rows: rows})
}

// ─── waitfor / assert / kill / list ─────────────────────────────────────────

func cmdWaitfor(args []string) {
	cfg, _ := config.Load()

	fs := flag.NewFlagSet("waitfor", flag.ExitOnError)
	timeoutMs := fs.Int("timeout", cfg.WaitforTimeout, "timeout in milliseconds")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 2 {
		fail("usage: waitfor SESSION TEXT [--timeout MS]")
	}
	fs.Parse(rest[2:]) // flags after SESSION TEXT

	resp, err := clientutil.Request(rest[0], protocol.Request{Kind: protocol.KindWaitfor, Text: rest[1], TimeoutMs: *timeoutMs})
	if err != nil {
		fail("%v", err)
	}
	if !resp.OK {
		fmt.Fprintln(os.Stderr, resp.Text)
		fail("%s", resp.Message)
	}
	fmt.Println(resp.Text)
}

func cmdAssert(args []string) {
	if len(args) < 2 {
		fail("usage: assert SESSION TEXT")
	}
	resp, err := clientutil.Request(args[0], protocol.Request{Kind: protocol.KindAssert, Text: args[1]})
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(resp.Text)
	if resp.Found == nil || !*resp.Found {
		os.Exit(1)
	}
}

func cmdKill(args []string) {
	if len(args) < 1 {
		fail("usage: kill SESSION")
	}
	mustRequest(args[0], protocol.Request{Kind: protocol.KindKill})
}

func cmdList() {
	ids, err := clientutil.List()
	if err != nil {
		fail("%v", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

// ─── snapshot / trace ───────────────────────────────────────────────────────

func cmdSnapshot(args []string) {
	if len(args) < 3 {
		fail("usage: snapshot save|diff SESSION FILE")
	}
	sessionID, path := args[1], args[2]

	switch args[0] {
	case "save":
		resp := mustRequest(sessionID, protocol.Request{Kind: protocol.KindScreen, Format: "json"})
		data, err := json.Marshal(resp.Grid)
		if err != nil {
			fail("encode snapshot: %v", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fail("write snapshot: %v", err)
		}
	case "diff":
		data, err := os.ReadFile(path)
		if err != nil {
			fail("read baseline: %v", err)
		}
		var baseline emulator.Grid
		if err := json.Unmarshal(data, &baseline); err != nil {
			fail("parse baseline: %v", err)
		}

		resp, err := clientutil.Request(sessionID, protocol.Request{Kind: protocol.KindSnapshotDiff, Baseline: &baseline})
		if err != nil {
			fail("%v", err)
		}
		if !resp.OK {
			fail("%s", resp.Message)
		}

		out, err := json.Marshal(resp.Diff)
		if err != nil {
			fail("encode diff: %v", err)
		}
		fmt.Println(string(out))

		if resp.Diff != nil && !resp.Diff.Identical {
			os.Exit(1)
		}
	default:
		fail("usage: snapshot save|diff SESSION FILE")
	}
}

func cmdTrace(args []string) {
	if len(args) < 2 {
		fail("usage: trace start|stop|marker SESSION ...")
	}
	sub, sessionID := args[0], args[1]
	rest := args[2:]

	switch sub {
	case "start":
		cfg, _ := config.Load()
		defaultOutput := ""
		if cfg.TraceDir != "" {
			defaultOutput = filepath.Join(cfg.TraceDir, "tui-wright-"+sessionID+".cast")
		}
		fs := flag.NewFlagSet("trace start", flag.ExitOnError)
		output := fs.String("output", defaultOutput, "trace output path")
		fs.Parse(rest)

		resp := mustRequest(sessionID, protocol.Request{Kind: protocol.KindTraceStart, Path: *output})
		fmt.Println(resp.Path)
	case "stop":
		mustRequest(sessionID, protocol.Request{Kind: protocol.KindTraceStop})
	case "marker":
		if len(rest) < 1 {
			fail("usage: trace marker SESSION LABEL")
		}
		label := strings.Join(rest, " ")
		mustRequest(sessionID, protocol.Request{Kind: protocol.KindTraceMarker, Label: label})
	default:
		fail("usage: trace start|stop|marker SESSION ...")
	}
}

// mustRequest sends req to sessionID and exits the process on any
// transport error or a non-OK response, the pattern
// GandalftheGUI-grove/cmd/catherd's mustRequest follows for its own
// fire-and-check verbs.
func mustRequest(sessionID string, req protocol.Request) protocol.Response {
	resp, err := clientutil.Request(sessionID, req)
	if err != nil {
		fail("%v", err)
	}
	if !resp.OK {
		fail("%s", resp.Message)
	}
	return resp
}

// ─── daemon entry point ─────────────────────────────────────────────────────

// runDaemonStage2 is the final re-exec stage: it becomes the session
// daemon. args are [sessionID, cols, rows, cwd, command, cmdArgs...], the
// same positional layout spawnSession hands to daemonize.Spawn. cwd is
// the directory tui-wright spawn/run was invoked from, captured before
// the daemonize re-execs so the spawned command runs where the invoking
// user expects, per original_source/src/main.rs's current_dir handling,
// rather than wherever the daemon process itself happens to chdir to.
func runDaemonStage2(args []string) {
	if len(args) < 5 {
		os.Exit(1)
	}
	id := args[0]
	cols, err := strconv.Atoi(args[1])
	if err != nil {
		os.Exit(1)
	}
	rows, err := strconv.Atoi(args[2])
	if err != nil {
		os.Exit(1)
	}
	cwd := args[3]
	command := args[4]
	cmdArgs := args[5:]

	pipe := daemonize.ReadyPipe()

	_ = os.Chdir(os.TempDir())

	logger := newDaemonLogger(id)
	defer logger.Sync()

	socketPath := clientutil.SocketPath(id)

	d, err := session.New(logger, id, socketPath, command, cmdArgs, cwd, os.Environ(), cols, rows)
	if err != nil {
		daemonize.SignalFailed(pipe, err)
		os.Exit(1)
	}

	if err := d.Serve(func() { daemonize.SignalReady(pipe) }); err != nil {
		logger.Error("serve exited with error", zap.Error(err))
	}
}

func newDaemonLogger(sessionID string) *zap.Logger {
	logPath := filepath.Join(os.TempDir(), "tui-wright-"+sessionID+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zap.NewNop()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(logFile), zap.InfoLevel)
	return zap.New(core)
}
