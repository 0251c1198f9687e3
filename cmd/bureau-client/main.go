// Command bureau-client is bureau's CLI client (spec §6: "client takes a
// --command string in the textual form `GET key` or `SET key value`").
// With no --command flag it drops into an interactive, history-backed
// REPL.
//
// Grounded on calvinalkan-agent-task's cmd/sloty REPL (liner-based prompt
// loop, Ctrl-C aborts, persisted history file) and its pflag-based flag
// parsing.
package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"bureau/internal/protocol"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:7070", "bureau-server address")
		command = flag.String("command", "", `one-shot command, e.g. "GET key" or "SET key value"`)
	)
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bureau-client: dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	if *command != "" {
		if err := runOne(conn, *command); err != nil {
			fmt.Fprintf(os.Stderr, "bureau-client: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := repl(conn); err != nil {
		fmt.Fprintf(os.Stderr, "bureau-client: %v\n", err)
		os.Exit(1)
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bureau_history")
}

func repl(conn net.Conn) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	fmt.Println("bureau - key/value client. Commands: GET key | SET key value | SETASYNC key value | exit")

	for {
		text, err := line.Prompt("bureau> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				break
			}
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		line.AppendHistory(text)

		if strings.EqualFold(text, "exit") || strings.EqualFold(text, "quit") {
			break
		}

		if err := runOne(conn, text); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}

	if f, err := os.Create(historyFile()); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
	return nil
}

// runOne parses and executes a single textual command of the form
// "GET key", "SET key value", or "SETASYNC key value" (spec §6).
func runOne(conn net.Conn, text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}
	verb := strings.ToUpper(fields[0])

	switch verb {
	case "GET":
		if len(fields) != 2 {
			return fmt.Errorf("usage: GET key")
		}
		return doGet(conn, fields[1])
	case "SET":
		if len(fields) != 3 {
			return fmt.Errorf("usage: SET key value")
		}
		return doSet(conn, protocol.OpSet, fields[1], fields[2])
	case "SETASYNC":
		if len(fields) != 3 {
			return fmt.Errorf("usage: SETASYNC key value")
		}
		return doSet(conn, protocol.OpSetAsync, fields[1], fields[2])
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func doGet(conn net.Conn, key string) error {
	if err := protocol.WriteGetRequest(conn, key); err != nil {
		return err
	}
	status, body, err := protocol.ReadReply(conn)
	if err != nil {
		return err
	}
	value, found, err := protocol.ParseGetReply(status, body)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Println(string(value))
	return nil
}

func doSet(conn net.Conn, op protocol.Opcode, key, value string) error {
	if err := protocol.WriteSetRequest(conn, op, key, []byte(value)); err != nil {
		return err
	}
	status, body, err := protocol.ReadReply(conn)
	if err != nil {
		return err
	}
	if err := protocol.ParseSetReply(status, body); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

