package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/highwayswap/highway/fsm"
	"github.com/highwayswap/highway/settlement"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	out := flag.String("out", "", "outfile")
	stateMachine := flag.String(
		"fsm", "", "the settlement state machine to parse",
	)
	flag.Parse()

	if filepath.Ext(*out) != ".md" {
		return errors.New("wrong argument: out must be a .md file")
	}

	fp, err := filepath.Abs(*out)
	if err != nil {
		return err
	}

	var states fsm.States
	switch *stateMachine {
	case "outbound":
		states = settlement.OutboundStates()

	case "inbound":
		states = settlement.InboundStates()

	default:
		fmt.Println("Missing or wrong argument: fsm must be one of:")
		fmt.Println("\toutbound")
		fmt.Println("\tinbound")

		return nil
	}

	return writeMermaidFile(fp, states)
}

func writeMermaidFile(filename string, states fsm.States) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	return writeMermaid(f, states)
}

// writeMermaid writes the state diagram with states and their transitions
// sorted, so that regenerating an unchanged machine gives the same file.
func writeMermaid(w io.Writer, states fsm.States) error {
	var b bytes.Buffer
	fmt.Fprint(&b, "```mermaid\nstateDiagram-v2\n")

	for _, state := range sortedKeys(states) {
		edges := states[fsm.StateType(state)]
		// write state name
		if len(state) > 0 {
			fmt.Fprintf(&b, "%s\n", state)
		} else {
			state = "[*]"
		}

		events := make([]string, 0, len(edges.Transitions))
		for event := range edges.Transitions {
			events = append(events, string(event))
		}
		sort.Strings(events)

		// write transitions
		for _, event := range events {
			target := edges.Transitions[fsm.EventType(event)]
			fmt.Fprintf(&b, "%s --> %s: %s\n", state, target, event)
		}
	}

	fmt.Fprint(&b, "```\n")
	_, err := w.Write(b.Bytes())

	return err
}

func sortedKeys(m fsm.States) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	return keys
}
