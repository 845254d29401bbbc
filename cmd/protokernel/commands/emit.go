// Package commands implements the protokernel CLI's subcommands, one
// file per command.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"protokernel/cmd/protokernel/dfgfile"
	"protokernel/emitter"
	"protokernel/registry/store"
)

// EmitOptions are the flags every emit-family command shares.
type EmitOptions struct {
	InputPath  string
	OutputPath string
	StorePath  string
	ProgName   string
	ProgVer    string
	Config     map[string]string
}

// ParseEmitArgs reads a flag set shaped like the rest of the CLI's
// positional-plus-flag commands (cmd/sentra's BuildCommand takes a bare
// project-root positional; this extends that with named flags since an
// emit run needs several independent knobs).
func ParseEmitArgs(args []string) (*EmitOptions, error) {
	opts := &EmitOptions{Config: map[string]string{}}
	var positional []string

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-o" || a == "--output":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("%s requires a path argument", a)
			}
			opts.OutputPath = args[i]
		case a == "--store":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--store requires a path argument")
			}
			opts.StorePath = args[i]
		case a == "--name":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--name requires a value")
			}
			opts.ProgName = args[i]
		case a == "--version":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("--version requires a value")
			}
			opts.ProgVer = args[i]
		case strings.HasPrefix(a, "--emitter-") || a == "--emit-compact" || a == "--emit-semicompact" || a == "--hexdump":
			key := strings.TrimPrefix(a, "--")
			if strings.Contains(key, "=") {
				parts := strings.SplitN(key, "=", 2)
				opts.Config[parts[0]] = parts[1]
			} else {
				opts.Config[key] = "true"
			}
		default:
			positional = append(positional, a)
		}
	}

	if len(positional) == 0 {
		return nil, fmt.Errorf("usage: protokernel emit <dfg.json> [-o out.pkb] [--store registry.db]")
	}
	opts.InputPath = positional[0]
	if opts.ProgName == "" {
		opts.ProgName = strings.TrimSuffix(filepath.Base(opts.InputPath), filepath.Ext(opts.InputPath))
	}
	if opts.ProgVer == "" {
		opts.ProgVer = "dev"
	}
	if opts.OutputPath == "" {
		opts.OutputPath = opts.ProgName + ".pkb"
	}
	return opts, nil
}

// RunEmit loads a DFG interchange file, runs it through the emitter,
// and writes the result to disk and/or the bytecode registry.
func RunEmit(opts *EmitOptions) ([]byte, error) {
	dfg, err := dfgfile.Load(opts.InputPath)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	em := emitter.New(opts.Config)
	buf, err := em.EmitFrom(dfg)
	if err != nil {
		return nil, fmt.Errorf("emit %s (run %s): %w", opts.InputPath, runID, err)
	}

	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, buf, 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", opts.OutputPath, err)
		}
	}

	if opts.StorePath != "" {
		if err := saveToStore(opts, em, buf, runID); err != nil {
			return nil, err
		}
	}

	fmt.Printf("emitted %s: %s (%s), run %s\n",
		opts.ProgName, humanize.Bytes(uint64(len(buf))), opts.OutputPath, runID)
	return buf, nil
}

func saveToStore(opts *EmitOptions, em *emitter.Emitter, buf []byte, runID string) error {
	st, err := store.Open(opts.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	p := store.Program{
		Name:        opts.ProgName,
		Version:     opts.ProgVer,
		RunID:       runID,
		Buffer:      buf,
		OpsChecksum: em.Ops.Checksum(),
		EmittedAt:   time.Now(),
	}
	// The DEF_VM preamble immediately follows the opcode byte:
	// export_len, n_exports, n_globals (16-bit), n_states,
	// max_stack+1 (16-bit), max_env, all little-endian.
	if len(buf) >= 9 {
		p.ExportLen = int(buf[1])
		p.NExports = int(buf[2])
		p.NGlobals = int(buf[3]) | int(buf[4])<<8
		p.NStates = int(buf[5])
		p.MaxStack = (int(buf[6]) | int(buf[7])<<8) - 1
		p.MaxEnv = int(buf[8])
	}
	return st.Put(p)
}

// EmitCommand is the "protokernel emit" entry point.
func EmitCommand(args []string) error {
	opts, err := ParseEmitArgs(args)
	if err != nil {
		return err
	}
	_, err = RunEmit(opts)
	return err
}
