package serialize

import (
	"fmt"
	"strings"

	"protokernel/emitter/instr"
)

// PrintOptions controls the pretty-printer, mirroring the
// emit-compact / emit-semicompact / emitter-op-debug configuration
// options (carried on the Emitter, not a process-wide global).
type PrintOptions struct {
	Compact     bool // one line, no wrapping
	Semicompact bool // wrapped at 70 columns
	OpDebug     bool // annotate each instruction with its resolved location
}

// PrintChain renders a chain (descending into Blocks) as a sequence of
// mnemonic tokens: depth-first, Block contents bracketed, one token per
// instruction plus its parameters.
func PrintChain(start instr.Instr, t *OpTable, opts PrintOptions) string {
	var tokens []string
	walkPrint(start, t, opts, &tokens)

	joined := strings.Join(tokens, " ")
	if opts.Compact || !opts.Semicompact {
		return joined
	}
	return wrapAt(tokens, 70)
}

func walkPrint(i instr.Instr, t *OpTable, opts PrintOptions, out *[]string) {
	for p := i; p != nil; p = p.Base().Next {
		switch v := p.(type) {
		case *instr.Block:
			*out = append(*out, "{")
			walkPrint(v.Contents, t, opts, out)
			*out = append(*out, "}")
		case *instr.NoInstruction:
			// emits nothing, per NoInstruction row
		default:
			tok := p.Describe(t)
			if opts.OpDebug {
				tok = fmt.Sprintf("%s@%d", tok, instr.StartLocation(p))
			}
			*out = append(*out, tok)
		}
	}
}

// wrapAt greedily packs tokens into lines no wider than width, for
// semicompact 70-column wrapping.
func wrapAt(tokens []string, width int) string {
	var lines []string
	var cur strings.Builder
	for _, tok := range tokens {
		if cur.Len() > 0 && cur.Len()+1+len(tok) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(tok)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return strings.Join(lines, "\n")
}

// HexDump renders buf per hexdump option: 25 bytes per line,
// two hex digits per byte, space-separated.
func HexDump(buf []byte) string {
	const perLine = 25
	var b strings.Builder
	for i := 0; i < len(buf); i += perLine {
		end := i + perLine
		if end > len(buf) {
			end = len(buf)
		}
		for j := i; j < end; j++ {
			if j > i {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%02x", buf[j])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
