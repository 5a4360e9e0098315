package chunk

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the prototype and all of
// its nested prototypes.
func Disassemble(p *Proto) string {
	var sb strings.Builder
	disasmProto(&sb, p, p.Name)
	return sb.String()
}

func disasmProto(sb *strings.Builder, p *Proto, name string) {
	if name == "" {
		name = "?"
	}
	fmt.Fprintf(sb, "== %s (%d params, %d slots", name, p.NumParams, p.NumSlots)
	if p.IsVararg {
		sb.WriteString(", vararg")
	}
	sb.WriteString(") ==\n")

	offset := 0
	for offset < len(p.Code) {
		offset = disasmInstruction(sb, p, offset)
	}

	for i, sub := range p.Protos {
		subName := sub.Name
		if subName == "" {
			subName = fmt.Sprintf("%s.<proto %d>", name, i)
		}
		disasmProto(sb, sub, subName)
	}
}

func disasmInstruction(sb *strings.Builder, p *Proto, offset int) int {
	fmt.Fprintf(sb, "%04d ", offset)

	if offset > 0 && p.Line(offset) == p.Line(offset-1) {
		sb.WriteString("   | ")
	} else {
		fmt.Fprintf(sb, "%4d ", p.Line(offset))
	}

	op := Op(p.Code[offset])
	if op >= opCount {
		fmt.Fprintf(sb, "UNKNOWN %d\n", byte(op))
		return offset + 1
	}

	info := opTable[op]
	fmt.Fprintf(sb, "%-16s", info.Name)
	at := offset + 1
	for _, kind := range info.Opds {
		switch kind {
		case opdU8:
			fmt.Fprintf(sb, " %d", p.Code[at])
			at++
		case opdU16:
			fmt.Fprintf(sb, " %d", p.ReadU16(at))
			at += 2
		case opdConst:
			idx := p.ReadU16(at)
			if idx < len(p.Consts) {
				fmt.Fprintf(sb, " %d (%s)", idx, p.Consts[idx])
			} else {
				fmt.Fprintf(sb, " %d (?)", idx)
			}
			at += 2
		case opdJump:
			off := p.ReadU16(at)
			fmt.Fprintf(sb, " -> %04d", at+2+off)
			at += 2
		case opdLoop:
			off := p.ReadU16(at)
			fmt.Fprintf(sb, " -> %04d", at+2-off)
			at += 2
		case opdProto:
			idx := p.ReadU16(at)
			fmt.Fprintf(sb, " <proto %d>", idx)
			at += 2
		}
	}
	sb.WriteByte('\n')
	return at
}
