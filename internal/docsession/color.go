package docsession

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

var palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#469990",
	"#9a6324", "#800000", "#808000", "#000075",
}

// ColorFor maps an agent id onto the fixed palette.
func ColorFor(agentID string) string {
	sum := blake3.Sum256([]byte(agentID))
	return palette[binary.BigEndian.Uint32(sum[:4])%uint32(len(palette))]
}
