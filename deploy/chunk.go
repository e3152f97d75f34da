package deploy

import "github.com/hoffmabc/arch-deploy/program"

// Binary envelope sizes of one Write transaction, excluding the chunk
// payload. The node re-encodes all of this as JSON number arrays, so the
// planner divides the transport ceiling by the configured inflation factor
// before subtracting the overhead.
const (
	envVersion        = 4
	envSignatureCount = 4
	envSignature      = 64
	envHeader         = 3
	envKeyCount       = 4
	envSignerKeys     = 2 * 32
	envBlockhash      = 32
	envInstrCount     = 4
	envInstrMeta      = 1 + 4 + 2 + 4 // program index, account count, two indices, data length
)

// envelopeOverhead is the fixed byte cost of a single-Write transaction
// before its payload.
const envelopeOverhead = envVersion + envSignatureCount + envSignature +
	envHeader + envKeyCount + envSignerKeys + envBlockhash +
	envInstrCount + envInstrMeta + program.WriteFixedOverhead

// Chunk is one planned Write payload: where it lands in the program data
// region and the bytes themselves.
type Chunk struct {
	Offset uint32
	Data   []byte
}

// MaxChunkSize computes the largest payload that keeps a Write transaction
// under the transport ceiling after JSON inflation, clamped to the
// configured minimum so upload always makes progress.
func (cfg *Config) MaxChunkSize() int {
	size := cfg.TransportCeiling/cfg.InflationFactor - envelopeOverhead
	if size < cfg.MinChunkSize {
		size = cfg.MinChunkSize
	}
	return size
}

// PlanChunks splits binary into sequential chunks of at most chunkSize
// bytes. Concatenating the chunks in order reproduces binary exactly.
func PlanChunks(binary []byte, chunkSize int) []Chunk {
	if chunkSize <= 0 || len(binary) == 0 {
		return nil
	}
	chunks := make([]Chunk, 0, (len(binary)+chunkSize-1)/chunkSize)
	for off := 0; off < len(binary); off += chunkSize {
		end := off + chunkSize
		if end > len(binary) {
			end = len(binary)
		}
		chunks = append(chunks, Chunk{
			Offset: uint32(off),
			Data:   binary[off:end],
		})
	}
	return chunks
}
