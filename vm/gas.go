package vm

import (
	"math"
)

const (
	GasBaseOp     uint64 = 1
	GasArithmetic uint64 = 2
	GasJump       uint64 = 2
	GasFrameOp    uint64 = 3
	GasPerWord    uint64 = 1 // per 32 bytes copied

	GasHostBase     uint64 = 40
	GasHostPerByte  uint64 = 1
	GasStorageRead  uint64 = 100
	GasStorageWrite uint64 = 400
	GasSigVerify    uint64 = 1000
)

// GasMeter tracks consumption against a fixed limit.
type GasMeter struct {
	limit uint64
	used  uint64
}

func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Consume charges amount, failing with ErrInsufficientGas if the limit is
// exceeded. A failed charge exhausts the meter.
func (g *GasMeter) Consume(amount uint64) error {
	if amount > g.limit-g.used {
		g.used = g.limit
		return ErrInsufficientGas
	}
	g.used += amount
	return nil
}

func (g *GasMeter) Used() uint64 { return g.used }

func (g *GasMeter) Remaining() uint64 { return g.limit - g.used }

func wordGas(n int) uint64 {
	return GasPerWord * uint64((n+31)/32)
}

func byteGas(n int) uint64 {
	if uint64(n) > math.MaxUint64/GasHostPerByte {
		return math.MaxUint64
	}
	return GasHostPerByte * uint64(n)
}
