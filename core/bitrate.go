package core

// Bit-rate arithmetic for the TWI clock generator:
//
//	SCL = CPU / (16 + 2*TWBR*4^TWPS)

// BitRate returns the divisor and the smallest prescaler that produce an SCL
// frequency at or below sclHz. TWBR is rounded up so the bus never runs
// faster than requested.
func BitRate(cpuHz, sclHz uint32) (uint8, Prescaler, error) {
	if sclHz == 0 || cpuHz == 0 {
		return 0, 0, ErrBitRate
	}

	ratio := (cpuHz + sclHz - 1) / sclHz
	if ratio < 16 {
		return 0, 0, ErrBitRate
	}

	for ps := Prescaler1; ps <= Prescaler64; ps++ {
		step := 2 * ps.Factor()
		twbr := (ratio - 16 + step - 1) / step
		if twbr <= 0xFF {
			return uint8(twbr), ps, nil
		}
	}

	return 0, 0, ErrBitRate
}

// SCLFrequency returns the bus frequency produced by a divisor setting.
func SCLFrequency(cpuHz uint32, twbr uint8, ps Prescaler) uint32 {
	return cpuHz / (16 + 2*uint32(twbr)*ps.Factor())
}
