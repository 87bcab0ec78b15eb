package core

// Status is the masked value of the TWI status register (prescaler bits cleared).
type Status uint8

// StatusMask selects the status bits of the raw status register.
const StatusMask = 0xF8

// Master-mode status codes
const (
	StatusStart           Status = 0x08 // START transmitted
	StatusRepeatedStart   Status = 0x10 // repeated START transmitted
	StatusAddrWriteAck    Status = 0x18 // SLA+W transmitted, ACK received
	StatusAddrWriteNack   Status = 0x20 // SLA+W transmitted, NACK received
	StatusDataSentAck     Status = 0x28 // data transmitted, ACK received
	StatusDataSentNack    Status = 0x30 // data transmitted, NACK received
	StatusArbitrationLost Status = 0x38 // arbitration lost in SLA+R/W or data
	StatusAddrReadAck     Status = 0x40 // SLA+R transmitted, ACK received
	StatusAddrReadNack    Status = 0x48 // SLA+R transmitted, NACK received
	StatusDataRecvAck     Status = 0x50 // data received, ACK returned
	StatusDataRecvNack    Status = 0x58 // data received, NACK returned
)

// Slave-mode and miscellaneous codes. The master driver never expects these;
// they are named so diagnostics can print them.
const (
	StatusSlaveWriteAck      Status = 0x60
	StatusArbLostSlaveWrite  Status = 0x68
	StatusGeneralCallAck     Status = 0x70
	StatusArbLostGeneralCall Status = 0x78
	StatusSlaveDataAck       Status = 0x80
	StatusSlaveDataNack      Status = 0x88
	StatusGeneralDataAck     Status = 0x90
	StatusGeneralDataNack    Status = 0x98
	StatusSlaveStop          Status = 0xA0
	StatusSlaveReadAck       Status = 0xA8
	StatusArbLostSlaveRead   Status = 0xB0
	StatusSlaveDataSentAck   Status = 0xB8
	StatusSlaveDataSentNack  Status = 0xC0
	StatusSlaveLastDataAck   Status = 0xC8
	StatusNoInfo             Status = 0xF8 // no relevant state, TWINT not set
	StatusBusError           Status = 0x00 // illegal START/STOP
)

func (s Status) String() string {
	switch s {
	case StatusStart:
		return "start"
	case StatusRepeatedStart:
		return "repeated-start"
	case StatusAddrWriteAck:
		return "sla-w-ack"
	case StatusAddrWriteNack:
		return "sla-w-nack"
	case StatusDataSentAck:
		return "data-tx-ack"
	case StatusDataSentNack:
		return "data-tx-nack"
	case StatusArbitrationLost:
		return "arbitration-lost"
	case StatusAddrReadAck:
		return "sla-r-ack"
	case StatusAddrReadNack:
		return "sla-r-nack"
	case StatusDataRecvAck:
		return "data-rx-ack"
	case StatusDataRecvNack:
		return "data-rx-nack"
	case StatusNoInfo:
		return "no-info"
	case StatusBusError:
		return "bus-error"
	default:
		return "0x" + hex8(uint8(s))
	}
}
