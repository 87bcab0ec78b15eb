package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// BusEvent captures one state-machine step for post-mortem analysis
type BusEvent struct {
	Kind    uint8      // Event kind code
	Status  Status     // Status register value that triggered the step
	Address I2CAddress // Target of the head instruction
	Cursor  uint16     // Cursor after the step, saturated
	Clock   uint32     // GetTime() at the step
}

// Event kind codes
const (
	EvtAdmit    = 1 // start condition issued by PollAdmission
	EvtAddress  = 2 // SLA+R/W loaded
	EvtTransmit = 3 // data byte loaded
	EvtReceive  = 4 // data byte stored
	EvtAckMode  = 5 // acknowledge policy set for the next byte
	EvtComplete = 6 // instruction finished
	EvtAbort    = 7 // instruction abandoned
	EvtSpurious = 8 // event without a head instruction
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Event ring written from the event context, read by DumpBusEvents
	eventRing     [EventRingSize]BusEvent
	eventRingHead uint8
	eventsEnabled bool = true

	// Async debug output: plain messages, and abort events that the worker
	// formats so the event context never builds strings
	debugChan   chan string
	debugEvents chan BusEvent
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// SetEventRecording turns the bus event ring on or off.
func SetEventRecording(enabled bool) {
	eventsEnabled = enabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	debugEvents = make(chan BusEvent, 8)
	go debugOutputWorker(debugChan, debugEvents)
}

// debugOutputWorker runs in background, drains the debug channels
func debugOutputWorker(msgs <-chan string, events <-chan BusEvent) {
	for {
		select {
		case msg := <-msgs:
			if debugPrintln != nil {
				debugPrintln(msg)
			}
		case evt := <-events:
			if debugPrintln != nil {
				debugPrintln("[TWI] " + FormatBusEvent(evt))
			}
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Drops the message when the channel is full. Safe from the event context.
func DebugAsync(msg string) {
	if debugEnabled && debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// debugAbort hands an abandoned instruction to the async worker when debug
// output is on. Non-blocking and allocation free; drops when the channel is
// full.
func debugAbort(status Status, addr I2CAddress, cursor int) {
	if !debugEnabled || debugEvents == nil {
		return
	}

	select {
	case debugEvents <- BusEvent{
		Kind:    EvtAbort,
		Status:  status,
		Address: addr,
		Cursor:  saturate16(cursor),
		Clock:   GetTime(),
	}:
	default:
	}
}

// RecordBusEvent appends an event to the ring. Non-blocking; called from the
// event context.
func RecordBusEvent(kind uint8, status Status, addr I2CAddress, cursor int) {
	if !eventsEnabled {
		return
	}

	state := disableInterrupts()
	idx := eventRingHead
	eventRing[idx] = BusEvent{
		Kind:    kind,
		Status:  status,
		Address: addr,
		Cursor:  saturate16(cursor),
		Clock:   GetTime(),
	}
	eventRingHead = (idx + 1) % EventRingSize
	restoreInterrupts(state)
}

func saturate16(n int) uint16 {
	if n > 0xFFFF {
		return 0xFFFF
	}
	if n < 0 {
		return 0
	}
	return uint16(n)
}

// BusEvents returns the recorded events, oldest first.
func BusEvents() []BusEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	events := make([]BusEvent, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.Kind == 0 {
			continue // Empty slot
		}
		events = append(events, evt)
	}
	return events
}

// EventName returns a short label for an event kind.
func EventName(kind uint8) string {
	switch kind {
	case EvtAdmit:
		return "ADMIT"
	case EvtAddress:
		return "ADDRESS"
	case EvtTransmit:
		return "TX"
	case EvtReceive:
		return "RX"
	case EvtAckMode:
		return "ACK_MODE"
	case EvtComplete:
		return "COMPLETE"
	case EvtAbort:
		return "ABORT!"
	case EvtSpurious:
		return "SPURIOUS!"
	default:
		return "UNKNOWN"
	}
}

// FormatBusEvent renders one ring entry as a single line.
func FormatBusEvent(evt BusEvent) string {
	return EventName(evt.Kind) +
		" status=" + evt.Status.String() +
		" addr=0x" + hex8(uint8(evt.Address)) +
		" cursor=" + itoa(int(evt.Cursor)) +
		" clock=" + utoa(evt.Clock)
}

// DumpBusEvents writes the event ring through the debug writer
func DumpBusEvents() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TWI] === Bus Event Dump ===")
	for _, evt := range BusEvents() {
		debugPrintln("[TWI] " + FormatBusEvent(evt))
	}
	debugPrintln("[TWI] === End Dump ===")
}

// ClearBusEvents clears the event ring
func ClearBusEvents() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := range eventRing {
		eventRing[i] = BusEvent{}
	}
	eventRingHead = 0
}
