package core

// TimerFreq is the tick rate assumed for GetTime stamps (microseconds).
const TimerFreq = 1000000

// GetTime returns the current time in ticks. Targets and the simulator
// publish it with SetTime; the event ring stamps entries with it.
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime publishes the current time in ticks.
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}
