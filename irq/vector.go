package irq

import "strconv"

// Vector is a hardware-defined interrupt line number.
type Vector uint8

// SAMD21 vector table (peripheral lines).
const (
	PM Vector = iota
	SYSCTRL
	WDT
	RTC
	EIC
	NVMCTRL
	DMAC
	USB
	EVSYS
	SERCOM0
	SERCOM1
	SERCOM2
	SERCOM3
	SERCOM4
	SERCOM5
	TCC0
	TCC1
	TCC2
	TC3
	TC4
	TC5
)

// NumVectors is the size of the simulated vector table.
const NumVectors = 32

var vectorNames = [...]string{
	PM: "PM", SYSCTRL: "SYSCTRL", WDT: "WDT", RTC: "RTC", EIC: "EIC",
	NVMCTRL: "NVMCTRL", DMAC: "DMAC", USB: "USB", EVSYS: "EVSYS",
	SERCOM0: "SERCOM0", SERCOM1: "SERCOM1", SERCOM2: "SERCOM2",
	SERCOM3: "SERCOM3", SERCOM4: "SERCOM4", SERCOM5: "SERCOM5",
	TCC0: "TCC0", TCC1: "TCC1", TCC2: "TCC2", TC3: "TC3", TC4: "TC4", TC5: "TC5",
}

func (v Vector) String() string {
	if int(v) < len(vectorNames) && vectorNames[v] != "" {
		return vectorNames[v]
	}
	return "IRQ" + strconv.Itoa(int(v))
}

// ByName resolves a vector name as it appears in the vector table.
func ByName(name string) (Vector, bool) {
	for i, n := range vectorNames {
		if n == name {
			return Vector(i), true
		}
	}
	return 0, false
}
