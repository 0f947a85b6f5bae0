package log

import (
	"fmt"
	"sync/atomic"
	"time"
)

const stampLayout = "2006-01-02 15:04:05"

var debugOn atomic.Bool

// SetDebug turns Debug/Debugf output on or off.
func SetDebug(on bool) {
	debugOn.Store(on)
}

func DebugEnabled() bool {
	return debugOn.Load()
}

func stamp() string {
	return time.Now().Format(stampLayout) + ": "
}

func Errorf(format string, args ...interface{}) {
	fmt.Printf(stamp()+"ERROR "+format+"\n", args...)
}

func Warnf(format string, args ...interface{}) {
	fmt.Printf(stamp()+"WARN "+format+"\n", args...)
}

func Debugf(format string, args ...interface{}) {
	if debugOn.Load() {
		fmt.Printf(stamp()+"DEBUG "+format+"\n", args...)
	}
}

func Infof(format string, args ...interface{}) {
	fmt.Printf(stamp()+format+"\n", args...)
}

func Printf(format string, args ...interface{}) {
	fmt.Printf(stamp()+format+"\n", args...)
}

func Info(args ...interface{}) {
	fmt.Print(stamp())
	fmt.Print(args...)
	fmt.Print("\n")
}

func Error(args ...interface{}) {
	fmt.Print(stamp() + "ERROR ")
	fmt.Print(args...)
	fmt.Print("\n")
}

func Debug(args ...interface{}) {
	if debugOn.Load() {
		fmt.Print(stamp() + "DEBUG ")
		fmt.Print(args...)
		fmt.Print("\n")
	}
}
