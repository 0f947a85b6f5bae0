// Package system reads the board inventory of the machine the daemon runs
// on: the Raspberry Pi model, revision and serial number.
package system

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pifanctrl/log"
)

// Root is prepended to every path read; tests point it at a temp dir.
var Root = "/"

const (
	modelFile   = "proc/device-tree/model"
	cpuinfoFile = "proc/cpuinfo"
	unknown     = "unknown"
)

// BoardInfo identifies the host board.
type BoardInfo struct {
	Model    string `json:"model"`
	Revision string `json:"revision"`
	Serial   string `json:"serial"`
	Hostname string `json:"hostname"`
}

// RaspberryPi reports whether the model string names a Raspberry Pi.
func (b BoardInfo) RaspberryPi() bool {
	return strings.HasPrefix(b.Model, "Raspberry Pi")
}

var (
	cacheMu sync.Mutex
	cached  *BoardInfo
)

// GetSystemInfo returns the board inventory. It is read once and cached;
// fields that cannot be read are "unknown".
func GetSystemInfo() BoardInfo {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached != nil {
		return *cached
	}
	info := readBoardInfo()
	log.Debugf("board info: %+v", info)
	cached = &info
	return info
}

func resetCache() {
	cacheMu.Lock()
	cached = nil
	cacheMu.Unlock()
}

func readBoardInfo() BoardInfo {
	info := BoardInfo{Model: unknown, Revision: unknown, Serial: unknown, Hostname: unknown}

	if b, err := os.ReadFile(filepath.Join(Root, modelFile)); err == nil {
		// device-tree strings are NUL terminated
		if m := strings.TrimSpace(string(bytes.TrimRight(b, "\x00"))); m != "" {
			info.Model = m
		}
	} else {
		log.Debugf("board model: %v", err)
	}

	if f, err := os.Open(filepath.Join(Root, cpuinfoFile)); err == nil {
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			key, val, ok := strings.Cut(sc.Text(), ":")
			if !ok {
				continue
			}
			key, val = strings.TrimSpace(key), strings.TrimSpace(val)
			switch key {
			case "Serial":
				info.Serial = val
			case "Revision":
				info.Revision = val
			case "Model":
				if info.Model == unknown {
					info.Model = val
				}
			}
		}
		f.Close()
	} else {
		log.Debugf("cpuinfo: %v", err)
	}

	if h, err := os.Hostname(); err == nil {
		info.Hostname = h
	}
	return info
}
