package ports

import (
	"bufio"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// The parsers below are pure so that every platform's output format can be
// tested everywhere. Lines that do not parse are skipped.

// ParseLsof parses `lsof -t` output: one pid per line.
func ParseLsof(out []byte) []int {
	var pids []int
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return normalizePIDs(pids)
}

var ssPIDPattern = regexp.MustCompile(`pid=(\d+)`)

// ParseSS parses `ss -ltnp` output and returns every pid attached to a
// socket whose local address ends in :port.
//
//	State  Recv-Q Send-Q Local Address:Port Peer Address:Port Process
//	LISTEN 0      511    127.0.0.1:8787     0.0.0.0:*         users:(("node",pid=4242,fd=21))
func ParseSS(out []byte, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	var pids []int
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 5 || !strings.HasSuffix(fields[3], suffix) {
			continue
		}
		for _, m := range ssPIDPattern.FindAllStringSubmatch(line, -1) {
			if pid, err := strconv.Atoi(m[1]); err == nil && pid > 0 {
				pids = append(pids, pid)
			}
		}
	}
	return normalizePIDs(pids)
}

// ParseNetstat parses Windows `netstat -ano` output and returns the pid
// column of LISTENING rows whose local address ends in :port.
//
//	Proto  Local Address    Foreign Address  State      PID
//	TCP    0.0.0.0:8787     0.0.0.0:0        LISTENING  4242
func ParseNetstat(out []byte, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	var pids []int
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || fields[3] != "LISTENING" {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		if pid, err := strconv.Atoi(fields[len(fields)-1]); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return normalizePIDs(pids)
}

// normalizePIDs sorts and de-duplicates.
func normalizePIDs(pids []int) []int {
	if len(pids) == 0 {
		return nil
	}
	sort.Ints(pids)
	out := pids[:1]
	for _, p := range pids[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}
