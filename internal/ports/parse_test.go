package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLsof(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want []int
	}{
		{"empty", "", nil},
		{"single", "4242\n", []int{4242}},
		{"dedup and sort", "90\n12\n90\n", []int{12, 90}},
		{"garbage skipped", "lsof: WARNING\n  77  \n-1\n", []int{77}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLsof([]byte(tt.out)))
		})
	}
}

const ssOutput = `State  Recv-Q Send-Q Local Address:Port  Peer Address:Port Process
LISTEN 0      511        127.0.0.1:8787       0.0.0.0:*     users:(("workerd",pid=4242,fd=21),("workerd",pid=4243,fd=21))
LISTEN 0      511          0.0.0.0:87870      0.0.0.0:*     users:(("other",pid=1,fd=3))
LISTEN 0      4096            [::]:8787          [::]:*     users:(("node",pid=4242,fd=22))
LISTEN 0      128          0.0.0.0:22         0.0.0.0:*
`

func TestParseSS(t *testing.T) {
	assert.Equal(t, []int{4242, 4243}, ParseSS([]byte(ssOutput), 8787))
	assert.Nil(t, ParseSS([]byte(ssOutput), 22), "no pid column without privileges")
	assert.Nil(t, ParseSS([]byte(ssOutput), 5173))
	assert.Nil(t, ParseSS(nil, 8787))
}

const netstatOutput = `
Active Connections

  Proto  Local Address          Foreign Address        State           PID
  TCP    0.0.0.0:135            0.0.0.0:0              LISTENING       888
  TCP    0.0.0.0:8787           0.0.0.0:0              LISTENING       5120
  TCP    127.0.0.1:8787         127.0.0.1:51234        ESTABLISHED     5120
  TCP    [::]:8787              [::]:0                 LISTENING       5121
  TCP    0.0.0.0:18787          0.0.0.0:0              LISTENING       6000
  UDP    0.0.0.0:8787           *:*                                    7000
`

func TestParseNetstat(t *testing.T) {
	assert.Equal(t, []int{5120, 5121}, ParseNetstat([]byte(netstatOutput), 8787))
	assert.Equal(t, []int{888}, ParseNetstat([]byte(netstatOutput), 135))
	assert.Nil(t, ParseNetstat([]byte(netstatOutput), 5173))
}
