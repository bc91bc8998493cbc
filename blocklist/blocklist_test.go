package blocklist

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIDRParseAndLookup(t *testing.T) {
	ranges, err := ParseCIDRListReader(strings.NewReader("10.0.0.0/8\n192.168.0.0/16\n"))
	require.NoError(t, err)
	l := New(ranges)

	assert.True(t, l.Blocked(net.ParseIP("10.1.2.3").To4()))
	assert.True(t, l.Blocked(net.ParseIP("192.168.5.6").To4()))
	assert.False(t, l.Blocked(net.ParseIP("8.8.8.8").To4()))
}

func TestP2PLineParsing(t *testing.T) {
	sample := `
# comment
a:1.2.4.0-1.2.4.255
b:1.2.8.0-1.2.8.255
`
	ranges, err := ParseP2PListReader(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, ranges, 2)

	l := New(ranges)
	assert.True(t, l.Blocked(net.ParseIP("1.2.4.10").To4()))
	assert.False(t, l.Blocked(net.ParseIP("1.2.5.10").To4()))
}

func TestEmptyListBlocksNothing(t *testing.T) {
	l := New(nil)
	assert.False(t, l.Blocked(net.ParseIP("1.2.3.4").To4()))
}
